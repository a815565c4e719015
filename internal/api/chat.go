package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/corpus/internal/agent"
	"github.com/haasonsaas/corpus/internal/observability"
)

// userIDHeader carries the caller identity. Authentication happens
// upstream; by the time a request reaches this service the header is
// trusted.
const userIDHeader = "X-User-ID"

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// handleChatMessage runs one user message through the agent graph.
//
// Outcomes map to status codes as follows: an unknown or foreign session
// is a 400; a failure before the message was persisted is a 500 with a
// non-revealing body; everything else is a 200 carrying the graph's
// response, which may be a refusal. When the message was persisted the
// assistant reply is appended to the session before responding.
func (s *Server) handleChatMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_request",
			"message":    "request body must be JSON with a message field",
		})
		return
	}

	userID := strings.TrimSpace(c.GetHeader(userIDHeader))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "missing_user",
			"message":    "X-User-ID header is required",
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "empty_message",
			"message":    "message is required",
		})
		return
	}

	ctx := observability.AddUserID(c.Request.Context(), userID)
	state := s.deps.Agent.Run(ctx, agent.Input{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    userID,
	})

	if state.AccessDenied() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_session",
			"message":    "session not found or access denied",
		})
		return
	}
	if state.ErrorMessage != "" && !state.Persisted && !state.IsMalicious {
		s.logger.Error(ctx, "chat request failed before persistence", "error", state.ErrorMessage)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "internal_error",
			"message":    "failed to process message",
		})
		return
	}

	reply := state.Response()
	if state.Persisted {
		if _, err := s.deps.Chat.AppendAssistant(ctx, state.SessionID, reply); err != nil {
			s.logger.Error(ctx, "append assistant reply", "error", err, "session_id", state.SessionID)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "failed to record the reply",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": state.SessionID,
		"message":    reply,
	})
}
