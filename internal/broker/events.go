package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/haasonsaas/corpus/pkg/models"
)

// ObjectKeyFromEvent extracts and URL-decodes the object key from a bucket
// notification body. Any structural problem is permanent: the caller should
// quarantine the message, not retry it.
func ObjectKeyFromEvent(body []byte) (string, error) {
	var event models.BucketEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return "", fmt.Errorf("parse bucket event: %w", err)
	}
	if len(event.Records) == 0 {
		return "", errors.New("bucket event has no records")
	}

	raw := event.Records[0].S3.Object.Key
	if raw == "" {
		return "", errors.New("bucket event record has no object key")
	}
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", raw, err)
	}
	return key, nil
}

// newObjectCreatedEvent builds a synthetic notification body for an object
// key, encoded the way the object store encodes its own events.
func newObjectCreatedEvent(objectKey string) ([]byte, error) {
	event := models.BucketEvent{
		Records: []models.BucketEventRecord{{
			S3: models.BucketEventS3{
				Object: models.BucketEventObject{Key: url.QueryEscape(objectKey)},
			},
		}},
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal bucket event: %w", err)
	}
	return body, nil
}

// publishing wraps a synthetic event as a durable AMQP message.
func publishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
}
