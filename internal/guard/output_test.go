package guard

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/corpus/internal/config"
)

func outputGuard(entities ...string) *OutputGuard {
	return NewOutputGuard(config.GuardsConfig{PIIEntities: entities})
}

func TestOutputGuardDetectsEntities(t *testing.T) {
	tests := []struct {
		entity string
		text   string
	}{
		{"EMAIL", "Contact me at alice@example.com for details"},
		{"PHONE", "Call +34 612 345 678 tomorrow"},
		{"PHONE", "Our office: (555) 123-4567"},
		{"CREDIT_CARD", "Charge it to 4111 1111 1111 1111 please"},
		{"CREDIT_CARD", "Card number 4111-1111-1111-1111"},
		{"SSN", "My social is 123-45-6789"},
		{"PASSPORT", "Passport AB1234567 expires next year"},
		{"DRIVER_LICENSE", "Her driver's license B1234567 was suspended"},
		{"DRIVER_LICENSE", "See DL# 98765432 on file"},
		{"IBAN", "Transfer to GB82 WEST 1234 5698 7654 32"},
		{"IBAN", "IBAN: GB82WEST12345698765432"},
		{"IP", "The server at 192.168.1.1 responded"},
	}

	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			g := outputGuard(tt.entity)
			verdict, err := g.Check(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if !verdict.Flagged {
				t.Fatalf("expected %s detection in %q", tt.entity, tt.text)
			}
			if !strings.Contains(verdict.Reason, tt.entity) {
				t.Errorf("reason %q does not name the entity", verdict.Reason)
			}
		})
	}
}

func TestOutputGuardReasonNeverEchoesValues(t *testing.T) {
	g := outputGuard("EMAIL")
	verdict, err := g.Check(context.Background(), "Contact me at alice@example.com")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Flagged {
		t.Fatal("expected email detection")
	}
	if strings.Contains(verdict.Reason, "alice") || strings.Contains(verdict.Reason, "example.com") {
		t.Errorf("reason echoes the detected value: %q", verdict.Reason)
	}
}

func TestOutputGuardValidatorRejections(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		text   string
	}{
		{"luhn failure", "CREDIT_CARD", "Reference 4111 1111 1111 1112 in the ledger"},
		{"iban checksum failure", "IBAN", "Use GB82 WEST 1234 5698 7654 31 maybe"},
		{"impossible ip", "IP", "Version 999.999.999.999 was released"},
		{"impossible ssn area", "SSN", "Code 987-65-4321 is internal"},
		{"ssn zero group", "SSN", "Code 123-00-4321 is internal"},
		{"date is not an ssn", "SSN", "Updated on 2024-01-15 at noon"},
		{"short digit run is not a phone", "PHONE", "Room 1234, floor 56"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := outputGuard(tt.entity)
			verdict, err := g.Check(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if verdict.Flagged {
				t.Errorf("Check(%q) flagged: %s", tt.text, verdict.Reason)
			}
		})
	}
}

func TestOutputGuardCleanResponsePasses(t *testing.T) {
	g := NewOutputGuard(config.GuardsConfig{})

	text := "RAG combina la recuperación de documentos con la generación de texto. " +
		"Los fragmentos recuperados se insertan en el contexto del modelo."
	verdict, err := g.Check(context.Background(), text)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Flagged {
		t.Errorf("clean response flagged: %s", verdict.Reason)
	}
}

func TestOutputGuardEntitySubset(t *testing.T) {
	text := "Contact me at alice@example.com"

	verdict, err := outputGuard("PHONE", "IP").Check(context.Background(), text)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Flagged {
		t.Error("email flagged although EMAIL is not in the entity set")
	}

	verdict, err = outputGuard("EMAIL").Check(context.Background(), text)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Flagged {
		t.Error("email not flagged with EMAIL configured")
	}
}

func TestOutputGuardPresidioAliases(t *testing.T) {
	g := outputGuard("EMAIL_ADDRESS", "PHONE_NUMBER", "IP_ADDRESS")

	verdict, err := g.Check(context.Background(), "Write to bob@example.org")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Flagged {
		t.Error("expected alias EMAIL_ADDRESS to map onto EMAIL")
	}
}

func TestOutputGuardUnknownEntitiesIgnored(t *testing.T) {
	g := outputGuard("PERSON", "LOCATION", "EMYL")

	verdict, err := g.Check(context.Background(), "Contact me at alice@example.com")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Flagged {
		t.Errorf("unknown entities must never match, got %s", verdict.Reason)
	}
}

func TestOutputGuardEmptyResponse(t *testing.T) {
	g := NewOutputGuard(config.GuardsConfig{})

	for _, text := range []string{"", "  \n "} {
		verdict, err := g.Check(context.Background(), text)
		if err != nil {
			t.Errorf("Check(%q) returned error: %v", text, err)
		}
		if verdict.Flagged {
			t.Errorf("Check(%q) flagged an empty response", text)
		}
	}
}

func TestOutputGuardMultipleEntitiesInOrder(t *testing.T) {
	g := outputGuard("IP", "EMAIL")

	verdict, err := g.Check(context.Background(), "alice@example.com runs 10.0.0.1 and 192.168.0.1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Flagged {
		t.Fatal("expected detection")
	}
	if verdict.Reason != "PII detected: IP, EMAIL" {
		t.Errorf("reason = %q, want configured order", verdict.Reason)
	}
}

func TestLuhnValid(t *testing.T) {
	tests := []struct {
		digits string
		want   bool
	}{
		{"4111111111111111", true},
		{"5500005555555559", true},
		{"4111111111111112", false},
		{"1234567890123456", false},
	}

	for _, tt := range tests {
		if got := luhnValid(tt.digits); got != tt.want {
			t.Errorf("luhnValid(%s) = %v, want %v", tt.digits, got, tt.want)
		}
	}
}

func TestIBANValid(t *testing.T) {
	tests := []struct {
		iban string
		want bool
	}{
		{"GB82WEST12345698765432", true},
		{"GB82 WEST 1234 5698 7654 32", true},
		{"GB82WEST12345698765431", false},
		{"XX00SHORT", false},
	}

	for _, tt := range tests {
		if got := ibanValid(tt.iban); got != tt.want {
			t.Errorf("ibanValid(%q) = %v, want %v", tt.iban, got, tt.want)
		}
	}
}
