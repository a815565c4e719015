package objstore

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/corpus/internal/config"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"plain host port", "localhost:9000", "localhost:9000"},
		{"http url", "http://minio:9000", "minio:9000"},
		{"https url", "https://storage.example.com", "storage.example.com"},
		{"trailing slash", "http://minio:9000/", "minio:9000"},
		{"surrounding spaces", "  minio:9000  ", "minio:9000"},
		{"empty", "", ""},
		{"scheme only", "http://", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEndpoint(tt.endpoint); got != tt.want {
				t.Errorf("NormalizeEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ObjectStoreConfig
	}{
		{"empty endpoint", config.ObjectStoreConfig{Bucket: "documents"}},
		{"scheme only endpoint", config.ObjectStoreConfig{Endpoint: "https://", Bucket: "documents"}},
		{"empty bucket", config.ObjectStoreConfig{Endpoint: "localhost:9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected config error, got nil")
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	client, err := New(config.ObjectStoreConfig{
		Endpoint: "localhost:9000",
		Bucket:   "documents",
		Folder:   "uploads/",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	key := client.ObjectKey("report.pdf")
	if !strings.HasPrefix(key, "uploads/") {
		t.Errorf("expected folder prefix, got %q", key)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Errorf("expected .pdf suffix, got %q", key)
	}

	base := strings.TrimSuffix(strings.TrimPrefix(key, "uploads/"), ".pdf")
	if _, err := uuid.Parse(base); err != nil {
		t.Errorf("expected uuid object name, got %q: %v", base, err)
	}
}

func TestObjectKeyExtensionHandling(t *testing.T) {
	client, err := New(config.ObjectStoreConfig{
		Endpoint: "localhost:9000",
		Bucket:   "documents",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name     string
		filename string
		suffix   string
	}{
		{"pdf kept", "contract.pdf", ".pdf"},
		{"no extension defaults to pdf", "contract", ".pdf"},
		{"nested name keeps last extension", "archive.tar.gz", ".gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := client.ObjectKey(tt.filename)
			if !strings.HasSuffix(key, tt.suffix) {
				t.Errorf("ObjectKey(%q) = %q, want suffix %q", tt.filename, key, tt.suffix)
			}
			if strings.Contains(key, "/") {
				t.Errorf("expected no folder prefix without config, got %q", key)
			}
		})
	}
}

func TestObjectKeysAreUnique(t *testing.T) {
	client, err := New(config.ObjectStoreConfig{
		Endpoint: "localhost:9000",
		Bucket:   "documents",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := client.ObjectKey("doc.pdf")
		if seen[key] {
			t.Fatalf("duplicate object key %q", key)
		}
		seen[key] = true
	}
}
