package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `endpoint: wss://stream.example.com/live
headers:
  X-Client: kiosk-7

engine:
  jitter_window: 250ms
  packet_timeout: 30s
  sample_window: 20
  idle_clip: idle.mp4

reconnect:
  max_attempts: 5
  backoff: 200ms
  max_backoff: 4s

journal:
  dataset: mediasync
  source: kiosk-7
  backend: s3
  path: my-bucket/journal
  region: us-east-1
  endpoint: https://minio.local
  s3_path_style: true
  policy: streaming
  flush_count: 50
  flush_interval: 2s

adapter:
  type: webhook
  url: https://hooks.example.com/mediasync
  headers:
    Authorization: Bearer token123
  secret: hmac-key
  timeout: 10s
  retries: 3

log:
  level: debug
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "endpoint", cfg.Endpoint, "wss://stream.example.com/live")
	assertEqual(t, "headers", cfg.Headers["X-Client"], "kiosk-7")

	if cfg.Engine.JitterWindow.Duration != 250*time.Millisecond {
		t.Errorf("jitter_window = %v", cfg.Engine.JitterWindow.Duration)
	}
	if cfg.Engine.PacketTimeout.Duration != 30*time.Second || cfg.Engine.SampleWindow != 20 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	assertEqual(t, "engine.idle_clip", cfg.Engine.IdleClip, "idle.mp4")

	if cfg.Reconnect.MaxAttempts == nil || *cfg.Reconnect.MaxAttempts != 5 {
		t.Error("expected reconnect.max_attempts=5")
	}
	if cfg.Reconnect.Backoff.Duration != 200*time.Millisecond || cfg.Reconnect.MaxBackoff.Duration != 4*time.Second {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}

	assertEqual(t, "journal.backend", cfg.Journal.Backend, "s3")
	assertEqual(t, "journal.path", cfg.Journal.Path, "my-bucket/journal")
	assertEqual(t, "journal.policy", cfg.Journal.Policy, "streaming")
	if !cfg.Journal.S3PathStyle || cfg.Journal.FlushCount != 50 || cfg.Journal.FlushInterval.Duration != 2*time.Second {
		t.Errorf("journal = %+v", cfg.Journal)
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.secret", cfg.Adapter.Secret, "hmac-key")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Error("expected adapter.retries=3")
	}
	assertEqual(t, "log.level", cfg.Log.Level, "debug")
}

func TestLoad_EmptyConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, "\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Endpoint != "" || cfg.Reconnect.MaxAttempts != nil {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/mediasync.yaml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MS_ENDPOINT", "ws://localhost:9000/ws")
	cfg, err := Load(writeTemp(t, "endpoint: ${MS_ENDPOINT}\nlog:\n  level: ${MS_LEVEL:-warn}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "endpoint", cfg.Endpoint, "ws://localhost:9000/ws")
	assertEqual(t, "log.level", cfg.Log.Level, "warn")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed", "{{invalid yaml", "invalid YAML"},
		{"unknown key", "endpoit: ws://x\n", "invalid YAML"},
		{"bad duration", "engine:\n  jitter_window: soon\n", "invalid duration"},
		{"http endpoint", "endpoint: http://example.com\n", "scheme must be ws or wss"},
		{"negative attempts", "reconnect:\n  max_attempts: -1\n", "max_attempts"},
		{"unknown backend", "journal:\n  backend: ftp\n", "journal.backend"},
		{"unknown policy", "journal:\n  policy: lazy\n", "journal.policy"},
		{"unknown adapter", "adapter:\n  type: kafka\n  url: x\n", "adapter.type"},
		{"adapter without url", "adapter:\n  type: redis\n", "adapter.url"},
		{"negative summary ttl", "adapter:\n  type: redis\n  url: redis://x\n  summary_ttl: -1s\n", "adapter.summary_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediasync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
