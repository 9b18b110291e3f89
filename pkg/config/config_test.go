package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batcher.BatchSize != 32 {
		t.Errorf("expected batch size 32, got %d", cfg.Batcher.BatchSize)
	}
	if cfg.Batcher.MaxItemLength != 1000 {
		t.Errorf("expected max item length 1000, got %d", cfg.Batcher.MaxItemLength)
	}
	if cfg.Engine.Mode != "local" {
		t.Errorf("expected local engine, got %q", cfg.Engine.Mode)
	}
	if cfg.Postgres.Enabled || cfg.Kafka.Enabled || cfg.Redis.Enabled {
		t.Error("expected external services to be disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  requestTimeout: 5s
batcher:
  engineName: remote-en
  batchSize: 8
engine:
  mode: remote
  addr: engine:9400
redis:
  enabled: true
  cacheTTL: 1h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Batcher.EngineName != "remote-en" || cfg.Batcher.BatchSize != 8 {
		t.Errorf("batcher section not applied: %+v", cfg.Batcher)
	}
	if cfg.Batcher.Language != "en" {
		t.Errorf("expected unset fields to keep defaults, got language %q", cfg.Batcher.Language)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != time.Hour {
		t.Errorf("redis section not applied: %+v", cfg.Redis)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SA_SERVER_PORT", "7070")
	t.Setenv("SA_BATCHER_BATCH_SIZE", "4")
	t.Setenv("SA_KAFKA_ENABLED", "true")
	t.Setenv("SA_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SA_REDIS_ENABLED", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Batcher.BatchSize != 4 {
		t.Errorf("expected batch size 4, got %d", cfg.Batcher.BatchSize)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("kafka overrides not applied: %+v", cfg.Kafka)
	}
	if cfg.Redis.Enabled {
		t.Error("expected an unparsable bool to keep the default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero batch size", "batcher:\n  batchSize: -1\n", "batchSize"},
		{"zero max length", "batcher:\n  maxItemLength: -5\n", "maxItemLength"},
		{"unknown mode", "engine:\n  mode: cloud\n", "engine.mode"},
		{"remote without addr", "engine:\n  mode: remote\n  addr: \"\"\n", "engine.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestGeneration(t *testing.T) {
	base := BatcherConfig{EngineName: "local", Language: "en", MaxItemLength: 1000, BatchSize: 32}
	same := base
	same.BatchSize = 8
	if base.Generation() != same.Generation() {
		t.Error("batch size must not change the generation")
	}
	other := base
	other.Language = "de"
	if base.Generation() == other.Generation() {
		t.Error("language must change the generation")
	}
	if len(base.Generation()) != 12 {
		t.Errorf("expected a 12 character digest, got %q", base.Generation())
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=d sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
