package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
knowledge_base:
  path: faqs.csv
inference_llm:
  key: secret
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.KnowledgeBase.SourceColumn != "prompt" {
		t.Fatalf("expected default source column prompt, got %q", cfg.KnowledgeBase.SourceColumn)
	}
	if cfg.InferenceLLM.Temperature != 0.2 {
		t.Fatalf("expected default temperature 0.2, got %v", cfg.InferenceLLM.Temperature)
	}
	if cfg.RAG.TopK != 4 {
		t.Fatalf("expected default top_k 4, got %d", cfg.RAG.TopK)
	}
	if cfg.InferenceLLM.Timeout().Seconds() != 60 {
		t.Fatalf("expected 60s timeout, got %s", cfg.InferenceLLM.Timeout())
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
inference_llm:
  key: secret
`)
	t.Setenv("FAQRAG_KNOWLEDGE_BASE", "/tmp/other.csv")
	t.Setenv("FAQRAG_TOP_K", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.KnowledgeBase.Path != "/tmp/other.csv" {
		t.Fatalf("expected env path, got %q", cfg.KnowledgeBase.Path)
	}
	if cfg.RAG.TopK != 7 {
		t.Fatalf("expected top_k 7, got %d", cfg.RAG.TopK)
	}
}

func TestLoadConfigGoogleKeyFallback(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "from-env")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.InferenceLLM.Key != "from-env" {
		t.Fatalf("expected key from GOOGLE_API_KEY, got %q", cfg.InferenceLLM.Key)
	}
}

func TestValidateFailsFast(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"missing inference key", func(c *Config) { c.InferenceLLM.Key = "" }, "inference_llm.key"},
		{"unknown store", func(c *Config) { c.RAG.Store = "s3" }, "rag.store"},
		{"short encryption key", func(c *Config) { c.RAG.EncryptionKey = "short" }, "rag.encryption_key"},
		{"postgres without url", func(c *Config) { c.RAG.Store = StorePostgres }, "database.url"},
		{"hash for inference", func(c *Config) { c.InferenceLLM.Provider = ProviderHash }, "inference_llm.provider"},
		{"bad temperature", func(c *Config) { c.InferenceLLM.Temperature = 3 }, "inference_llm.temperature"},
		{"zero top k", func(c *Config) { c.RAG.TopK = 0 }, "rag.top_k"},
		{"long delimiter", func(c *Config) { c.KnowledgeBase.Delimiter = ";;" }, "knowledge_base.delimiter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.InferenceLLM.Key = "secret"
			tt.edit(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "rag: [unclosed")
	_, err := LoadConfig(path)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.InferenceLLM.Key = "secret"
	cfg.RAG.EncryptionKey = "0123456789abcdef0123456789abcdef"
	masked := cfg.Masked()
	if masked.InferenceLLM.Key == "secret" || masked.RAG.EncryptionKey == cfg.RAG.EncryptionKey {
		t.Fatalf("expected secrets to be masked")
	}
	if cfg.InferenceLLM.Key != "secret" {
		t.Fatalf("Masked must not modify the receiver")
	}
}
