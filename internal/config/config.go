package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "./configs/config.yaml"

	defaultKnowledgeBasePath = "./data/faqs.csv"
	defaultIndexPath         = "./faq_index"
	defaultCollectionName    = "faq_collection"
	defaultTopK              = 4
	defaultMaxEmbedChars     = 2000
	defaultContextCharLimit  = 12000
	defaultTemperature       = 0.2
	defaultTimeoutSeconds    = 60
	defaultServerAddr        = ":8080"
	defaultTableName         = "faq_records"
	defaultInferenceBaseURL  = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultInferenceModel    = "gemini-1.5-flash"

	StoreFile     = "file"
	StorePostgres = "postgres"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

type Config struct {
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	EmbedLLM      LLMConfig           `yaml:"embed_llm"`
	InferenceLLM  LLMConfig           `yaml:"inference_llm"`
	RAG           RAGConfig           `yaml:"rag"`
	Database      DatabaseConfig      `yaml:"database"`
	Server        ServerConfig        `yaml:"server"`
	LogLevel      string              `yaml:"log_level"`
}

type KnowledgeBaseConfig struct {
	Path         string `yaml:"path"`
	SourceColumn string `yaml:"source_column"`
	Delimiter    string `yaml:"delimiter"`
	Sheet        string `yaml:"sheet"`
	Markdown     bool   `yaml:"markdown"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Key            string  `yaml:"key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type RAGConfig struct {
	Store            string `yaml:"store"`
	IndexPath        string `yaml:"index_path"`
	CollectionName   string `yaml:"collection_name"`
	Compress         bool   `yaml:"compress"`
	EncryptionKey    string `yaml:"encryption_key"`
	TopK             int    `yaml:"top_k"`
	MaxEmbedChars    int    `yaml:"max_embed_chars"`
	ContextCharLimit int    `yaml:"context_char_limit"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ConfigError reports an invalid or missing configuration value.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Timeout returns the bounded call timeout for the LLM.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	return &Config{
		KnowledgeBase: KnowledgeBaseConfig{
			Path:         defaultKnowledgeBasePath,
			SourceColumn: "prompt",
			Delimiter:    ",",
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderHash,
		},
		InferenceLLM: LLMConfig{
			Provider:       ProviderOpenAI,
			BaseURL:        defaultInferenceBaseURL,
			Model:          defaultInferenceModel,
			Temperature:    defaultTemperature,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		RAG: RAGConfig{
			Store:            StoreFile,
			IndexPath:        defaultIndexPath,
			CollectionName:   defaultCollectionName,
			TopK:             defaultTopK,
			MaxEmbedChars:    defaultMaxEmbedChars,
			ContextCharLimit: defaultContextCharLimit,
		},
		Database: DatabaseConfig{
			Table: defaultTableName,
		},
		Server: ServerConfig{
			Addr: defaultServerAddr,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the yaml file at path (optional when it does not exist),
// loads .env, applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: "file", Reason: "cannot parse " + path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults and environment only
	default:
		return nil, &ConfigError{Field: "file", Reason: "cannot read " + path, Err: err}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.KnowledgeBase.Path, "FAQRAG_KNOWLEDGE_BASE")
	setString(&cfg.KnowledgeBase.SourceColumn, "FAQRAG_SOURCE_COLUMN")
	setString(&cfg.EmbedLLM.Provider, "FAQRAG_EMBED_PROVIDER")
	setString(&cfg.EmbedLLM.BaseURL, "FAQRAG_EMBED_BASE_URL")
	setString(&cfg.EmbedLLM.Model, "FAQRAG_EMBED_MODEL")
	setString(&cfg.EmbedLLM.Key, "FAQRAG_EMBED_KEY")
	setString(&cfg.InferenceLLM.Provider, "FAQRAG_INFERENCE_PROVIDER")
	setString(&cfg.InferenceLLM.BaseURL, "FAQRAG_INFERENCE_BASE_URL")
	setString(&cfg.InferenceLLM.Model, "FAQRAG_INFERENCE_MODEL")
	setString(&cfg.InferenceLLM.Key, "FAQRAG_INFERENCE_KEY")
	setString(&cfg.RAG.Store, "FAQRAG_STORE")
	setString(&cfg.RAG.IndexPath, "FAQRAG_INDEX_PATH")
	setString(&cfg.RAG.EncryptionKey, "FAQRAG_ENCRYPTION_KEY")
	setString(&cfg.Database.URL, "FAQRAG_DATABASE_URL")
	setString(&cfg.Database.Password, "FAQRAG_DATABASE_PASSWORD")
	setString(&cfg.Server.Addr, "FAQRAG_SERVER_ADDR")
	setString(&cfg.LogLevel, "FAQRAG_LOG_LEVEL")

	// fall back to the keys the hosted providers document
	if cfg.InferenceLLM.Key == "" {
		cfg.InferenceLLM.Key = firstEnv("GOOGLE_API_KEY", "OPENAI_API_KEY")
	}
	if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == ProviderOpenAI {
		cfg.EmbedLLM.Key = firstEnv("OPENAI_API_KEY", "GOOGLE_API_KEY")
	}

	if v := os.Getenv("FAQRAG_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "rag.top_k", Reason: "FAQRAG_TOP_K is not an integer", Err: err}
		}
		cfg.RAG.TopK = n
	}
	if v := os.Getenv("FAQRAG_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: "inference_llm.temperature", Reason: "FAQRAG_TEMPERATURE is not a number", Err: err}
		}
		cfg.InferenceLLM.Temperature = f
	}
	return nil
}

// Validate checks the config eagerly so a bad value fails at startup
// instead of on the first request.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.KnowledgeBase.Path) == "" {
		return &ConfigError{Field: "knowledge_base.path", Reason: "is required"}
	}
	if strings.TrimSpace(c.KnowledgeBase.SourceColumn) == "" {
		return &ConfigError{Field: "knowledge_base.source_column", Reason: "is required"}
	}
	if d := c.KnowledgeBase.Delimiter; d != "" && len([]rune(d)) != 1 {
		return &ConfigError{Field: "knowledge_base.delimiter", Reason: "must be a single character"}
	}

	if err := validateLLM("embed_llm", c.EmbedLLM, true); err != nil {
		return err
	}
	if err := validateLLM("inference_llm", c.InferenceLLM, false); err != nil {
		return err
	}
	if t := c.InferenceLLM.Temperature; t < 0 || t > 2 {
		return &ConfigError{Field: "inference_llm.temperature", Reason: "must be between 0 and 2"}
	}
	if c.InferenceLLM.TimeoutSeconds < 0 {
		return &ConfigError{Field: "inference_llm.timeout_seconds", Reason: "must not be negative"}
	}

	switch c.RAG.Store {
	case StoreFile:
		if strings.TrimSpace(c.RAG.IndexPath) == "" {
			return &ConfigError{Field: "rag.index_path", Reason: "is required for the file store"}
		}
	case StorePostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return &ConfigError{Field: "database.url", Reason: "is required for the postgres store"}
		}
		if strings.TrimSpace(c.Database.Table) == "" {
			return &ConfigError{Field: "database.table", Reason: "is required for the postgres store"}
		}
	default:
		return &ConfigError{Field: "rag.store", Reason: fmt.Sprintf("unknown store %q", c.RAG.Store)}
	}
	if strings.TrimSpace(c.RAG.CollectionName) == "" {
		return &ConfigError{Field: "rag.collection_name", Reason: "is required"}
	}
	if k := c.RAG.EncryptionKey; k != "" && len(k) != 32 {
		return &ConfigError{Field: "rag.encryption_key", Reason: "must be exactly 32 bytes"}
	}
	if c.RAG.TopK <= 0 {
		return &ConfigError{Field: "rag.top_k", Reason: "must be greater than zero"}
	}
	if c.RAG.MaxEmbedChars <= 0 {
		return &ConfigError{Field: "rag.max_embed_chars", Reason: "must be greater than zero"}
	}
	if c.RAG.ContextCharLimit < 0 {
		return &ConfigError{Field: "rag.context_char_limit", Reason: "must not be negative"}
	}
	return nil
}

func validateLLM(field string, c LLMConfig, embed bool) error {
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.Key) == "" {
			return &ConfigError{Field: field + ".key", Reason: "is required for the openai provider"}
		}
	case ProviderOllama:
		if strings.TrimSpace(c.BaseURL) == "" {
			return &ConfigError{Field: field + ".base_url", Reason: "is required for the ollama provider"}
		}
	case ProviderHash:
		if !embed {
			return &ConfigError{Field: field + ".provider", Reason: "hash can only be used for embeddings"}
		}
		return nil
	default:
		return &ConfigError{Field: field + ".provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &ConfigError{Field: field + ".model", Reason: "is required"}
	}
	return nil
}

// Masked returns a copy that is safe to log.
func (c Config) Masked() Config {
	c.EmbedLLM.Key = mask(c.EmbedLLM.Key)
	c.InferenceLLM.Key = mask(c.InferenceLLM.Key)
	c.RAG.EncryptionKey = mask(c.RAG.EncryptionKey)
	c.Database.Password = mask(c.Database.Password)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
