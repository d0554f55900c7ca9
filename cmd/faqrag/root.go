package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"faq-rag/internal/config"
	"faq-rag/internal/db"
	"faq-rag/internal/embedding"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/loader"
	"faq-rag/internal/rag"
	"faq-rag/internal/vectorindex"
)

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "faqrag",
	Short:         "Answer questions over an FAQ knowledge base",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return &config.ConfigError{Field: "log_level", Reason: "unknown level " + cfg.LogLevel, Err: err}
		}
		if debug {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		log.Debug().Interface("config", cfg.Masked()).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(rebuildCmd, askCmd, serveCmd, showConfigCmd)
}

// components holds everything built from the config for one command run.
type components struct {
	loader       *loader.Loader
	orchestrator *rag.Orchestrator
	bunDB        *bun.DB
}

func (c *components) Close() {
	if c.bunDB != nil {
		if err := c.bunDB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

func newLoader(cfg *config.Config) *loader.Loader {
	var opts []loader.Option
	if d := []rune(cfg.KnowledgeBase.Delimiter); len(d) == 1 {
		opts = append(opts, loader.WithDelimiter(d[0]))
	}
	if cfg.KnowledgeBase.Sheet != "" {
		opts = append(opts, loader.WithSheet(cfg.KnowledgeBase.Sheet))
	}
	if cfg.KnowledgeBase.Markdown {
		opts = append(opts, loader.WithMarkdown())
	}
	return loader.New(cfg.KnowledgeBase.Path, cfg.KnowledgeBase.SourceColumn, opts...)
}

func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{loader: newLoader(cfg)}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	embedModel := embedding.New(embedder, cfg.RAG.MaxEmbedChars)

	var store vectorindex.Store
	switch cfg.RAG.Store {
	case config.StorePostgres:
		var sqldb *sql.DB
		sqldb, err = db.ConnectDB(cfg.Database.URL, cfg.Database.Password)
		if err != nil {
			return nil, err
		}
		c.bunDB = db.NewDB(sqldb, cfg.Database.Debug)
		store, err = db.NewStore(ctx, c.bunDB, cfg.Database.Table)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
	default:
		store = vectorindex.NewFileStore(cfg.RAG.IndexPath, cfg.RAG.Compress, cfg.RAG.EncryptionKey)
	}

	model, err := llmservice.NewModel(&cfg.InferenceLLM)
	if err != nil {
		c.Close()
		return nil, err
	}
	generator := llmservice.New(model,
		llmservice.WithTemperature(cfg.InferenceLLM.Temperature),
		llmservice.WithTimeout(cfg.InferenceLLM.Timeout()),
		llmservice.WithModelName(cfg.InferenceLLM.Model),
	)

	c.orchestrator = rag.New(c.loader, embedModel, store, generator,
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithContextLimit(cfg.RAG.ContextCharLimit),
		rag.WithCollectionName(cfg.RAG.CollectionName),
	)
	return c, nil
}
