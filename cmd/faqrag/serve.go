package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"faq-rag/internal/api"
	"faq-rag/internal/api/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rebuild and ask endpoints over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newComponents(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.orchestrator.Open(cmd.Context()); err != nil {
			return err
		}

		app := api.SetupRouter(handlers.NewFAQHandler(c.orchestrator))
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("address", cfg.Server.Addr).Msg("Server starting")
			errCh <- app.Listen(cfg.Server.Addr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-quit:
		}

		log.Info().Msg("Shutting down server")
		return app.Shutdown()
	},
}
