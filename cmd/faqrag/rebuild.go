package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"faq-rag/internal/helper"
	"faq-rag/internal/loader"
)

var dryRun bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Load the knowledge base, embed it and replace the saved index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dryRun {
			records, err := loader.LoadAll(newLoader(cfg).Records())
			if err != nil {
				return err
			}
			helper.PrettyPrint(os.Stdout, records)
			log.Info().Int("records", len(records)).Msg("Dry run, nothing embedded")
			return nil
		}

		c, err := newComponents(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.orchestrator.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d records (%d dimensions) from %s\n", stats.Records, stats.Dimensions, c.loader.Path())
		return nil
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the loaded records without embedding or saving")
}
