package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var raw bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the saved index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newComponents(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.orchestrator.Open(cmd.Context()); err != nil {
			return err
		}
		ans, err := c.orchestrator.Ask(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		if raw {
			fmt.Println(ans.Text)
			return nil
		}
		out, err := glamour.Render(ans.Text, "dark")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to render answer")
			out = ans.Text + "\n"
		}
		fmt.Print(out)
		if ans.Declined {
			color.Yellow("No matching entry in the knowledge base.")
			return nil
		}
		color.Cyan("Sources:")
		for _, s := range ans.Sources {
			fmt.Printf("  - %s (row %d)\n", s.Source, s.Row)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&raw, "raw", false, "print the answer text without rendering")
}
