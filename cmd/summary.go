package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/server"
	"github.com/mailpilot/mailpilot/internal/tools/mailtools"
)

func newSummaryCmd() *cobra.Command {
	var (
		hours    int
		limit    int
		asJSON   bool
		settings = config.DefaultSettings()
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the daily inbox digest and exit",
		Long: `Fetch unread messages from the lookback window, bucket them into the
configured categories, and print a digest to stdout. With --json the
structured summary is printed instead of the text rendering.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := resolveSettings(cmd, &settings)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("hours") {
				hours = settings.LookbackHours
			}
			if !cmd.Flags().Changed("limit") {
				limit = settings.HighlightLimit
			}

			ctx, cancel := context.WithTimeout(context.Background(), settings.GatewayTimeout)
			defer cancel()

			sc := server.NewServerContext(ctx, settings, categories, setupLogger(false))
			defer sc.Shutdown()

			sum, text, err := mailtools.DailySummary(ctx, sc.ToolDeps(), hours, limit)
			if err != nil {
				return fmt.Errorf("failed to build summary: %w", err)
			}
			if m := sc.Metrics(); m != nil {
				m.RecordDigest(ctx, instrumentation.TriggerCLI)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			fmt.Println(text)
			return nil
		},
	}

	registerSettingsFlags(cmd, &settings)
	cmd.Flags().IntVar(&hours, "hours", 24, "Lookback window in hours")
	cmd.Flags().IntVar(&limit, "limit", 5, "Most-recent highlights per category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured summary as JSON")

	return cmd
}
