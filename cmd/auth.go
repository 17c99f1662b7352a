package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		check    bool
		settings = config.DefaultSettings()
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize mailpilot to access your Gmail account",
		Long: `Run the OAuth authorization flow and cache the resulting token. Visit the
printed URL, grant access, and paste the authorization code back.

Use --check to verify the cached token without starting a new flow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := resolveSettings(cmd, &settings); err != nil {
				return err
			}

			if check {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := google.CheckAuth(ctx, settings.CredentialsFile, settings.TokenFile); err != nil {
					return fmt.Errorf("not authenticated: %w", err)
				}
				fmt.Println("Authenticated.")
				return nil
			}

			conf, err := google.LoadConfig(settings.CredentialsFile)
			if err != nil {
				return fmt.Errorf("failed to load OAuth client secret: %w", err)
			}

			fmt.Printf("Visit the following URL to authorize mailpilot:\n\n  %s\n\n", google.AuthURL(conf))
			fmt.Print("Enter the authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := google.Exchange(ctx, conf, code, settings.TokenFile); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Printf("Token saved to %s\n", settings.TokenFile)
			return nil
		},
	}

	registerSettingsFlags(cmd, &settings)
	cmd.Flags().BoolVar(&check, "check", false, "Check whether the cached token is usable")

	return cmd
}
