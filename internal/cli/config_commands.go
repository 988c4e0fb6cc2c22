package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/config"
)

// newConfigCmd creates the 'config' command.
func newConfigCmd() *cobra.Command {
	var (
		gatewayURL string
		ingestURL  string
		egestURL   string
		logLevel   string
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change client settings",
		Long: `Without flags, print the effective settings. With flags, update the
given fields in ~/.filen-cli/settings.ini. The endpoint URLs only need
changing for testing against a different gateway.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}

			changed := false
			if gatewayURL != "" {
				settings.GatewayURL, changed = gatewayURL, true
			}
			if ingestURL != "" {
				settings.IngestURL, changed = ingestURL, true
			}
			if egestURL != "" {
				settings.EgestURL, changed = egestURL, true
			}
			if logLevel != "" {
				settings.LogLevel, changed = logLevel, true
			}
			if logFile != "" {
				settings.LogFile, changed = logFile, true
			}

			if changed {
				if err := config.SaveSettings(settings); err != nil {
					return err
				}
				fmt.Println("Saved.")
			}
			fmt.Printf("Gateway:   %s\nIngest:    %s\nEgest:     %s\nLog level: %s\n",
				settings.GatewayURL, settings.IngestURL, settings.EgestURL, settings.LogLevel)
			if settings.LogFile != "" {
				fmt.Printf("Log file:  %s\n", settings.LogFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "API gateway base URL")
	cmd.Flags().StringVar(&ingestURL, "ingest-url", "", "Chunk upload base URL")
	cmd.Flags().StringVar(&egestURL, "egest-url", "", "Chunk download base URL")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	return cmd
}
