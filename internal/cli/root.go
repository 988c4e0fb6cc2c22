// Package cli provides the command-line interface for filen.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

var (
	// Global flags
	verbose bool
	force   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// Version is set by the main package at startup.
var Version = "v1.0.0-dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filen",
		Short: "Client for the Filen end-to-end encrypted cloud",
		Long: `Filen CLI ` + Version + `
Batch transfers and a WebDAV bridge for Filen.io. All encryption and
decryption happens locally; the server only ever sees ciphertext.

Start with:
  filen login
  filen ls /
  filen upload ./report.pdf --target /documents
  filen webdav-start`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetLevelFromString("debug")
			} else if settings, err := config.LoadSettings(); err == nil {
				logging.SetLevelFromString(settings.LogLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompts, treat conflicts as overwrite")

	rootCmd.Version = Version
	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived %v, finishing the current chunk and saving state...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())

	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newCpCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newTrashCmd())
	rootCmd.AddCommand(newDeletePathCmd())
	rootCmd.AddCommand(newListTrashCmd())
	rootCmd.AddCommand(newRestoreUUIDCmd())
	rootCmd.AddCommand(newRestorePathCmd())

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newTreeCmd())

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newDownloadPathCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newBatchesCmd())

	rootCmd.AddCommand(newWebDAVStartCmd())
	rootCmd.AddCommand(newWebDAVStopCmd())
	rootCmd.AddCommand(newWebDAVStatusCmd())
	rootCmd.AddCommand(newWebDAVTestCmd())
	rootCmd.AddCommand(newWebDAVMountCmd())
	rootCmd.AddCommand(newWebDAVConfigCmd())
	rootCmd.AddCommand(newMountCmd())

	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return logger
}

// GetContext returns the global CLI context, cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
