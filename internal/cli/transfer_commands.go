package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/batch"
	"github.com/CrispStrobe/filen-cli/internal/transfer"
)

// transferFlags are the options shared by upload and download.
type transferFlags struct {
	target             string
	onConflict         string
	recursive          bool
	noProgress         bool
	preserveTimestamps bool
	include            []string
	exclude            []string
}

func (f *transferFlags) register(cmd *cobra.Command, targetUsage string) {
	cmd.Flags().StringVarP(&f.target, "target", "t", "", targetUsage)
	cmd.Flags().StringVar(&f.onConflict, "on-conflict", "skip", "Conflict policy: skip, overwrite or newer")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "r", false, "Descend into directories")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable progress bars")
	cmd.Flags().StringArrayVar(&f.include, "include", nil, "Only transfer files matching this glob (repeatable)")
	cmd.Flags().StringArrayVar(&f.exclude, "exclude", nil, "Skip files matching this glob (repeatable)")
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var flags transferFlags

	cmd := &cobra.Command{
		Use:   "upload <local-path>...",
		Short: "Upload files or directories as a resumable batch",
		Long: `Upload local files into a remote folder. Sources may be glob
patterns; directories need --recursive. An interrupted run keeps its
state under ~/.filen-cli/batch_states and rerunning the identical
command resumes from the last stored chunk.

Examples:
  filen upload report.pdf --target /documents
  filen upload ./photos --recursive --target /backup --exclude "*.tmp"
  filen upload "*.csv" --target /data --on-conflict newer`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.target == "" {
				flags.target = "/"
			}
			runner, err := openRunner(flags.onConflict, flags.recursive, flags.noProgress,
				flags.preserveTimestamps, flags.include, flags.exclude)
			if err != nil {
				return err
			}
			state, err := runner.Upload(GetContext(), args, flags.target)
			if err != nil {
				return err
			}
			return printBatchResult(state)
		},
	}

	flags.register(cmd, "Remote destination folder")
	return cmd
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var flags transferFlags
	var verify bool

	cmd := &cobra.Command{
		Use:   "download <remote-path>...",
		Short: "Download remote files or folders as a resumable batch",
		Long: `Download remote files into a local directory. A remote folder needs
--recursive and is fetched through a single bulk tree listing.

Examples:
  filen download /documents/report.pdf --target ./downloads
  filen download /backup --recursive --target ./restore --verify`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.target == "" {
				flags.target = "."
			}
			runner, err := openRunner(flags.onConflict, flags.recursive, flags.noProgress,
				flags.preserveTimestamps, flags.include, flags.exclude)
			if err != nil {
				return err
			}
			runner.VerifyDownloads = verify
			state, err := runner.Download(GetContext(), args, flags.target)
			if err != nil {
				return err
			}
			return printBatchResult(state)
		},
	}

	flags.register(cmd, "Local destination directory")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check downloads against their recorded SHA-512")
	cmd.Flags().BoolVar(&flags.preserveTimestamps, "preserve-timestamps", false, "Stamp files with the remote modification time")
	return cmd
}

// newDownloadPathCmd creates the 'download-path' command.
func newDownloadPathCmd() *cobra.Command {
	var output string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "download-path <remote-path>",
		Short: "Download a single remote file to a chosen local name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			file, err := d.ResolveFile(ctx, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = file.Name
			}

			dl := transfer.NewDownloader(d, GetLogger())
			dl.ShowProgress = !noProgress
			if err := dl.DownloadFile(ctx, file, output, -1, nil); err != nil {
				return err
			}
			fmt.Printf("Downloaded %s to %s\n", file.Name, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file name (defaults to the remote name)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// newVerifyCmd creates the 'verify' command.
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <local-path> <remote-path>",
		Short: "Check a local file against the remote content hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			file, err := d.ResolveFile(GetContext(), args[1])
			if err != nil {
				return err
			}
			if err := transfer.Verify(args[0], file); err != nil {
				return err
			}
			fmt.Printf("%s matches %s\n", filepath.Base(args[0]), args[1])
			return nil
		},
	}
}

// newBatchesCmd creates the 'batches' command.
func newBatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List interrupted batches awaiting resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := batch.ListStates()
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Println("No pending batches")
				return nil
			}
			for _, state := range states {
				fmt.Printf("%s  %-8s  %s  (updated %s)\n", state.ID, state.Operation, state.Target, state.UpdatedAt)
				for status, count := range state.Summary() {
					fmt.Printf("    %-17s %d\n", status, count)
				}
			}
			return nil
		},
	}
}
