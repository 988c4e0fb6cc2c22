package cli

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
	"github.com/CrispStrobe/filen-cli/internal/transfer"
)

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatModified(millis int64) string {
	if millis <= 0 {
		return "-"
	}
	return time.UnixMilli(millis).Local().Format("2006-01-02 15:04")
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := "/"
			if len(args) == 1 {
				remotePath = args[0]
			}
			d, err := openDrive()
			if err != nil {
				return err
			}
			folder, err := d.ResolveFolder(GetContext(), remotePath)
			if err != nil {
				return err
			}
			listing, err := d.List(GetContext(), folder.UUID)
			if err != nil {
				return err
			}

			for _, child := range listing.Folders {
				if long {
					fmt.Printf("%10s  %16s  %s/\n", "-", "-", child.Name)
				} else {
					fmt.Printf("%s/\n", child.Name)
				}
			}
			for _, file := range listing.Files {
				if long {
					fmt.Printf("%10s  %16s  %s\n", formatSize(file.Size), formatModified(file.LastModified), file.Name)
				} else {
					fmt.Println(file.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show sizes and modification times")
	return cmd
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a remote folder, including missing parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			folder, err := d.MkdirAll(GetContext(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s)\n", drive.NormalizePath(args[0]), folder.UUID)
			return nil
		},
	}
}

// newMvCmd creates the 'mv' command.
func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination-folder>",
		Short: "Move a remote file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, file, err := d.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			dest, err := d.ResolveFolder(ctx, args[1])
			if err != nil {
				return err
			}
			if folder != nil {
				return d.MoveFolder(ctx, folder, dest.UUID)
			}
			return d.MoveFile(ctx, file, dest.UUID)
		},
	}
}

// newCpCmd creates the 'cp' command. Filen has no server-side copy, so
// this streams the file down and uploads it again under the new path.
func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source-file> <destination>",
		Short: "Copy a remote file (download and re-upload)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()
			log := GetLogger()

			file, err := d.ResolveFile(ctx, args[0])
			if err != nil {
				return err
			}

			// A destination naming an existing folder keeps the source
			// name; anything else is parent path plus new name.
			destDir := drive.NormalizePath(args[1])
			destName := file.Name
			if _, err := d.ResolveFolder(ctx, destDir); err != nil {
				destName = path.Base(destDir)
				destDir = path.Dir(destDir)
			}
			parent, err := d.MkdirAll(ctx, destDir)
			if err != nil {
				return err
			}

			tmp, err := os.CreateTemp("", "filen-cp-*")
			if err != nil {
				return err
			}
			tmpPath := tmp.Name()
			tmp.Close()
			defer os.Remove(tmpPath)

			if err := transfer.NewDownloader(d, log).DownloadFile(ctx, file, tmpPath, -1, nil); err != nil {
				return err
			}
			if _, err := transfer.NewUploader(d, log).UploadFile(ctx, tmpPath, parent, destName, nil, nil); err != nil {
				return err
			}
			fmt.Printf("Copied %s to %s\n", drive.NormalizePath(args[0]), path.Join(destDir, destName))
			return nil
		},
	}
}

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a remote file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, file, err := d.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if folder != nil {
				return d.RenameFolder(ctx, folder, args[1])
			}
			return d.RenameFile(ctx, file, args[1])
		},
	}
}

// newTrashCmd creates the 'trash' command.
func newTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash <path>",
		Short: "Move a remote file or folder to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, file, err := d.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if folder != nil {
				return d.TrashFolder(ctx, folder)
			}
			return d.TrashFile(ctx, file)
		},
	}
}

// newDeletePathCmd creates the 'delete-path' command.
func newDeletePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-path <path>",
		Short: "Permanently delete a remote file or folder",
		Long: `Permanently delete the entry at the given path, bypassing the trash.
This cannot be undone. Asks for confirmation unless --force is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, file, err := d.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if !confirm(fmt.Sprintf("Permanently delete %s?", drive.NormalizePath(args[0]))) {
				fmt.Println("Aborted")
				return nil
			}
			if folder != nil {
				return d.DeleteFolderPermanent(ctx, folder.UUID)
			}
			return d.DeleteFilePermanent(ctx, file.UUID)
		},
	}
}

// newListTrashCmd creates the 'list-trash' command.
func newListTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-trash",
		Short: "List the trash contents with their UUIDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			listing, err := d.ListTrash(GetContext())
			if err != nil {
				return err
			}
			for _, folder := range listing.Folders {
				fmt.Printf("%s  %s/\n", folder.UUID, folder.Name)
			}
			for _, file := range listing.Files {
				fmt.Printf("%s  %s\n", file.UUID, file.Name)
			}
			return nil
		},
	}
}

// newRestoreUUIDCmd creates the 'restore-uuid' command.
func newRestoreUUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-uuid <uuid>",
		Short: "Restore a trashed entry by its UUID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			listing, err := d.ListTrash(ctx)
			if err != nil {
				return err
			}
			return restoreFromTrash(ctx, d, listing, args[0], GetLogger())
		},
	}
}

// newRestorePathCmd creates the 'restore-path' command.
func newRestorePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-path <path>",
		Short: "Restore a trashed entry by its former name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			name := path.Base(drive.NormalizePath(args[0]))
			listing, err := d.ListTrash(ctx)
			if err != nil {
				return err
			}
			// Folder beats file on a name collision, matching path
			// resolution in the live tree.
			for _, folder := range listing.Folders {
				if folder.Name == name {
					return restoreFromTrash(ctx, d, listing, folder.UUID, GetLogger())
				}
			}
			for _, file := range listing.Files {
				if file.Name == name {
					return restoreFromTrash(ctx, d, listing, file.UUID, GetLogger())
				}
			}
			return fmt.Errorf("no trashed entry named %q", name)
		},
	}
}

func restoreFromTrash(ctx context.Context, d *drive.Drive, listing *drive.Listing, uuid string, log *logging.Logger) error {
	for _, folder := range listing.Folders {
		if folder.UUID == uuid {
			if err := d.RestoreFolder(ctx, uuid); err != nil {
				return err
			}
			log.Info().Str("uuid", uuid).Str("name", folder.Name).Msg("restored folder")
			return nil
		}
	}
	for _, file := range listing.Files {
		if file.UUID == uuid {
			if err := d.RestoreFile(ctx, uuid); err != nil {
				return err
			}
			log.Info().Str("uuid", uuid).Str("name", file.Name).Msg("restored file")
			return nil
		}
	}
	return fmt.Errorf("uuid %s is not in the trash", uuid)
}
