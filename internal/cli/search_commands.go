package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/drive"
)

// newResolveCmd creates the 'resolve' command.
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a remote path to its node",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			folder, file, err := d.Resolve(GetContext(), args[0])
			if err != nil {
				return err
			}
			if folder != nil {
				fmt.Printf("folder  %s  %s\n", folder.UUID, folder.Name)
				return nil
			}
			fmt.Printf("file    %s  %s  %s  %s\n",
				file.UUID, file.Name, formatSize(file.Size), formatModified(file.LastModified))
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

// newSearchCmd creates the 'search' command.
func newSearchCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the remote tree by substring",
		Long: `Walk the remote tree and print every entry whose name contains the
query, case-insensitively. The search runs client-side over decrypted
listings; the server never sees the query.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, err := d.ResolveFolder(ctx, root)
			if err != nil {
				return err
			}
			matches, err := d.Search(ctx, folder, root, args[0])
			if err != nil {
				return err
			}
			printMatches(matches)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "/", "Folder to search under")
	return cmd
}

// newFindCmd creates the 'find' command.
func newFindCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "find <glob>",
		Short: "Find remote entries by name glob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDrive()
			if err != nil {
				return err
			}
			ctx := GetContext()

			folder, err := d.ResolveFolder(ctx, root)
			if err != nil {
				return err
			}
			matches, err := d.Find(ctx, folder, root, args[0])
			if err != nil {
				return err
			}
			printMatches(matches)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "/", "Folder to search under")
	return cmd
}

func printMatches(matches []drive.Match) {
	for _, match := range matches {
		if match.Folder != nil {
			fmt.Printf("%s/\n", match.Path)
		} else {
			fmt.Println(match.Path)
		}
	}
}

// newTreeCmd creates the 'tree' command.
func newTreeCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the remote tree",
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
			ctx := GetContext()

			folder, err := d.ResolveFolder(ctx, remotePath)
			if err != nil {
				return err
			}
			lines, err := d.Tree(ctx, folder, depth)
			if err != nil {
				return err
			}
			fmt.Println(drive.NormalizePath(remotePath))
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 3, "Maximum depth to descend")
	return cmd
}
