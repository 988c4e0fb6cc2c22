package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/CrispStrobe/filen-cli/internal/drive"
)

// Filter restricts enumerated files by shell globs against the base
// name. An empty include list admits everything; exclude always wins.
type Filter struct {
	Include []string
	Exclude []string
}

// NewFilter validates the glob patterns up front so a typo fails the
// command instead of silently matching nothing.
func NewFilter(include, exclude []string) (*Filter, error) {
	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
	}
	if len(include) == 0 && len(exclude) == 0 {
		return nil, nil
	}
	return &Filter{Include: include, Exclude: exclude}, nil
}

// Admits reports whether a file with this base name passes the filter.
func (f *Filter) Admits(name string) bool {
	if f == nil {
		return true
	}
	for _, pattern := range f.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// LocalEntry is one local file slated for upload, with its slash-form
// path relative to the batch target.
type LocalEntry struct {
	LocalPath string
	RelPath   string
}

// RemoteEntry is one remote file slated for download.
type RemoteEntry struct {
	RemotePath string
	RelPath    string
}

// ExpandLocal glob-expands the source patterns into individual files.
// Directories are walked when recursive is set and skipped otherwise;
// the filter applies to file base names only.
func ExpandLocal(patterns []string, recursive bool, filter *Filter) ([]LocalEntry, error) {
	var entries []LocalEntry
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		if matches == nil {
			// Not a pattern match, but the literal path may still
			// exist, or be genuinely missing, which the runner reports
			// per item.
			matches = []string{pattern}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				if filter.Admits(filepath.Base(match)) {
					entries = append(entries, LocalEntry{LocalPath: match, RelPath: filepath.Base(match)})
				}
				continue
			}
			if !recursive {
				continue
			}
			root := match
			err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !filter.Admits(d.Name()) {
					return nil
				}
				rel, err := filepath.Rel(root, p)
				if err != nil {
					return err
				}
				entries = append(entries, LocalEntry{
					LocalPath: p,
					RelPath:   path.Join(filepath.Base(root), filepath.ToSlash(rel)),
				})
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", root, err)
			}
		}
	}
	return entries, nil
}

// ExpandRemote resolves the remote paths into individual files. A path
// naming a folder is expanded through the bulk tree endpoint when
// recursive is set and skipped otherwise. Unresolvable paths pass
// through so the runner records them as missing.
func ExpandRemote(ctx context.Context, d *drive.Drive, remotePaths []string, recursive bool, filter *Filter) ([]RemoteEntry, error) {
	var entries []RemoteEntry
	for _, remotePath := range remotePaths {
		remotePath = drive.NormalizePath(remotePath)
		folder, file, err := d.Resolve(ctx, remotePath)
		if err != nil {
			var notFound *drive.NotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
			entries = append(entries, RemoteEntry{RemotePath: remotePath, RelPath: path.Base(remotePath)})
			continue
		}

		if file != nil && folder == nil {
			if filter.Admits(file.Name) {
				entries = append(entries, RemoteEntry{RemotePath: remotePath, RelPath: file.Name})
			}
			continue
		}
		if !recursive {
			continue
		}
		subtree, err := d.Subtree(ctx, folder)
		if err != nil {
			return nil, err
		}
		for _, sf := range subtree {
			if !filter.Admits(sf.File.Name) {
				continue
			}
			entries = append(entries, RemoteEntry{
				RemotePath: path.Join(remotePath, sf.RelPath),
				RelPath:    path.Join(folder.Name, sf.RelPath),
			})
		}
	}
	return entries, nil
}
