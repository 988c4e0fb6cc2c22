package drive

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Match is one hit from a recursive search. Exactly one of Folder and
// File is set.
type Match struct {
	Path   string
	Folder *Folder
	File   *File
}

// Find walks the subtree under root and returns every entry whose name
// matches the glob pattern, case-insensitively. The walk is iterative
// over an explicit stack so deep trees do not grow the call stack.
func (d *Drive) Find(ctx context.Context, root *Folder, rootPath, pattern string) ([]Match, error) {
	pattern = strings.ToLower(pattern)

	type frame struct {
		folder *Folder
		path   string
	}
	stack := []frame{{folder: root, path: NormalizePath(rootPath)}}
	var matches []Match

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		listing, err := d.List(ctx, current.folder.UUID)
		if err != nil {
			return nil, err
		}

		for _, folder := range listing.Folders {
			childPath := path.Join(current.path, folder.Name)
			if ok, err := path.Match(pattern, strings.ToLower(folder.Name)); err != nil {
				return nil, fmt.Errorf("bad search pattern %q: %w", pattern, err)
			} else if ok {
				matches = append(matches, Match{Path: childPath, Folder: folder})
			}
			stack = append(stack, frame{folder: folder, path: childPath})
		}
		for _, file := range listing.Files {
			if ok, _ := path.Match(pattern, strings.ToLower(file.Name)); ok {
				matches = append(matches, Match{Path: path.Join(current.path, file.Name), File: file})
			}
		}
	}
	return matches, nil
}

// Search finds entries whose names contain the query as a substring,
// case-insensitively.
func (d *Drive) Search(ctx context.Context, root *Folder, rootPath, query string) ([]Match, error) {
	return d.Find(ctx, root, rootPath, "*"+query+"*")
}

// Tree renders the subtree under root as indented lines with box
// drawing connectors, folders first within each level.
func (d *Drive) Tree(ctx context.Context, root *Folder, maxDepth int) ([]string, error) {
	lines := []string{root.Name}
	if err := d.treeLevel(ctx, root, "", 1, maxDepth, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (d *Drive) treeLevel(ctx context.Context, folder *Folder, prefix string, depth, maxDepth int, lines *[]string) error {
	if maxDepth > 0 && depth > maxDepth {
		return nil
	}
	listing, err := d.List(ctx, folder.UUID)
	if err != nil {
		return err
	}

	total := len(listing.Folders) + len(listing.Files)
	entry := 0
	connector := func() (string, string) {
		entry++
		if entry == total {
			return "└── ", "    "
		}
		return "├── ", "│   "
	}

	for _, child := range listing.Folders {
		branch, indent := connector()
		*lines = append(*lines, prefix+branch+child.Name+"/")
		if err := d.treeLevel(ctx, child, prefix+indent, depth+1, maxDepth, lines); err != nil {
			return err
		}
	}
	for _, file := range listing.Files {
		branch, _ := connector()
		*lines = append(*lines, prefix+branch+file.Name)
	}
	return nil
}
