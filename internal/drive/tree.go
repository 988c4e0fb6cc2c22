package drive

import (
	"context"
	"encoding/json"
	"path"
)

// SubtreeFile is one file found under a subtree root, with its path
// relative to that root in slash form.
type SubtreeFile struct {
	File    *File
	RelPath string
}

// Subtree fetches every file under a folder in a single bulk call and
// reconstructs each file's relative path by walking its parent chain.
// Files whose chain does not reach the root are discarded; folders no
// key can decrypt contribute the placeholder name to the path.
func (d *Drive) Subtree(ctx context.Context, root *Folder) ([]SubtreeFile, error) {
	tree, err := d.api.DirTree(ctx, root.UUID)
	if err != nil {
		return nil, err
	}
	masterKeys := d.creds.MasterKeyList()

	type treeFolder struct {
		name   string
		parent string
	}
	folders := make(map[string]treeFolder, len(tree.Folders))
	for _, rec := range tree.Folders {
		name := EncryptedName
		if rec.UUID == root.UUID {
			name = root.Name
		} else if plaintext, ok := decryptWithAny(rec.Name, masterKeys); ok {
			name = folderNameFromPlaintext(plaintext)
		}
		folders[rec.UUID] = treeFolder{name: name, parent: rec.Parent}
	}

	var files []SubtreeFile
	for i := range tree.Files {
		rec := &tree.Files[i]
		file := &File{
			UUID:       rec.UUID,
			Name:       EncryptedName,
			ParentUUID: rec.Parent,
			Chunks:     rec.Chunks,
			Region:     rec.Region,
			Bucket:     rec.Bucket,
			Version:    rec.Version,
		}
		if plaintext, ok := decryptWithAny(rec.Metadata, masterKeys); ok {
			var meta FileMetadata
			if err := json.Unmarshal([]byte(plaintext), &meta); err == nil && meta.Name != "" {
				file.Name = meta.Name
				file.Size = meta.Size
				file.MIME = meta.MIME
				file.Key = meta.Key
				file.LastModified = meta.LastModified
				file.Hash = meta.Hash
			}
		}

		rel, ok := relativePath(rec.Parent, file.Name, root.UUID, func(uuid string) (string, string, bool) {
			f, found := folders[uuid]
			return f.name, f.parent, found
		})
		if !ok {
			continue
		}
		files = append(files, SubtreeFile{File: file, RelPath: rel})
	}
	return files, nil
}

// relativePath walks the parent chain up to the root, building the
// slash-joined path. It reports false when the chain leaves the tree or
// loops.
func relativePath(parent, name, rootUUID string, lookup func(string) (string, string, bool)) (string, bool) {
	segments := []string{name}
	seen := make(map[string]bool)
	for parent != rootUUID {
		if seen[parent] {
			return "", false
		}
		seen[parent] = true
		folderName, next, ok := lookup(parent)
		if !ok {
			return "", false
		}
		segments = append([]string{folderName}, segments...)
		parent = next
	}
	return path.Join(segments...), true
}
