package outlook

import (
	"context"
)

// KeySeparator joins parent and child folder names in a folder key.
const KeySeparator = "|"

// FolderMap maps folder keys to handles and remembers insertion order.
// Setting an existing key replaces the handle but keeps its position.
type FolderMap struct {
	keys    []string
	folders map[string]Folder
}

// NewFolderMap returns an empty map.
func NewFolderMap() *FolderMap {
	return &FolderMap{folders: make(map[string]Folder)}
}

// Set stores folder under key.
func (m *FolderMap) Set(key string, folder Folder) {
	if _, ok := m.folders[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.folders[key] = folder
}

// Get returns the folder stored under key.
func (m *FolderMap) Get(key string) (Folder, bool) {
	f, ok := m.folders[key]
	return f, ok
}

// Keys returns the keys in insertion order.
func (m *FolderMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of folders.
func (m *FolderMap) Len() int {
	return len(m.keys)
}

type pendingFolder struct {
	key    string
	folder Folder
}

// EnumerateFolders walks the subtree below root breadth first. Children of
// root are keyed by their own name, deeper folders by "parent|child". The
// root itself is not part of the result.
func EnumerateFolders(ctx context.Context, root Folder) (*FolderMap, error) {
	result := NewFolderMap()

	children, err := root.Folders(ctx)
	if err != nil {
		return nil, err
	}

	queue := make([]pendingFolder, 0, len(children))
	for _, child := range children {
		if child == nil {
			continue
		}
		result.Set(child.Name(), child)
		queue = append(queue, pendingFolder{key: child.Name(), folder: child})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		children, err := current.folder.Folders(ctx)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child == nil {
				continue
			}
			key := current.key + KeySeparator + child.Name()
			result.Set(key, child)
			queue = append(queue, pendingFolder{key: key, folder: child})
		}
	}

	return result, nil
}
