// Package sandbox defines the project model that's synchronized between
// contexts: the initial project description (modules and directories linked
// by their parent's short id), and the flattened path to entry snapshot that
// each context keeps.
package sandbox

import (
	"path"
	"sort"
	"strings"
	"time"
)

// EntryType distinguishes files from directories.
type EntryType string

const (
	// TypeFile is an entry with contents.
	TypeFile EntryType = "file"

	// TypeDirectory is an entry without contents. A directory only has an
	// entry of its own when nothing lives beneath it.
	TypeDirectory EntryType = "directory"
)

// Entry is a single file or directory in a Snapshot.
type Entry struct {
	Type EntryType `json:"type"`

	// Path is the absolute, slash separated path of the entry. It's the
	// entry's key in a Snapshot.
	Path string `json:"path"`

	ID               string `json:"id,omitempty"`
	ShortID          string `json:"shortid,omitempty"`
	Title            string `json:"title,omitempty"`
	DirectoryShortID string `json:"directoryShortid,omitempty"`

	// Code is the text of the file. For binary files, it's a reference to
	// where the contents can be downloaded from.
	Code      string    `json:"code,omitempty"`
	IsBinary  bool      `json:"isBinary,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`

	// ContentsHash is the base64 encoded sha512 hash of Code.
	ContentsHash string `json:"contentsHash,omitempty"`
}

// IsDir returns whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == TypeDirectory
}

// Snapshot maps paths to the entry at that path.
type Snapshot map[string]Entry

// Copy returns a copy of the snapshot that can be modified without affecting
// the original.
func (s Snapshot) Copy() Snapshot {
	snapshotCopy := Snapshot{}
	for k, v := range s {
		snapshotCopy[k] = v
	}
	return snapshotCopy
}

// Paths returns the paths in the snapshot in sorted order.
func (s Snapshot) Paths() []string {
	var paths []string
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Module is a file in the project description.
type Module struct {
	ID               string    `json:"id"`
	ShortID          string    `json:"shortid"`
	Title            string    `json:"title"`
	DirectoryShortID string    `json:"directoryShortid,omitempty"`
	Code             string    `json:"code"`
	IsBinary         bool      `json:"isBinary,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Entry converts the module into a file entry at the given path.
func (m Module) Entry(p string) Entry {
	return Entry{
		Type:             TypeFile,
		Path:             p,
		ID:               m.ID,
		ShortID:          m.ShortID,
		Title:            m.Title,
		DirectoryShortID: m.DirectoryShortID,
		Code:             m.Code,
		IsBinary:         m.IsBinary,
		UpdatedAt:        m.UpdatedAt,
	}
}

// Directory is a directory in the project description.
type Directory struct {
	ID               string `json:"id"`
	ShortID          string `json:"shortid"`
	Title            string `json:"title"`
	DirectoryShortID string `json:"directoryShortid,omitempty"`
}

// Entry converts the directory into a directory entry at the given path.
func (d Directory) Entry(p string) Entry {
	return Entry{
		Type:             TypeDirectory,
		Path:             p,
		ID:               d.ID,
		ShortID:          d.ShortID,
		Title:            d.Title,
		DirectoryShortID: d.DirectoryShortID,
	}
}

// Sandbox is the description of a project as it's loaded at startup.
// Modules and Directories reference their parent directory by its ShortID.
// An empty DirectoryShortID means that the item is at the root of the
// project.
type Sandbox struct {
	ID          string      `json:"id,omitempty"`
	Title       string      `json:"title,omitempty"`
	Modules     []Module    `json:"modules"`
	Directories []Directory `json:"directories"`
}

// ModulePath returns the absolute path of the module with the given id.
func (sb Sandbox) ModulePath(id string) (string, bool) {
	for _, m := range sb.Modules {
		if m.ID == id {
			return sb.resolve(m.Title, m.DirectoryShortID)
		}
	}
	return "", false
}

// DirectoryPath returns the absolute path of the directory with the given id.
func (sb Sandbox) DirectoryPath(id string) (string, bool) {
	for _, d := range sb.Directories {
		if d.ID == id {
			return sb.resolve(d.Title, d.DirectoryShortID)
		}
	}
	return "", false
}

// resolve walks up the parent directories of an item. Items whose parent
// chain is dangling or cyclic can't be placed in the tree.
func (sb Sandbox) resolve(title, parentShortID string) (string, bool) {
	byShortID := map[string]Directory{}
	for _, d := range sb.Directories {
		byShortID[d.ShortID] = d
	}

	segments := []string{title}
	visited := map[string]struct{}{}
	for parentShortID != "" {
		if _, ok := visited[parentShortID]; ok {
			return "", false
		}
		visited[parentShortID] = struct{}{}

		parent, ok := byShortID[parentShortID]
		if !ok {
			return "", false
		}
		segments = append(segments, parent.Title)
		parentShortID = parent.DirectoryShortID
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/"), true
}

// Snapshot flattens the project into a path keyed snapshot. Every module
// that can be placed in the tree gets an entry, while directories only get
// one if nothing else lives beneath them.
func (sb Sandbox) Snapshot() Snapshot {
	snapshot := Snapshot{}
	for _, m := range sb.Modules {
		p, ok := sb.resolve(m.Title, m.DirectoryShortID)
		if !ok {
			continue
		}
		snapshot[p] = m.Entry(p)
	}

	dirs := map[string]Directory{}
	for _, d := range sb.Directories {
		p, ok := sb.resolve(d.Title, d.DirectoryShortID)
		if !ok {
			continue
		}
		dirs[p] = d
	}

	for p, d := range dirs {
		if HasDescendant(snapshot, p) {
			continue
		}

		hasChildDir := false
		for other := range dirs {
			if IsBeneath(other, p) {
				hasChildDir = true
				break
			}
		}
		if !hasChildDir {
			snapshot[p] = d.Entry(p)
		}
	}
	return snapshot
}

// Clean normalizes a path into the absolute form used as snapshot keys.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// IsBeneath returns whether `p` is strictly inside the directory `dir`.
func IsBeneath(p, dir string) bool {
	if dir == "/" {
		return p != "/"
	}
	return strings.HasPrefix(p, dir+"/")
}

// HasDescendant returns whether any entry in the snapshot lives beneath
// `dir`.
func HasDescendant(snapshot Snapshot, dir string) bool {
	for p := range snapshot {
		if IsBeneath(p, dir) {
			return true
		}
	}
	return false
}
