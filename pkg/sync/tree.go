package sync

import (
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
)

// DefaultRoot is where the tree is projected within the namespace.
const DefaultRoot = "/sandbox"

// Tree is a context's view of the project's files. Every mutation is applied
// to the in-memory snapshot, and then projected into the backing namespace
// underneath `root`. Failures to project are logged, since the in-memory
// snapshot is what's synchronized with the other contexts.
type Tree struct {
	fs    afero.Fs
	root  string
	clock clockwork.Clock

	lock    sync.Mutex
	entries sandbox.Snapshot
}

// NewTree returns an empty Tree.
func NewTree(fs afero.Fs, root string, clock clockwork.Clock) *Tree {
	return &Tree{
		fs:      fs,
		root:    root,
		clock:   clock,
		entries: sandbox.Snapshot{},
	}
}

// Load replaces the contents of the tree with the initial project, and
// writes it into the namespace.
func (tree *Tree) Load(sb sandbox.Sandbox) {
	snapshot := sb.Snapshot()
	for p, entry := range snapshot {
		if !entry.IsDir() && !entry.IsBinary {
			entry.ContentsHash = HashContents([]byte(entry.Code))
			snapshot[p] = entry
		}
	}

	tree.lock.Lock()
	defer tree.lock.Unlock()

	tree.entries = snapshot
	for _, p := range snapshot.Paths() {
		tree.project(snapshot[p])
	}
}

// Restore replaces the contents of the tree with a snapshot that was read
// from the namespace itself, so nothing is written.
func (tree *Tree) Restore(snapshot sandbox.Snapshot) {
	tree.lock.Lock()
	defer tree.lock.Unlock()
	tree.entries = snapshot.Copy()
}

// WriteFile creates or replaces the file at `entry.Path`. It returns the
// entry as it was stored.
func (tree *Tree) WriteFile(entry sandbox.Entry) (sandbox.Entry, error) {
	p := sandbox.Clean(entry.Path)

	tree.lock.Lock()
	defer tree.lock.Unlock()

	if tree.isDir(p) {
		return sandbox.Entry{}, errors.IsDirectory{Path: p}
	}
	if err := tree.prepareParents(p); err != nil {
		return sandbox.Entry{}, err
	}

	entry.Type = sandbox.TypeFile
	entry.Path = p
	if entry.Title == "" {
		entry.Title = path.Base(p)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = tree.clock.Now()
	}
	if !entry.IsBinary {
		entry.ContentsHash = HashContents([]byte(entry.Code))
	}

	tree.entries[p] = entry
	tree.project(entry)
	return entry, nil
}

// Mkdir creates an empty directory. Creating a directory that already exists
// is a no-op.
func (tree *Tree) Mkdir(entry sandbox.Entry) (sandbox.Entry, error) {
	p := sandbox.Clean(entry.Path)
	entry.Type = sandbox.TypeDirectory
	entry.Path = p
	entry.Code = ""
	entry.ContentsHash = ""
	if entry.Title == "" {
		entry.Title = path.Base(p)
	}

	tree.lock.Lock()
	defer tree.lock.Unlock()

	if curr, ok := tree.entries[p]; ok {
		if !curr.IsDir() {
			return sandbox.Entry{}, errors.NotDirectory{Path: p}
		}
		return curr, nil
	}
	if sandbox.HasDescendant(tree.entries, p) {
		return entry, nil
	}
	if err := tree.prepareParents(p); err != nil {
		return sandbox.Entry{}, err
	}

	tree.entries[p] = entry
	tree.project(entry)
	return entry, nil
}

// Unlink removes the file at `p`, and returns the removed entry.
func (tree *Tree) Unlink(p string) (sandbox.Entry, error) {
	p = sandbox.Clean(p)

	tree.lock.Lock()
	defer tree.lock.Unlock()

	entry, ok := tree.entries[p]
	if !ok {
		if sandbox.HasDescendant(tree.entries, p) {
			return sandbox.Entry{}, errors.IsDirectory{Path: p}
		}
		return sandbox.Entry{}, errors.FileNotFound{Path: p}
	}
	if entry.IsDir() {
		return sandbox.Entry{}, errors.IsDirectory{Path: p}
	}

	delete(tree.entries, p)
	tree.keepParent(p)
	tree.removeFromNamespace(p)
	return entry, nil
}

// Rmdir removes the directory at `p` and everything beneath it. It returns
// the removed directory.
func (tree *Tree) Rmdir(p string) (sandbox.Entry, error) {
	p = sandbox.Clean(p)
	if p == "/" {
		return sandbox.Entry{}, errors.New("cannot remove the root directory")
	}

	tree.lock.Lock()
	defer tree.lock.Unlock()

	entry, ok := tree.entries[p]
	switch {
	case ok && !entry.IsDir():
		return sandbox.Entry{}, errors.NotDirectory{Path: p}
	case !ok && !sandbox.HasDescendant(tree.entries, p):
		return sandbox.Entry{}, errors.FileNotFound{Path: p}
	case !ok:
		entry = sandbox.Entry{Type: sandbox.TypeDirectory, Path: p, Title: path.Base(p)}
	}

	delete(tree.entries, p)
	for other := range tree.entries {
		if sandbox.IsBeneath(other, p) {
			delete(tree.entries, other)
		}
	}
	tree.keepParent(p)
	tree.removeFromNamespace(p)
	return entry, nil
}

// Rename moves the entry at `from`, along with everything beneath it, to
// `to`. Anything that was already at `to` is replaced.
func (tree *Tree) Rename(from, to string) error {
	from = sandbox.Clean(from)
	to = sandbox.Clean(to)
	if from == to {
		return nil
	}
	if from == "/" || sandbox.IsBeneath(to, from) {
		return errors.New("cannot move %q into itself", from)
	}

	tree.lock.Lock()
	defer tree.lock.Unlock()

	moved := sandbox.Snapshot{}
	for p, entry := range tree.entries {
		if p == from || sandbox.IsBeneath(p, from) {
			moved[p] = entry
		}
	}
	if len(moved) == 0 {
		return errors.FileNotFound{Path: from}
	}

	// The destination's parents have to be directories before anything is
	// changed.
	for dir := path.Dir(to); dir != "/"; dir = path.Dir(dir) {
		if curr, ok := tree.entries[dir]; ok && !curr.IsDir() {
			return errors.NotDirectory{Path: dir}
		}
	}

	for p := range moved {
		delete(tree.entries, p)
	}
	for p := range tree.entries {
		if p == to || sandbox.IsBeneath(p, to) {
			delete(tree.entries, p)
		}
	}
	for dir := path.Dir(to); dir != "/"; dir = path.Dir(dir) {
		delete(tree.entries, dir)
	}

	for p, entry := range moved {
		newPath := to + p[len(from):]
		entry.Path = newPath
		if p == from {
			entry.Title = path.Base(to)
		}
		tree.entries[newPath] = entry
	}
	tree.keepParent(from)

	tree.renameInNamespace(from, to)
	return nil
}

// Get returns the entry at `p`.
func (tree *Tree) Get(p string) (sandbox.Entry, bool) {
	tree.lock.Lock()
	defer tree.lock.Unlock()

	entry, ok := tree.entries[sandbox.Clean(p)]
	return entry, ok
}

// Snapshot returns a copy of the tree.
func (tree *Tree) Snapshot() sandbox.Snapshot {
	tree.lock.Lock()
	defer tree.lock.Unlock()

	// Copy the underlying snapshot because maps are reference types. If we
	// didn't copy the snapshot, accesses wouldn't be threadsafe.
	return tree.entries.Copy()
}

// Len returns the number of entries in the tree.
func (tree *Tree) Len() int {
	tree.lock.Lock()
	defer tree.lock.Unlock()
	return len(tree.entries)
}

// Root returns the path that the tree is projected to.
func (tree *Tree) Root() string {
	return tree.root
}

func (tree *Tree) isDir(p string) bool {
	if entry, ok := tree.entries[p]; ok {
		return entry.IsDir()
	}
	return sandbox.HasDescendant(tree.entries, p)
}

// prepareParents checks that none of the parents of `p` are files, and
// removes the explicit entries of parent directories that are about to get
// a child. The caller must hold the lock.
func (tree *Tree) prepareParents(p string) error {
	var explicitDirs []string
	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		entry, ok := tree.entries[dir]
		if !ok {
			continue
		}
		if !entry.IsDir() {
			return errors.NotDirectory{Path: dir}
		}
		explicitDirs = append(explicitDirs, dir)
	}

	for _, dir := range explicitDirs {
		delete(tree.entries, dir)
	}
	return nil
}

// keepParent adds an explicit entry for the parent of a removed path if the
// parent was left without children. The caller must hold the lock.
func (tree *Tree) keepParent(removed string) {
	parent := path.Dir(removed)
	if parent == "/" || sandbox.HasDescendant(tree.entries, parent) {
		return
	}
	if _, ok := tree.entries[parent]; ok {
		return
	}
	tree.entries[parent] = sandbox.Entry{
		Type:  sandbox.TypeDirectory,
		Path:  parent,
		Title: path.Base(parent),
	}
}

func (tree *Tree) namespacePath(p string) string {
	return filepath.Join(tree.root, filepath.FromSlash(p))
}

func (tree *Tree) project(entry sandbox.Entry) {
	dst := tree.namespacePath(entry.Path)
	logger := log.WithField("path", entry.Path)

	if entry.IsDir() {
		if err := tree.fs.MkdirAll(dst, 0755); err != nil {
			logger.WithError(err).Warn("Failed to create directory in namespace")
		}
		return
	}

	if err := tree.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		logger.WithError(err).Warn("Failed to create parent directory in namespace")
		return
	}

	// The contents of binary files live upstream.
	if entry.IsBinary {
		return
	}

	if err := afero.WriteFile(tree.fs, dst, []byte(entry.Code), 0644); err != nil {
		logger.WithError(err).Warn("Failed to write file to namespace")
		return
	}

	now := tree.clock.Now()
	if err := tree.fs.Chtimes(dst, now, now); err != nil {
		logger.WithError(err).Warn("Failed to set modification time in namespace")
	}
}

func (tree *Tree) removeFromNamespace(p string) {
	if err := tree.fs.RemoveAll(tree.namespacePath(p)); err != nil {
		log.WithError(err).WithField("path", p).Warn("Failed to remove path from namespace")
	}
}

func (tree *Tree) renameInNamespace(from, to string) {
	src := tree.namespacePath(from)
	dst := tree.namespacePath(to)
	logger := log.WithField("from", from).WithField("to", to)

	if err := tree.fs.RemoveAll(dst); err != nil {
		logger.WithError(err).Warn("Failed to clear rename destination in namespace")
	}
	if err := tree.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		logger.WithError(err).Warn("Failed to create rename destination in namespace")
		return
	}
	if err := tree.move(src, dst); err != nil {
		logger.WithError(err).Warn("Failed to rename in namespace")
	}
}

// move renames `src` to `dst`. Directories are moved file by file, since not
// every afero.Fs moves the children of a renamed directory.
func (tree *Tree) move(src, dst string) error {
	fi, err := tree.fs.Stat(src)
	if err != nil {
		return errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return tree.fs.Rename(src, dst)
	}

	err = afero.Walk(tree.fs, src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relativePath, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, relativePath)
		if fi.IsDir() {
			return tree.fs.MkdirAll(target, 0755)
		}
		return tree.fs.Rename(p, target)
	})
	if err != nil {
		return err
	}
	return tree.fs.RemoveAll(src)
}
