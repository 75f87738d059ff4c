package sync

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
)

// binarySniffLen is how much of a file is checked for NUL bytes when
// deciding whether it's binary.
const binarySniffLen = 8000

// ignoredDirs are directories that are never part of the tree. Dependencies
// are provided to the contexts through typings instead.
var ignoredDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
}

// Ignored returns whether the directory named `name` is left out of the
// tree.
func Ignored(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}

// SnapshotDisk reads the tree stored underneath `root`. The contents of
// binary files aren't read into the snapshot.
func SnapshotDisk(fs afero.Fs, root string) (sandbox.Snapshot, error) {
	snapshot := sandbox.Snapshot{}
	var dirs []string
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(relativePath, "..") {
			return errors.WithContext(err, "normalize path")
		}
		if relativePath == "." {
			return nil
		}
		p := sandbox.Clean(filepath.ToSlash(relativePath))

		if fi.IsDir() {
			if Ignored(fi.Name()) {
				return filepath.SkipDir
			}
			dirs = append(dirs, p)
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		entry, err := readEntry(fs, path, p, fi)
		if err != nil {
			return errors.WithContext(err, p)
		}
		snapshot[p] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if !sandbox.HasDescendant(snapshot, dir) && !hasChildDir(dirs, dir) {
			snapshot[dir] = sandbox.Entry{
				Type:  sandbox.TypeDirectory,
				Path:  dir,
				Title: filepath.Base(dir),
			}
		}
	}
	return snapshot, nil
}

func readEntry(fs afero.Fs, path, p string, fi os.FileInfo) (sandbox.Entry, error) {
	entry := sandbox.Entry{
		Type:      sandbox.TypeFile,
		Path:      p,
		Title:     fi.Name(),
		UpdatedAt: fi.ModTime(),
	}

	f, err := fs.Open(path)
	if err != nil {
		return sandbox.Entry{}, errors.WithContext(err, "open")
	}
	head := make([]byte, binarySniffLen)
	n, _ := f.Read(head)
	f.Close()

	if bytes.IndexByte(head[:n], 0) >= 0 {
		hash, err := HashFile(fs, path)
		if err != nil {
			return sandbox.Entry{}, err
		}
		entry.IsBinary = true
		entry.ContentsHash = hash
		return entry, nil
	}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return sandbox.Entry{}, errors.WithContext(err, "read")
	}
	entry.Code = string(contents)
	entry.ContentsHash = HashContents(contents)
	return entry, nil
}

func hasChildDir(dirs []string, dir string) bool {
	for _, other := range dirs {
		if sandbox.IsBeneath(other, dir) {
			return true
		}
	}
	return false
}

// Diff returns the files that need to be written to or removed from `tree`
// so that its files match `disk`. Directories are ignored, and so are binary
// files that are missing from disk since their contents live upstream.
func Diff(disk, tree sandbox.Snapshot) (toWrite []sandbox.Entry, toRemove []string) {
	for _, p := range disk.Paths() {
		exp := disk[p]
		if exp.IsDir() {
			continue
		}

		curr, ok := tree[p]
		if !ok || curr.IsDir() || curr.ContentsHash != exp.ContentsHash {
			toWrite = append(toWrite, exp)
		}
	}

	for _, p := range tree.Paths() {
		curr := tree[p]
		if curr.IsDir() || curr.IsBinary {
			continue
		}
		if _, ok := disk[p]; !ok {
			toRemove = append(toRemove, p)
		}
	}
	return
}

// Reconcile applies the changes made directly to the backing storage, and
// announces them like any other mutation.
func (c *Coordinator) Reconcile() error {
	disk, err := SnapshotDisk(c.tree.fs, c.tree.root)
	if err != nil {
		return errors.WithContext(err, "snapshot namespace")
	}
	c.reconcile(disk)
	return nil
}

// reconcile applies the difference between `disk` and the tree. Mutations
// may have been applied since `disk` was read, so each change is checked
// against the storage again right before it's applied.
func (c *Coordinator) reconcile(disk sandbox.Snapshot) {
	var written, removed int
	toWrite, toRemove := Diff(disk, c.tree.Snapshot())
	for _, entry := range toWrite {
		if !c.onDisk(entry) {
			continue
		}
		if err := c.WriteFile(entry); err != nil {
			log.WithError(err).WithField("path", entry.Path).Warn("Failed to sync changed file")
			continue
		}
		written++
	}
	for _, p := range toRemove {
		if exists, _ := afero.Exists(c.tree.fs, c.tree.namespacePath(p)); exists {
			continue
		}
		if err := c.Unlink(p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to sync removed file")
			continue
		}
		removed++
	}

	if written != 0 || removed != 0 {
		log.WithField("written", written).WithField("removed", removed).
			Info("Synced changes from storage")
	}
}

// onDisk returns whether the storage still holds the contents of `entry`.
func (c *Coordinator) onDisk(entry sandbox.Entry) bool {
	hash, err := HashFile(c.tree.fs, c.tree.namespacePath(entry.Path))
	if err != nil {
		return false
	}
	return hash == entry.ContentsHash
}
