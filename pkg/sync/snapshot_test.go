package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
)

func TestSnapshotDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sandbox/index.js", []byte("main()"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/sandbox/src/lib.js", []byte("lib"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/sandbox/logo.png", []byte{0x89, 'P', 'N', 'G', 0}, 0644))
	require.NoError(t, afero.WriteFile(fs, "/sandbox/node_modules/dep/index.js", []byte("dep"), 0644))
	require.NoError(t, fs.MkdirAll("/sandbox/empty/nested", 0755))
	require.NoError(t, fs.MkdirAll("/sandbox/.git/objects", 0755))

	snapshot, err := SnapshotDisk(fs, "/sandbox")
	require.NoError(t, err)
	assert.Equal(t, []string{"/empty/nested", "/index.js", "/logo.png", "/src/lib.js"}, snapshot.Paths())

	index := snapshot["/index.js"]
	assert.Equal(t, sandbox.TypeFile, index.Type)
	assert.Equal(t, "index.js", index.Title)
	assert.Equal(t, "main()", index.Code)
	assert.Equal(t, HashContents([]byte("main()")), index.ContentsHash)

	logo := snapshot["/logo.png"]
	assert.True(t, logo.IsBinary)
	assert.Empty(t, logo.Code)
	assert.NotEmpty(t, logo.ContentsHash)

	assert.True(t, snapshot["/empty/nested"].IsDir())
}

func TestDiff(t *testing.T) {
	withHash := func(p, code string) sandbox.Entry {
		entry := file(p, code)
		entry.ContentsHash = HashContents([]byte(code))
		return entry
	}

	disk := sandbox.Snapshot{
		"/same.js":    withHash("/same.js", "same"),
		"/changed.js": withHash("/changed.js", "new"),
		"/added.js":   withHash("/added.js", "added"),
		"/dir":        {Type: sandbox.TypeDirectory, Path: "/dir"},
	}
	tree := sandbox.Snapshot{
		"/same.js":    withHash("/same.js", "same"),
		"/changed.js": withHash("/changed.js", "old"),
		"/removed.js": withHash("/removed.js", "removed"),
		"/logo.png":   {Type: sandbox.TypeFile, Path: "/logo.png", IsBinary: true},
		"/other-dir":  {Type: sandbox.TypeDirectory, Path: "/other-dir"},
	}

	toWrite, toRemove := Diff(disk, tree)
	assert.Equal(t, []sandbox.Entry{disk["/added.js"], disk["/changed.js"]}, toWrite)
	assert.Equal(t, []string{"/removed.js"}, toRemove)

	toWrite, toRemove = Diff(disk, disk)
	assert.Empty(t, toWrite)
	assert.Empty(t, toRemove)
}

func TestReconcile(t *testing.T) {
	test := newCoordinatorTest(t, 0)
	spy := test.hub.Attach()
	tree := test.coordinator.Tree()

	require.NoError(t, test.coordinator.WriteFile(file("/kept.js", "kept")))
	require.NoError(t, test.coordinator.WriteFile(file("/deleted.js", "deleted")))
	nextOfKind(t, spy, broadcast.KindWriteFile)
	nextOfKind(t, spy, broadcast.KindWriteFile)

	// Simulate edits made directly to the storage.
	require.NoError(t, tree.fs.Remove("/sandbox/deleted.js"))
	require.NoError(t, afero.WriteFile(tree.fs, "/sandbox/added.js", []byte("added"), 0644))

	require.NoError(t, test.coordinator.Reconcile())
	write := nextOfKind(t, spy, broadcast.KindWriteFile).(broadcast.WriteFile)
	assert.Equal(t, "/added.js", write.Entry.Path)
	assert.Equal(t, "added", write.Entry.Code)
	unlink := nextOfKind(t, spy, broadcast.KindUnlink).(broadcast.Unlink)
	assert.Equal(t, "/deleted.js", unlink.File.Path)

	assert.Equal(t, []string{"/added.js", "/kept.js"}, tree.Snapshot().Paths())

	// A second pass has nothing to do.
	require.NoError(t, test.coordinator.Reconcile())
	assertNoneOfKind(t, spy, broadcast.KindWriteFile)
	assertNoneOfKind(t, spy, broadcast.KindUnlink)
}

func TestReconcileKeepsBinaryFiles(t *testing.T) {
	test := newCoordinatorTest(t, 0)
	spy := test.hub.Attach()
	tree := test.coordinator.Tree()

	tree.Load(sandbox.Sandbox{
		Modules: []sandbox.Module{
			{ID: "m1", Title: "index.js", Code: "main()"},
			{ID: "m2", Title: "logo.png", IsBinary: true},
		},
	})

	require.NoError(t, test.coordinator.Reconcile())
	assertNoneOfKind(t, spy, broadcast.KindUnlink)

	logo, ok := tree.Get("/logo.png")
	require.True(t, ok)
	assert.True(t, logo.IsBinary)
	assert.Equal(t, []string{"/index.js", "/logo.png"}, tree.Snapshot().Paths())
}

func TestReconcileStaleSnapshot(t *testing.T) {
	test := newCoordinatorTest(t, 0)
	spy := test.hub.Attach()
	tree := test.coordinator.Tree()

	require.NoError(t, test.coordinator.WriteFile(file("/index.js", "v1")))
	nextOfKind(t, spy, broadcast.KindWriteFile)

	// An edit made directly to the storage, followed by mutations that land
	// after the storage was read.
	require.NoError(t, afero.WriteFile(tree.fs, "/sandbox/index.js", []byte("external"), 0644))
	stale, err := SnapshotDisk(tree.fs, tree.root)
	require.NoError(t, err)

	require.NoError(t, test.coordinator.WriteFile(file("/index.js", "v2")))
	require.NoError(t, test.coordinator.WriteFile(file("/new.js", "new")))
	nextOfKind(t, spy, broadcast.KindWriteFile)
	nextOfKind(t, spy, broadcast.KindWriteFile)

	test.coordinator.reconcile(stale)
	assertNoneOfKind(t, spy, broadcast.KindWriteFile)
	assertNoneOfKind(t, spy, broadcast.KindUnlink)

	index, ok := tree.Get("/index.js")
	require.True(t, ok)
	assert.Equal(t, "v2", index.Code)
	_, ok = tree.Get("/new.js")
	assert.True(t, ok)
	assertFileContents(t, tree.fs, "/sandbox/index.js", "v2")
	assertFileContents(t, tree.fs, "/sandbox/new.js", "new")
}
