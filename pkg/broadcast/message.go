package broadcast

import (
	"github.com/sidkik/sandboxsync/pkg/sandbox"
)

// Kind is the tag that identifies a message on the wire.
type Kind string

const (
	KindWriteFile   Kind = "write-file"
	KindRename      Kind = "rename"
	KindRmdir       Kind = "rmdir"
	KindUnlink      Kind = "unlink"
	KindMkdir       Kind = "mkdir"
	KindSandboxFS   Kind = "sandbox-fs"
	KindTypingsSync Kind = "typings-sync"

	// KindSyncSandbox is sent by a context that wants the full tree. Before
	// the readiness barrier is released, it's counted as a readiness signal.
	KindSyncSandbox Kind = "sync-sandbox"

	// KindSyncTypes is sent by a context that wants the typings republished.
	KindSyncTypes Kind = "sync-types"
)

// Message is implemented by every message that can be sent between contexts.
// The set of implementations is closed: Decode knows about all of them.
type Message interface {
	Kind() Kind

	// payload returns the value that's encoded as the message's data, or nil
	// if the message doesn't carry any.
	payload() interface{}
}

// WriteFile announces that a file was created or its contents changed.
type WriteFile struct {
	Entry sandbox.Entry
}

// Rename announces that the entry at FromPath, and everything beneath it,
// moved to ToPath.
type Rename struct {
	FromPath string `json:"fromPath"`
	ToPath   string `json:"toPath"`
}

// Rmdir announces that a directory and everything beneath it was removed.
type Rmdir struct {
	Directory sandbox.Entry
}

// Unlink announces that a file was removed.
type Unlink struct {
	File sandbox.Entry
}

// Mkdir announces that an empty directory was created.
type Mkdir struct {
	Directory sandbox.Entry
}

// SandboxFS carries the full file tree. It's the only message that isn't a
// delta.
type SandboxFS struct {
	Snapshot sandbox.Snapshot
}

// TypingsSync carries the merged typings, keyed by the declaration file's
// relative path.
type TypingsSync struct {
	Files map[string]string
}

// SyncSandbox requests a full tree publish.
type SyncSandbox struct{}

// SyncTypes requests a typings refresh.
type SyncTypes struct{}

func (WriteFile) Kind() Kind   { return KindWriteFile }
func (Rename) Kind() Kind      { return KindRename }
func (Rmdir) Kind() Kind       { return KindRmdir }
func (Unlink) Kind() Kind      { return KindUnlink }
func (Mkdir) Kind() Kind       { return KindMkdir }
func (SandboxFS) Kind() Kind   { return KindSandboxFS }
func (TypingsSync) Kind() Kind { return KindTypingsSync }
func (SyncSandbox) Kind() Kind { return KindSyncSandbox }
func (SyncTypes) Kind() Kind   { return KindSyncTypes }

func (msg WriteFile) payload() interface{}   { return msg.Entry }
func (msg Rename) payload() interface{}      { return msg }
func (msg Rmdir) payload() interface{}       { return msg.Directory }
func (msg Unlink) payload() interface{}      { return msg.File }
func (msg Mkdir) payload() interface{}       { return msg.Directory }
func (msg SandboxFS) payload() interface{}   { return msg.Snapshot }
func (msg TypingsSync) payload() interface{} { return msg.Files }
func (SyncSandbox) payload() interface{}     { return nil }
func (SyncTypes) payload() interface{}       { return nil }
