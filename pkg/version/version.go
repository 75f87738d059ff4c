package version

import (
	goversion "github.com/hashicorp/go-version"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// EmptyValue is the value we use when running a version that wasn't compiled
// by `make`. This is helpful for telling when we're running in a unit test.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it may
// include additional information such as the most recent commit hash.
var Version = EmptyValue

// ProtocolVersion is the version of the message protocol spoken over the
// bridge. Peers are compatible if they share the same major version.
var ProtocolVersion = "1.0.0"

// IncompatibleError is returned when a peer speaks a protocol that can't be
// understood.
type IncompatibleError struct {
	Local, Peer string
}

func (err IncompatibleError) Error() string {
	return "incompatible protocol version " + err.Peer + " (local version is " + err.Local + ")"
}

// Compatible returns an error if `peer` isn't compatible with
// ProtocolVersion. An empty peer version is assumed to be compatible.
func Compatible(peer string) error {
	if peer == "" {
		return nil
	}

	local, err := goversion.NewVersion(ProtocolVersion)
	if err != nil {
		return errors.WithContext(err, "parse local version")
	}

	peerVersion, err := goversion.NewVersion(peer)
	if err != nil {
		return errors.WithContext(err, "parse peer version")
	}

	if local.Segments()[0] != peerVersion.Segments()[0] {
		return IncompatibleError{Local: ProtocolVersion, Peer: peer}
	}
	return nil
}
