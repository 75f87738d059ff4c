package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
)

// envelope is the wire representation shared by all messages.
type envelope struct {
	Broadcast bool            `json:"$broadcast"`
	Type      Kind            `json:"$type"`
	Data      json.RawMessage `json:"$data,omitempty"`
}

// UnknownKindError is returned when decoding a message with a tag that
// isn't part of the protocol.
type UnknownKindError struct {
	Kind string
}

func (err UnknownKindError) Error() string {
	return fmt.Sprintf("unknown message kind %q", err.Kind)
}

// Encode converts the message into its wire format.
func Encode(msg Message) ([]byte, error) {
	env := envelope{Broadcast: true, Type: msg.Kind()}
	if payload := msg.payload(); payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("marshal %s", msg.Kind()))
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a message from its wire format.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WithContext(err, "parse envelope")
	}

	var msg Message
	var err error
	switch env.Type {
	case KindWriteFile:
		var entry sandbox.Entry
		err = decodeData(env, &entry)
		msg = WriteFile{Entry: entry}
	case KindRename:
		var rename Rename
		err = decodeData(env, &rename)
		msg = rename
	case KindRmdir:
		var dir sandbox.Entry
		err = decodeData(env, &dir)
		msg = Rmdir{Directory: dir}
	case KindUnlink:
		var file sandbox.Entry
		err = decodeData(env, &file)
		msg = Unlink{File: file}
	case KindMkdir:
		var dir sandbox.Entry
		err = decodeData(env, &dir)
		msg = Mkdir{Directory: dir}
	case KindSandboxFS:
		snapshot := sandbox.Snapshot{}
		err = decodeData(env, &snapshot)
		msg = SandboxFS{Snapshot: snapshot}
	case KindTypingsSync:
		files := map[string]string{}
		err = decodeData(env, &files)
		msg = TypingsSync{Files: files}
	case KindSyncSandbox:
		msg = SyncSandbox{}
	case KindSyncTypes:
		msg = SyncTypes{}
	default:
		return nil, UnknownKindError{Kind: string(env.Type)}
	}

	if err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("parse %s data", env.Type))
	}
	return msg, nil
}

func decodeData(env envelope, dst interface{}) error {
	if len(env.Data) == 0 {
		return errors.MissingFieldError{Field: "$data"}
	}
	return json.Unmarshal(env.Data, dst)
}
