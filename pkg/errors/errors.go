package errors

import (
	"fmt"
)

type baseError struct {
	msg string
}

func (err baseError) Error() string {
	return err.msg
}

// New returns an error with the given message. Errors created by New are
// comparable, so two errors with the same message are equal.
func New(format string, a ...interface{}) error {
	return baseError{fmt.Sprintf(format, a...)}
}

type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext adds a description of what was being attempted when `err`
// occurred. It returns nil if `err` is nil.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// RootCause strips the context added by WithContext, and returns the
// original error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is an error whose message is meant to be shown directly to
// the user, without any of the context from WithContext.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a new FriendlyError.
func NewFriendlyError(format string, a ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, a...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message that should be shown to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// Friendly is implemented by errors that have a user-facing message.
type Friendly interface {
	FriendlyMessage() string
}

// GetFriendlyMessage returns the user-facing message of the root cause of
// `err`, if it has one.
func GetFriendlyMessage(err error) (string, bool) {
	if friendly, ok := RootCause(err).(Friendly); ok {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
