package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// IsDirectory represents an attempt to use a directory where a file was
// expected.
type IsDirectory struct {
	Path string
}

func (err IsDirectory) Error() string {
	return fmt.Sprintf("%q is a directory", err.Path)
}

// NotDirectory represents an attempt to use a file where a directory was
// expected.
type NotDirectory struct {
	Path string
}

func (err NotDirectory) Error() string {
	return fmt.Sprintf("%q is not a directory", err.Path)
}
