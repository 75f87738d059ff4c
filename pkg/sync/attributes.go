package sync

import (
	"crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/spf13/afero"

	"github.com/sidkik/sandboxsync/pkg/errors"
)

// HashContents returns the base64 encoded sha512 hash of `contents`.
func HashContents(contents []byte) string {
	hash := sha512.Sum512(contents)
	return base64.StdEncoding.EncodeToString(hash[:])
}

// HashFile returns the sha512 hash of the file at the given path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
