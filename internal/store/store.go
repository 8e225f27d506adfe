package store

import (
	"errors"
	"regexp"
)

// ErrNotFound is returned by Get when no object exists at the path.
// Callers that treat absence as a normal state check for it with
// errors.Is; any other error is a transport/store failure.
var ErrNotFound = errors.New("store: object not found")

// ObjectStore is the byte-level capability the repository persists
// through. Put must replace atomically: a concurrent Get sees either
// the old bytes or the new bytes, never a partial write. Ancestor
// directories of a path are created as needed.
type ObjectStore interface {
	Put(path string, data []byte) error
	Get(path string) ([]byte, error)
	Exists(path string) (bool, error)
	Delete(path string) error
	Close() error
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidCode reports whether a room code is safe to embed in a storage
// path. Anything else is rejected outright rather than sanitized.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
