package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the key has no live version. It is never used for
	// data that exists but cannot be read.
	ErrNotFound = errors.New("key not found")

	// ErrCorruption is matched by every *CorruptionError.
	ErrCorruption = errors.New("data corruption")

	// ErrEntryTooLarge rejects keys or values above the configured limits.
	ErrEntryTooLarge = errors.New("entry too large")

	// ErrOutOfOrder is returned when an SSTable writer receives a key that
	// does not sort strictly after the previous one.
	ErrOutOfOrder = errors.New("keys added out of order")

	// ErrDuplicateKey is returned when the same InternalKey is inserted twice.
	ErrDuplicateKey = errors.New("duplicate internal key")

	// ErrLogFull is returned by the WAL once its file-size limit is reached.
	ErrLogFull = errors.New("log file size limit reached")

	// ErrClosed is returned by operations on a closed component.
	ErrClosed = errors.New("closed")
)

// CorruptionError describes unreadable on-disk data.
type CorruptionError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corruption in %s at offset %d: %s", e.Path, e.Offset, e.Reason)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruption
}

// Corruptf builds a *CorruptionError.
func Corruptf(path string, offset int64, format string, args ...any) error {
	return &CorruptionError{Path: path, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// IsCorruption reports whether err is or wraps a corruption error.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}
