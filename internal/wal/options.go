package wal

import (
	"fmt"
	"strings"
	"time"
)

// SyncMode selects when appended records are forced to stable storage.
type SyncMode uint8

const (
	// SyncNone acknowledges once the write reached the OS page cache.
	SyncNone SyncMode = iota + 1
	// SyncNormal is SyncNone plus a background fsync every SyncInterval.
	SyncNormal
	// SyncFull fsyncs before acknowledging, once per batch.
	SyncFull
)

func (m SyncMode) String() string {
	switch m {
	case SyncNone:
		return "none"
	case SyncNormal:
		return "normal"
	case SyncFull:
		return "full"
	}
	return fmt.Sprintf("SyncMode(%d)", uint8(m))
}

// ParseSyncMode accepts the names printed by SyncMode.String.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return SyncNone, nil
	case "normal":
		return SyncNormal, nil
	case "full":
		return SyncFull, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

const (
	DEFAULT_MAX_KEY_SIZE   = 1 << 20  // 1 MiB
	DEFAULT_MAX_VALUE_SIZE = 10 << 20 // 10 MiB
	DEFAULT_MAX_FILE_SIZE  = 64 << 20 // 64 MiB
	DEFAULT_SYNC_INTERVAL  = 100 * time.Millisecond
)

// Options configures a Writer. Zero fields take their defaults.
type Options struct {
	SyncMode     SyncMode
	SyncInterval time.Duration

	MaxKeySize   int
	MaxValueSize int
	// MaxFileSize bounds the log; appends that would cross it fail with
	// common.ErrLogFull. Negative disables the limit.
	MaxFileSize int64

	// StartSequence is a floor for the sequence counter, used when a new
	// log continues the numbering of a rotated one.
	StartSequence uint64

	Observer Observer
}

func DefaultOptions() Options {
	return Options{
		SyncMode:     SyncFull,
		SyncInterval: DEFAULT_SYNC_INTERVAL,
		MaxKeySize:   DEFAULT_MAX_KEY_SIZE,
		MaxValueSize: DEFAULT_MAX_VALUE_SIZE,
		MaxFileSize:  DEFAULT_MAX_FILE_SIZE,
		Observer:     NopObserver{},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SyncMode == 0 {
		o.SyncMode = d.SyncMode
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = d.SyncInterval
	}
	if o.MaxKeySize <= 0 {
		o.MaxKeySize = d.MaxKeySize
	}
	if o.MaxValueSize <= 0 {
		o.MaxValueSize = d.MaxValueSize
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = d.MaxFileSize
	}
	if o.Observer == nil {
		o.Observer = d.Observer
	}
	return o
}

// Observer receives operation counters. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnAppend(records, bytes int)
	OnSync(elapsed time.Duration)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) OnAppend(int, int) {}
func (NopObserver) OnSync(time.Duration) {}
