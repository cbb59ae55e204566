package db

import (
	"time"

	"strata/internal/block"
	"strata/internal/block_cache"
	"strata/internal/filter"
	"strata/internal/sstable"
	"strata/internal/vfs"
	"strata/internal/wal"

	"go.uber.org/zap"
)

type Options struct {
	// MemtableFlushThreshold is the approximate memtable size in bytes
	// that triggers a flush to an SSTable.
	MemtableFlushThreshold int64
	MaxBatchSize           int

	SyncMode       wal.SyncMode
	SyncInterval   time.Duration
	WALMaxFileSize int64
	MaxKeySize     int
	MaxValueSize   int

	BlockSize               int
	BlockCacheSize          int
	FilterFalsePositiveRate float64

	FS     vfs.FS
	Logger *zap.Logger
}

var DefaultOptions = Options{
	MemtableFlushThreshold:  4 << 20,
	MaxBatchSize:            64,
	SyncMode:                wal.SyncFull,
	SyncInterval:            wal.DEFAULT_SYNC_INTERVAL,
	WALMaxFileSize:          wal.DEFAULT_MAX_FILE_SIZE,
	MaxKeySize:              wal.DEFAULT_MAX_KEY_SIZE,
	MaxValueSize:            wal.DEFAULT_MAX_VALUE_SIZE,
	BlockSize:               block.BLOCK_SIZE,
	BlockCacheSize:          block_cache.DEFAULT_CAPACITY,
	FilterFalsePositiveRate: filter.DEFAULT_FALSE_POSITIVE_RATE,
	FS:                      vfs.Default,
}

type Option func(*Options)

func WithMemtableFlushThreshold(n int64) Option {
	return func(o *Options) {
		o.MemtableFlushThreshold = n
	}
}

func WithMaxBatchSize(n int) Option {
	return func(o *Options) {
		o.MaxBatchSize = n
	}
}

func WithSyncMode(mode wal.SyncMode) Option {
	return func(o *Options) {
		o.SyncMode = mode
	}
}

func WithSyncInterval(d time.Duration) Option {
	return func(o *Options) {
		o.SyncInterval = d
	}
}

// WithWALMaxFileSize caps a WAL file; a full WAL forces a memtable flush.
func WithWALMaxFileSize(n int64) Option {
	return func(o *Options) {
		o.WALMaxFileSize = n
	}
}

func WithMaxKeySize(n int) Option {
	return func(o *Options) {
		o.MaxKeySize = n
	}
}

func WithMaxValueSize(n int) Option {
	return func(o *Options) {
		o.MaxValueSize = n
	}
}

func WithBlockSize(n int) Option {
	return func(o *Options) {
		o.BlockSize = n
	}
}

// WithBlockCacheSize sets the number of blocks kept in the shared cache.
func WithBlockCacheSize(n int) Option {
	return func(o *Options) {
		o.BlockCacheSize = n
	}
}

// WithFilterFalsePositiveRate sizes the per-table bloom filters. A negative
// rate disables them.
func WithFilterFalsePositiveRate(p float64) Option {
	return func(o *Options) {
		o.FilterFalsePositiveRate = p
	}
}

// WithFS runs the database on another file system, such as vfs.MemFS.
func WithFS(fs vfs.FS) Option {
	return func(o *Options) {
		o.FS = fs
	}
}

// WithLogger installs l as the process-wide logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func (o *Options) walOptions(startSeq uint64, obs wal.Observer) wal.Options {
	return wal.Options{
		SyncMode:      o.SyncMode,
		SyncInterval:  o.SyncInterval,
		MaxKeySize:    o.MaxKeySize,
		MaxValueSize:  o.MaxValueSize,
		MaxFileSize:   o.WALMaxFileSize,
		StartSequence: startSeq,
		Observer:      obs,
	}
}

func (o *Options) writerOptions() sstable.WriterOptions {
	return sstable.WriterOptions{
		BlockSize:               o.BlockSize,
		FilterFalsePositiveRate: o.FilterFalsePositiveRate,
	}
}
