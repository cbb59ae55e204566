package wal

import (
	"fmt"

	"strata/internal/common"
	"strata/internal/vfs"
)

// RecoveryInfo summarizes a replayed log.
type RecoveryInfo struct {
	Records      int
	LastSequence uint64
	MaxTimestamp uint64
	ValidOffset  int64
	Truncated    bool
}

// Recover replays every valid record of the log at path into fn, in order.
// A damaged tail stops the replay and is reported in the result; it is not
// an error. The record passed to fn is only valid during the call.
func Recover(fs vfs.FS, path string, fn func(*Record) error) (RecoveryInfo, error) {
	var info RecoveryInfo

	r, err := OpenReader(fs, path)
	if err != nil {
		return info, err
	}
	defer r.Close()

	for {
		rec, err := r.Next()
		if err != nil {
			return info, fmt.Errorf("failed to replay %s: %w", path, err)
		}
		if rec == nil {
			break
		}
		if err := fn(rec); err != nil {
			return info, err
		}
		info.Records++
		info.LastSequence = rec.Seq
		if rec.Timestamp > info.MaxTimestamp {
			info.MaxTimestamp = rec.Timestamp
		}
	}

	info.ValidOffset = r.ValidOffset()
	info.Truncated = r.Truncated()
	if info.Truncated {
		common.Warnf("wal %s: replay stopped at offset %d (%s)", path, info.ValidOffset, r.Reason())
	}
	return info, nil
}
