package db

import (
	"bytes"
	"errors"
	"fmt"

	"strata/internal/common"
	"strata/internal/memtable"
	"strata/internal/wal"
)

// Batch collects mutations that are logged with one WAL write and one sync.
type Batch struct {
	records []*wal.Record
}

// Put queues key=value. The batch keeps copies of key and value.
func (b *Batch) Put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	b.records = append(b.records, &wal.Record{
		Key:      bytes.Clone(key),
		Value:    bytes.Clone(value),
		HasValue: true,
	})
}

// Delete queues a tombstone for key.
func (b *Batch) Delete(key []byte) {
	b.records = append(b.records, &wal.Record{Key: bytes.Clone(key)})
}

func (b *Batch) Len() int {
	return len(b.records)
}

// writeRequest represents a pending write operation waiting for group commit.
// A request without records asks for a memtable flush.
type writeRequest struct {
	records  []*wal.Record
	flush    bool
	resultCh chan error
}

// submit hands req to the commit loop and waits for its result.
func (d *DB) submit(req *writeRequest) error {
	if d.closed.Load() {
		return common.ErrClosed
	}
	select {
	case d.writeChan <- req:
	case <-d.closing:
		return common.ErrClosed
	}
	return <-req.resultCh
}

// collectBatch collects a batch of write requests from the channel.
// It blocks waiting for the first request, then greedily collects
// additional requests that are immediately available (up to MaxBatchSize
// records). Returns nil once the database is closing.
func (d *DB) collectBatch() []*writeRequest {
	var first *writeRequest
	select {
	case first = <-d.writeChan:
	case <-d.closing:
		return nil
	}

	batch := []*writeRequest{first}
	records := len(first.records)

	// Collect more requests that are immediately available
	for records < d.Opts.MaxBatchSize {
		select {
		case req := <-d.writeChan:
			batch = append(batch, req)
			records += len(req.records)
		default:
			// No more immediately available
			return batch
		}
	}
	return batch
}

// processBatch commits the batch's records, runs any requested flush and
// notifies every requester.
func (d *DB) processBatch(batch []*writeRequest) {
	commitErr := d.commit(batch)

	var flushErr error
	for _, req := range batch {
		if req.flush {
			flushErr = d.flushMemtable()
			break
		}
	}

	// Notify all writers in batch
	for _, req := range batch {
		if req.flush {
			req.resultCh <- errors.Join(commitErr, flushErr)
		} else {
			req.resultCh <- commitErr
		}
	}
}

// commit assigns timestamps to the batch's records, logs them with a single
// AppendBatch and applies them to the memtable. It runs on the commit loop,
// which is the only goroutine that mutates the WAL and memtable pointers.
func (d *DB) commit(batch []*writeRequest) error {
	var recs []*wal.Record
	for _, req := range batch {
		recs = append(recs, req.records...)
	}
	if len(recs) == 0 {
		return nil
	}

	if d.memtable.ApproximateSize() >= d.Opts.MemtableFlushThreshold {
		if err := d.flushMemtable(); err != nil {
			return err
		}
	}

	for _, rec := range recs {
		rec.Timestamp = d.clock.Add(1)
	}

	_, _, err := d.wal.AppendBatch(recs)
	if errors.Is(err, common.ErrLogFull) {
		if err := d.flushMemtable(); err != nil {
			return err
		}
		_, _, err = d.wal.AppendBatch(recs)
	}
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := applyRecord(d.memtable, rec); err != nil {
			return err
		}
		if rec.HasValue {
			d.counters.puts.Add(1)
		} else {
			d.counters.deletes.Add(1)
		}
	}
	d.counters.batches.Add(1)
	return nil
}

// applyRecord replays one WAL record into mt.
func applyRecord(mt memtable.Memtable, rec *wal.Record) error {
	var err error
	if rec.HasValue {
		err = mt.Put(rec.Key, rec.Value, rec.Timestamp)
	} else {
		err = mt.Delete(rec.Key, rec.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", rec, err)
	}
	return nil
}

// groupCommitLoop is the main batching coordinator.
// It runs in a background goroutine, collecting batches of write requests
// and committing them together with a single WAL sync.
func (d *DB) groupCommitLoop() {
	defer close(d.loopDone)
	for {
		batch := d.collectBatch()
		if batch == nil {
			return
		}
		d.processBatch(batch)
	}
}
