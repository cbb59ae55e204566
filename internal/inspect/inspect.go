// Package inspect prints the on-disk files of a database in human readable
// form. It backs the cli's dump and inspect commands and the standalone
// inspect tool.
package inspect

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"strata/internal/common"
	"strata/internal/filter"
	"strata/internal/manifest"
	"strata/internal/sstable"
	"strata/internal/vfs"
	"strata/internal/wal"
)

const keyWidth = 20

type fileKind int

const (
	kindUnknown fileKind = iota
	kindWAL
	kindSSTable
	kindManifest
)

func kindOf(path string) fileKind {
	if filepath.Base(path) == "MANIFEST" {
		return kindManifest
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		return kindWAL
	case ".sst":
		return kindSSTable
	}
	return kindUnknown
}

func unknownFile(path string) error {
	return fmt.Errorf("unknown file type: %s (expected .log, .sst or MANIFEST)", path)
}

// Dump prints every entry stored in the file at path.
func Dump(w io.Writer, fs vfs.FS, path string) error {
	switch kindOf(path) {
	case kindWAL:
		return DumpWAL(w, fs, path)
	case kindSSTable:
		return DumpSSTable(w, fs, path)
	case kindManifest:
		return Manifest(w, fs, path)
	}
	return unknownFile(path)
}

// Inspect prints the structure of the file at path without its entries.
func Inspect(w io.Writer, fs vfs.FS, path string) error {
	switch kindOf(path) {
	case kindWAL:
		return InspectWAL(w, fs, path)
	case kindSSTable:
		return InspectSSTable(w, fs, path)
	case kindManifest:
		return Manifest(w, fs, path)
	}
	return unknownFile(path)
}

func truncateKey(key []byte) string {
	s := string(key)
	if len(s) > keyWidth {
		s = s[:keyWidth]
	}
	return s
}

// DumpEntries prints one line per entry and returns how many it printed.
func DumpEntries(w io.Writer, iter common.EntryIterator) (int, error) {
	fmt.Fprintf(w, "%-6s %-20s %20s  %s\n", "OP", "KEY", "TS", "VALUE")
	fmt.Fprintln(w)

	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			return count, err
		}
		if entry == nil {
			break
		}
		count++
		key := truncateKey(entry.Key.UserKey)
		if entry.IsTombstone() {
			fmt.Fprintf(w, "%-6s %-20s %20d\n", "DEL", key, entry.Key.Timestamp)
		} else {
			fmt.Fprintf(w, "%-6s %-20s %20d  %s\n", "PUT", key, entry.Key.Timestamp, entry.Value)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total entries: %d\n", count)
	return count, nil
}

// DumpWAL prints every valid record of a log, followed by the reason the
// scan stopped if the tail is damaged.
func DumpWAL(w io.Writer, fs vfs.FS, path string) error {
	fmt.Fprintf(w, "Dumping WAL: %s\n\n", path)

	r, err := wal.OpenReader(fs, path)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(w, "%-10s %-6s %-20s %20s  %s\n", "SEQ", "OP", "KEY", "TS", "VALUE")
	fmt.Fprintln(w)
	count := 0
	for {
		rec, err := r.Next()
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		count++
		key := truncateKey(rec.Key)
		if rec.HasValue {
			fmt.Fprintf(w, "%-10d %-6s %-20s %20d  %s\n", rec.Seq, "PUT", key, rec.Timestamp, rec.Value)
		} else {
			fmt.Fprintf(w, "%-10d %-6s %-20s %20d\n", rec.Seq, "DEL", key, rec.Timestamp)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total records: %d\n", count)
	if r.Truncated() {
		fmt.Fprintf(w, "Damaged tail at offset %d: %s\n", r.ValidOffset(), r.Reason())
	}
	return nil
}

// DumpSSTable prints every entry of a table in key order.
func DumpSSTable(w io.Writer, fs vfs.FS, path string) error {
	fmt.Fprintf(w, "Dumping SSTable: %s\n\n", path)

	table, err := openTable(fs, path)
	if err != nil {
		return err
	}
	defer table.Close()

	_, err = DumpEntries(w, table.Iterator())
	return err
}

// InspectWAL summarizes a log: record count, sequence range and where the
// valid prefix ends.
func InspectWAL(w io.Writer, fs vfs.FS, path string) error {
	fmt.Fprintf(w, "Inspecting WAL: %s\n\n", path)

	var first uint64
	var puts, deletes int
	info, err := wal.Recover(fs, path, func(rec *wal.Record) error {
		if first == 0 {
			first = rec.Seq
		}
		if rec.HasValue {
			puts++
		} else {
			deletes++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Records:       %d (%d puts, %d deletes)\n", info.Records, puts, deletes)
	if info.Records > 0 {
		fmt.Fprintf(w, "Sequences:     %d-%d\n", first, info.LastSequence)
	}
	fmt.Fprintf(w, "Max timestamp: %d\n", info.MaxTimestamp)
	fmt.Fprintf(w, "Valid bytes:   %d\n", info.ValidOffset)
	if info.Truncated {
		fmt.Fprintf(w, "Damaged tail:  yes\n")
	}
	return nil
}

// InspectSSTable prints a table's footer, filter and block index.
func InspectSSTable(w io.Writer, fs vfs.FS, path string) error {
	fmt.Fprintf(w, "Inspecting SSTable: %s\n\n", path)

	table, err := openTable(fs, path)
	if err != nil {
		return err
	}
	defer table.Close()

	footer := table.Footer()
	index := table.Index()
	entries, err := table.Len()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "File size:     %d\n", table.Size())
	fmt.Fprintf(w, "Version:       %d\n", footer.Version)
	fmt.Fprintf(w, "Index:         offset=%d size=%d\n", footer.IndexOffset, footer.IndexSize)
	fmt.Fprintf(w, "Filter:        %d bytes\n", footer.IndexOffset-index.DataEnd())
	if table.Filter() == filter.AlwaysMatch {
		fmt.Fprintf(w, "               disabled\n")
	}
	fmt.Fprintf(w, "Entries:       %d\n", entries)
	fmt.Fprintf(w, "Total blocks:  %d\n", len(index.Entries))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Index entries (first key of each block):")
	fmt.Fprintln(w)

	for i, entry := range index.Entries {
		fmt.Fprintf(w, "Block %d: offset=%d size=%d key=%s\n", i, entry.BlockOffset, entry.BlockSize, entry.FirstKey)
	}
	return nil
}

// Manifest prints the version recorded in a manifest file.
func Manifest(w io.Writer, fs vfs.FS, path string) error {
	fmt.Fprintf(w, "Inspecting manifest: %s\n\n", path)

	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	v, err := manifest.ReadManifest(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Current WAL:    %06d.log\n", v.CurrentWAL)
	fmt.Fprintf(w, "Next file:      %d\n", v.NextFileNo)
	fmt.Fprintf(w, "Last sequence:  %d\n", v.LastSequence)
	fmt.Fprintf(w, "Last timestamp: %d\n", v.LastTimestamp)
	fmt.Fprintf(w, "Tables:         %d\n", len(v.Tables))
	fmt.Fprintln(w)
	for _, t := range v.Tables {
		fmt.Fprintf(w, "%06d.sst size=%d entries=%d keys=[%q, %q] max_ts=%d\n",
			t.FileNo, t.Size, t.EntryCount, t.SmallestKey, t.LargestKey, t.MaxTimestamp)
	}
	return nil
}

func openTable(fs vfs.FS, path string) (*sstable.Reader, error) {
	fileNo, err := common.ParseFileNo(path)
	if err != nil {
		return nil, err
	}
	return sstable.Open(fs, path, fileNo, nil)
}
