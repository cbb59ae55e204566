package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"strata/internal/block_cache"
	"strata/internal/common"
	"strata/internal/sstable"
	"strata/internal/vfs"
)

// FileMetadata tracks metadata for a single SSTable file.
type FileMetadata struct {
	FileNo       common.FileNo
	Size         uint64
	EntryCount   uint64
	SmallestKey  []byte
	LargestKey   []byte
	MaxTimestamp uint64
}

// Overlaps reports whether the table may hold user keys in [start, end).
// Nil bounds are open.
func (fm *FileMetadata) Overlaps(start, end []byte) bool {
	if end != nil && string(fm.SmallestKey) >= string(end) {
		return false
	}
	if start != nil && string(fm.LargestKey) < string(start) {
		return false
	}
	return true
}

// MayContain reports whether key lies within the table's key range.
func (fm *FileMetadata) MayContain(key []byte) bool {
	return string(fm.SmallestKey) <= string(key) && string(key) <= string(fm.LargestKey)
}

// Version represents an immutable snapshot of the database's durable state.
type Version struct {
	// Current WAL being written
	CurrentWAL common.FileNo

	// Next file number to allocate, shared by WALs and SSTables
	NextFileNo common.FileNo

	// Highest WAL sequence and write timestamp covered by Tables
	LastSequence  uint64
	LastTimestamp uint64

	// Tables, newest first. Newer tables shadow older ones.
	Tables []FileMetadata
}

func (v *Version) clone() *Version {
	c := *v
	c.Tables = append([]FileMetadata(nil), v.Tables...)
	return &c
}

// LiveFiles returns the file numbers the version references.
func (v *Version) LiveFiles() map[common.FileNo]struct{} {
	live := make(map[common.FileNo]struct{}, len(v.Tables)+1)
	live[v.CurrentWAL] = struct{}{}
	for _, fm := range v.Tables {
		live[fm.FileNo] = struct{}{}
	}
	return live
}

// validate checks the internal consistency of a decoded version.
func (v *Version) validate() error {
	if v.CurrentWAL >= v.NextFileNo {
		return fmt.Errorf("current WAL %d is not below next file number %d", v.CurrentWAL, v.NextFileNo)
	}
	seen := make(map[common.FileNo]struct{}, len(v.Tables))
	for _, fm := range v.Tables {
		if fm.FileNo >= v.NextFileNo {
			return fmt.Errorf("table %d is not below next file number %d", fm.FileNo, v.NextFileNo)
		}
		if fm.FileNo == v.CurrentWAL {
			return fmt.Errorf("table %d reuses the WAL file number", fm.FileNo)
		}
		if _, dup := seen[fm.FileNo]; dup {
			return fmt.Errorf("table %d is listed twice", fm.FileNo)
		}
		seen[fm.FileNo] = struct{}{}
	}
	return nil
}

// Manifest tracks the structural state of the database: which WAL is live,
// which tables exist and how far they cover the write history. Readers take
// immutable Version snapshots; every change installs a new Version.
type Manifest struct {
	mu sync.RWMutex

	fs    vfs.FS
	paths *common.PathManager

	// Current version (latest state)
	current *Version

	// Table cache: shared pool of open SSTable handles
	tableCache map[common.FileNo]*sstable.Reader

	// Block cache: shared across all SSTables
	blockCache block_cache.BlockCache
}

// NewManifest creates an empty manifest. File number 0 is never allocated.
func NewManifest(fs vfs.FS, paths *common.PathManager, cache block_cache.BlockCache) *Manifest {
	return &Manifest{
		fs:         fs,
		paths:      paths,
		current:    &Version{NextFileNo: 1},
		tableCache: make(map[common.FileNo]*sstable.Reader),
		blockCache: cache,
	}
}

// Load reads the MANIFEST file under paths.
func Load(fs vfs.FS, paths *common.PathManager, cache block_cache.BlockCache) (*Manifest, error) {
	path := paths.ManifestPath()
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	v, err := ReadManifest(f)
	if err != nil {
		return nil, common.Corruptf(path, 0, "%v", err)
	}
	m := NewManifest(fs, paths, cache)
	m.current = v
	return m, nil
}

// Current returns a snapshot of the current version for reading.
func (m *Manifest) Current() *Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LoadVersion replaces the current version, as when undoing an edit that
// failed to persist. File numbers allocated since v was taken stay
// reserved, so they are never handed out twice.
func (m *Manifest) LoadVersion(v *Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := v.clone()
	restored.NextFileNo = max(v.NextFileNo, m.current.NextFileNo)
	m.current = restored
}

// AllocateFileNo reserves the next file number. The reservation becomes
// durable with the next Flush; unreferenced files left by a crash are
// garbage collected on open.
func (m *Manifest) AllocateFileNo() common.FileNo {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.current.clone()
	n := v.NextFileNo
	v.NextFileNo++
	m.current = v
	return n
}

// Edit describes an atomic change to the manifest.
type Edit struct {
	// Tables to add, newest first. They become the newest tables.
	AddTables []FileMetadata
	// Tables to drop
	DeleteTables map[common.FileNo]struct{}
	// WAL to switch to; zero leaves it unchanged
	NewWAL common.FileNo
	// Coverage high-water marks; smaller values are ignored
	LastSequence  uint64
	LastTimestamp uint64
}

// Apply atomically applies an edit, creating a new version.
func (m *Manifest) Apply(edit *Edit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.current.clone()

	kept := make([]FileMetadata, 0, len(edit.AddTables)+len(v.Tables))
	kept = append(kept, edit.AddTables...)
	for _, fm := range v.Tables {
		if _, deleted := edit.DeleteTables[fm.FileNo]; !deleted {
			kept = append(kept, fm)
		}
	}
	v.Tables = kept

	for _, fm := range edit.AddTables {
		v.NextFileNo = max(v.NextFileNo, fm.FileNo+1)
	}
	if edit.NewWAL != 0 {
		v.CurrentWAL = edit.NewWAL
		v.NextFileNo = max(v.NextFileNo, edit.NewWAL+1)
	}
	v.LastSequence = max(v.LastSequence, edit.LastSequence)
	v.LastTimestamp = max(v.LastTimestamp, edit.LastTimestamp)

	m.current = v
}

// GetTable returns the SSTable for the given file number, opening it if not cached.
func (m *Manifest) GetTable(fileNo common.FileNo) (*sstable.Reader, error) {
	m.mu.RLock()
	table, ok := m.tableCache[fileNo]
	m.mu.RUnlock()
	if ok {
		return table, nil
	}

	// Open outside the lock so that tables load in parallel.
	table, err := sstable.Open(m.fs, m.paths.SSTablePath(fileNo), fileNo, m.blockCache)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.tableCache[fileNo]; ok {
		table.Close()
		return existing, nil
	}
	m.tableCache[fileNo] = table
	return table, nil
}

// ReleaseTable closes a cached table handle.
func (m *Manifest) ReleaseTable(fileNo common.FileNo) error {
	m.mu.Lock()
	table, ok := m.tableCache[fileNo]
	delete(m.tableCache, fileNo)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return table.Close()
}

// BlockCache returns the cache shared by the manifest's tables.
func (m *Manifest) BlockCache() block_cache.BlockCache {
	return m.blockCache
}

// WriteManifest serializes a Version to JSON.
func WriteManifest(w io.Writer, v *Version) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// ReadManifest deserializes and validates a Version from JSON.
func ReadManifest(r io.Reader) (*Version, error) {
	var v Version
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, err
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Flush atomically writes the current version to disk (MANIFEST file).
func (m *Manifest) Flush() error {
	v := m.Current()

	// Atomic write: write to temp file, then rename
	tmpPath := m.paths.ManifestTmpPath()
	f, err := m.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if err := WriteManifest(f, v); err != nil {
		f.Close()
		m.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		m.fs.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		m.fs.Remove(tmpPath)
		return err
	}

	// Atomic rename
	return m.fs.Rename(tmpPath, m.paths.ManifestPath())
}

// Close releases every cached table handle.
func (m *Manifest) Close() error {
	m.mu.Lock()
	tables := m.tableCache
	m.tableCache = make(map[common.FileNo]*sstable.Reader)
	m.mu.Unlock()

	var errs []error
	for _, table := range tables {
		if err := table.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
