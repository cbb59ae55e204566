package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrInjected is returned by MemFS operations failed on purpose.
var ErrInjected = errors.New("vfs: injected fault")

// MemFS is an in-memory FS for tests. It tracks how much of every file has
// been synced so Crash can discard unsynced data, and it can fail writes
// after a byte budget is spent.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memNode
	dirs  map[string]struct{}

	// writeBudget < 0 means unlimited.
	writeBudget int64
	syncErr     error
	truncErr    error
}

type memNode struct {
	mu      sync.RWMutex
	data    []byte
	synced  int
	modTime time.Time
}

// NewMemFS returns an empty in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{
		files:       make(map[string]*memNode),
		dirs:        make(map[string]struct{}),
		writeBudget: -1,
	}
}

var _ FS = (*MemFS)(nil)

func (m *MemFS) Create(name string) (File, error) {
	return m.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (m *MemFS) Open(name string) (File, error) {
	return m.OpenFile(name, os.O_RDONLY, 0)
}

func (m *MemFS) OpenFile(name string, flag int, _ os.FileMode) (File, error) {
	name = filepath.Clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.files[name]
	switch {
	case !ok && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case ok && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !ok:
		node = &memNode{modTime: time.Now()}
		m.files[name] = node
	}
	if flag&os.O_TRUNC != 0 {
		node.mu.Lock()
		node.data = nil
		node.synced = 0
		node.mu.Unlock()
	}

	return &memFile{
		fs:       m,
		node:     node,
		name:     name,
		readOnly: flag&(os.O_WRONLY|os.O_RDWR) == 0,
		append:   flag&os.O_APPEND != 0,
	}, nil
}

func (m *MemFS) Remove(name string) error {
	name = filepath.Clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

func (m *MemFS) Rename(oldname, newname string) error {
	oldname, newname = filepath.Clean(oldname), filepath.Clean(newname)
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.files[oldname]
	if !ok {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: fs.ErrNotExist}
	}
	delete(m.files, oldname)
	m.files[newname] = node
	return nil
}

func (m *MemFS) MkdirAll(dir string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[filepath.Clean(dir)] = struct{}{}
	return nil
}

func (m *MemFS) List(dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		if filepath.Dir(name) == dir {
			names = append(names, filepath.Base(name))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemFS) Stat(name string) (os.FileInfo, error) {
	name = filepath.Clean(name)
	m.mu.Lock()
	node, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return node.stat(name), nil
}

// Crash simulates power loss: every file loses the bytes written after its
// last Sync. Open handles keep working against the truncated contents.
func (m *MemFS) Crash() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, node := range m.files {
		node.mu.Lock()
		node.data = node.data[:node.synced]
		node.mu.Unlock()
	}
}

// FailWritesAfter lets the next n bytes be written and fails every write
// after that with ErrInjected. A negative n removes the limit.
func (m *MemFS) FailWritesAfter(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBudget = n
}

// FailSyncs makes every Sync return err (nil clears it).
func (m *MemFS) FailSyncs(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncErr = err
}

// FailTruncates makes every Truncate return err (nil clears it).
func (m *MemFS) FailTruncates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncErr = err
}

// ReadFile returns a copy of the named file's contents.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	name = filepath.Clean(name)
	m.mu.Lock()
	node, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	node.mu.RLock()
	defer node.mu.RUnlock()
	return append([]byte(nil), node.data...), nil
}

// WriteFile replaces the named file's contents; the data counts as synced.
func (m *MemFS) WriteFile(name string, data []byte) {
	name = filepath.Clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := append([]byte(nil), data...)
	m.files[name] = &memNode{data: buf, synced: len(buf), modTime: time.Now()}
}

// reserve consumes up to n bytes of the write budget and returns how many
// bytes may be written.
func (m *MemFS) reserve(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeBudget < 0 {
		return n
	}
	if int64(n) > m.writeBudget {
		n = int(m.writeBudget)
	}
	m.writeBudget -= int64(n)
	return n
}

func (m *MemFS) syncError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncErr
}

func (m *MemFS) truncateError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.truncErr
}

func (n *memNode) stat(name string) os.FileInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return &memFileInfo{name: filepath.Base(name), size: int64(len(n.data)), modTime: n.modTime}
}

type memFile struct {
	fs       *MemFS
	node     *memNode
	name     string
	pos      int64
	readOnly bool
	append   bool
	closed   bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	f.node.mu.RLock()
	defer f.node.mu.RUnlock()
	if off >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.readOnly {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: fs.ErrPermission}
	}
	allowed := f.fs.reserve(len(p))

	f.node.mu.Lock()
	if f.append {
		f.pos = int64(len(f.node.data))
	}
	end := f.pos + int64(allowed)
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	copy(f.node.data[f.pos:end], p[:allowed])
	if int(f.pos) < f.node.synced {
		// Overwriting synced bytes makes them volatile again.
		f.node.synced = int(f.pos)
	}
	f.node.modTime = time.Now()
	f.node.mu.Unlock()

	f.pos = end
	if allowed < len(p) {
		return allowed, ErrInjected
	}
	return allowed, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		f.node.mu.RLock()
		base = int64(len(f.node.data))
		f.node.mu.RUnlock()
	default:
		return 0, errors.New("vfs: invalid whence")
	}
	if base+offset < 0 {
		return 0, errors.New("vfs: negative position")
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *memFile) Sync() error {
	if f.closed {
		return os.ErrClosed
	}
	if err := f.fs.syncError(); err != nil {
		return err
	}
	f.node.mu.Lock()
	f.node.synced = len(f.node.data)
	f.node.mu.Unlock()
	return nil
}

func (f *memFile) Truncate(size int64) error {
	if f.closed {
		return os.ErrClosed
	}
	if f.readOnly {
		return &fs.PathError{Op: "truncate", Path: f.name, Err: fs.ErrPermission}
	}
	if err := f.fs.truncateError(); err != nil {
		return err
	}
	f.node.mu.Lock()
	defer f.node.mu.Unlock()
	if size < int64(len(f.node.data)) {
		f.node.data = f.node.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	if f.node.synced > int(size) {
		f.node.synced = int(size)
	}
	return nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	if f.closed {
		return nil, os.ErrClosed
	}
	return f.node.stat(f.name), nil
}

func (f *memFile) Name() string {
	return f.name
}

func (f *memFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (i *memFileInfo) Name() string       { return i.name }
func (i *memFileInfo) Size() int64        { return i.size }
func (i *memFileInfo) Mode() os.FileMode  { return 0o644 }
func (i *memFileInfo) ModTime() time.Time { return i.modTime }
func (i *memFileInfo) IsDir() bool        { return false }
func (i *memFileInfo) Sys() any           { return nil }
