// Package vfs abstracts the file operations the storage components need so
// that tests can substitute an in-memory file system with crash and fault
// injection.
package vfs

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// File is the subset of *os.File used by the WAL and SSTable code.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.Seeker
	io.Closer
	// Sync commits the current contents of the file to stable storage.
	Sync() error
	// Truncate changes the size of the file.
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
	Name() string
}

// FS defines methods for file operations.
type FS interface {
	// Create creates or truncates the named file for reading and writing.
	Create(name string) (File, error)
	// Open opens the named file read-only.
	Open(name string) (File, error)
	// OpenFile is the generalized open call, taking os.O_* flags.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldname, newname string) error
	MkdirAll(dir string, perm os.FileMode) error
	// List returns the sorted base names of regular files in dir.
	List(dir string) ([]string, error)
	Stat(name string) (os.FileInfo, error)
}

// Default is the operating system file system.
var Default FS = osFS{}

type osFS struct{}

func (osFS) Create(name string) (File, error) {
	return os.Create(name)
}

func (osFS) Open(name string) (File, error) {
	return os.Open(name)
}

func (osFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}

// Rename moves the file and syncs the parent directory so the new name is
// durable.
func (osFS) Rename(oldname, newname string) error {
	if err := os.Rename(oldname, newname); err != nil {
		return err
	}
	dir, err := os.Open(filepath.Dir(newname))
	if err != nil {
		return err
	}
	defer dir.Close()
	// Some platforms refuse to fsync directories; the rename itself succeeded.
	_ = dir.Sync()
	return nil
}

func (osFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (osFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func (osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// Exists reports whether name exists on fs.
func Exists(fs FS, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}
