package common

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	walExt      = ".log"
	sstableExt  = ".sst"
	manifestTmp = "MANIFEST.tmp"
)

// PathManager derives every file name of a database from its root directory.
type PathManager struct {
	root string
}

func NewPathManager(root string) *PathManager {
	return &PathManager{root: root}
}

func (p *PathManager) Root() string {
	return p.root
}

func (p *PathManager) WALDir() string {
	return filepath.Join(p.root, "wal")
}

func (p *PathManager) SSTableDir() string {
	return filepath.Join(p.root, "sstable")
}

// WALPath returns the file path for a WAL with the given file number.
func (p *PathManager) WALPath(fileNo FileNo) string {
	return filepath.Join(p.WALDir(), fmt.Sprintf("%06d%s", fileNo, walExt))
}

// SSTablePath returns the file path for an SSTable with the given file number.
func (p *PathManager) SSTablePath(fileNo FileNo) string {
	return filepath.Join(p.SSTableDir(), fmt.Sprintf("%06d%s", fileNo, sstableExt))
}

func (p *PathManager) ManifestPath() string {
	return filepath.Join(p.root, "MANIFEST")
}

func (p *PathManager) ManifestTmpPath() string {
	return filepath.Join(p.root, manifestTmp)
}

// ParseFileNo extracts the number from a WAL or SSTable file name such as
// "sstable/000123.sst".
func ParseFileNo(path string) (FileNo, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(strings.TrimSuffix(base, sstableExt), walExt)
	n, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse file number from %s: %w", path, err)
	}
	return FileNo(n), nil
}
