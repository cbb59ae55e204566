package main

import (
	"path/filepath"
	"strings"

	"strata/internal/inspect"
)

// resolve maps a bare file name such as "000002.sst" to its location inside
// the database directory. Paths with a directory component are used as is.
func (sh *shell) resolve(name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	paths := sh.engine.Paths()
	switch {
	case name == "MANIFEST":
		return paths.ManifestPath()
	case strings.HasSuffix(name, ".log"):
		return filepath.Join(paths.WALDir(), name)
	case strings.HasSuffix(name, ".sst"):
		return filepath.Join(paths.SSTableDir(), name)
	}
	return name
}

// dump prints the memtable, or the entries of the named file.
func (sh *shell) dump(args []string) {
	if len(args) > 1 {
		sh.printf("usage: dump [file.log|file.sst]\n")
		return
	}
	if len(args) == 0 {
		sh.printf("Dumping Memtable\n\n")
		if _, err := inspect.DumpEntries(sh.out, sh.engine.Memtable().Iterator()); err != nil {
			sh.printf("error reading entry: %v\n", err)
		}
		return
	}
	if err := inspect.Dump(sh.out, sh.fs, sh.resolve(args[0])); err != nil {
		sh.printf("dump error: %v\n", err)
	}
}
