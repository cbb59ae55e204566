package main

import (
	"bytes"
	"testing"

	"strata/internal/db"
	"strata/internal/vfs"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	fs := vfs.NewMemFS()
	engine, err := db.Open("/cli", db.WithFS(fs), db.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	var out bytes.Buffer
	return &shell{engine: engine, fs: fs, out: &out}, &out
}

// exec runs one command line and returns what it printed.
func exec(sh *shell, out *bytes.Buffer, line string) string {
	out.Reset()
	sh.run(line)
	return out.String()
}

func TestShellPutGetDelete(t *testing.T) {
	sh, out := newTestShell(t)

	require.Equal(t, "ok\n", exec(sh, out, "put apple red"))
	require.Equal(t, "red\n", exec(sh, out, "get apple"))
	require.Equal(t, "ok\n", exec(sh, out, "del apple"))
	require.Equal(t, "(not found)\n", exec(sh, out, "get apple"))
	require.Equal(t, "usage: put <key> <value>\n", exec(sh, out, "put apple"))
	require.Equal(t, "unknown command\n", exec(sh, out, "frobnicate"))
}

func TestShellScanAndFlush(t *testing.T) {
	sh, out := newTestShell(t)

	exec(sh, out, "put a 1")
	exec(sh, out, "put b 2")
	require.Equal(t, "ok\n", exec(sh, out, "flush"))
	exec(sh, out, "put c 3")

	require.Equal(t, "a = 1\nb = 2\nc = 3\n(3 keys)\n", exec(sh, out, "scan"))
	require.Equal(t, "b = 2\n(1 keys)\n", exec(sh, out, "scan b c"))
	require.Contains(t, exec(sh, out, "tables"), "000002.sst entries=2")
}

func TestShellSeed(t *testing.T) {
	sh, out := newTestShell(t)

	require.Equal(t, "seeded 52 entries\n", exec(sh, out, "seed 2"))
	require.Equal(t, 2, sh.seedIndex)
	require.Equal(t, "artichoke1\n", exec(sh, out, "get apple1"))
	require.Equal(t, "2\n", exec(sh, out, "get "+seedIndexKey))
	require.Equal(t, 2, loadSeedIndex(sh.engine))
}

func TestShellDumpAndInspect(t *testing.T) {
	sh, out := newTestShell(t)

	exec(sh, out, "put apple red")
	require.Contains(t, exec(sh, out, "dump"), "Total entries: 1")

	exec(sh, out, "flush")
	require.Contains(t, exec(sh, out, "dump 000002.sst"), "apple")
	require.Contains(t, exec(sh, out, "inspect 000002.sst"), "Entries:       1")
	require.Contains(t, exec(sh, out, "inspect MANIFEST"), "Current WAL:    000003.log")
	require.Contains(t, exec(sh, out, "inspect 000009.sst"), "inspect error")
}

func TestShellExit(t *testing.T) {
	sh, _ := newTestShell(t)
	require.True(t, sh.run("exit"))
	require.False(t, sh.run("stats"))
}

func TestComplete(t *testing.T) {
	require.Equal(t, []string{"scan", "seed", "stats"}, complete("s"))
	require.Empty(t, complete("zz"))
}
