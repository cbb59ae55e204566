package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"strata/internal/db"
	"strata/internal/vfs"
	"strata/internal/wal"

	"github.com/peterh/liner"
	"go.uber.org/zap"
)

const usage = "commands: put <key> <value> | get <key> | del <key> | scan [start] [end] | flush | seed <x> | " +
	"stats | tables | dump [file] | inspect <file> | exit"

var commands = []string{"put", "get", "del", "scan", "flush", "seed", "stats", "tables", "dump", "inspect", "exit"}

func main() {
	dir := flag.String("dir", "strata-data", "database directory")
	threshold := flag.Int64("flush-threshold", 64<<10, "memtable size in bytes that triggers a flush")
	syncMode := flag.String("sync", "full", "wal sync mode: full, normal or none")
	syncInterval := flag.Duration("sync-interval", db.DefaultOptions.SyncInterval, "background fsync period in normal sync mode")
	maxBatch := flag.Int("max-batch", db.DefaultOptions.MaxBatchSize, "records committed per group commit")
	quiet := flag.Bool("quiet", false, "disable engine logging")
	flag.Parse()

	mode, err := wal.ParseSyncMode(*syncMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	opts := []db.Option{
		db.WithMemtableFlushThreshold(*threshold),
		db.WithSyncMode(mode),
		db.WithSyncInterval(*syncInterval),
		db.WithMaxBatchSize(*maxBatch),
	}
	if *quiet {
		opts = append(opts, db.WithLogger(zap.NewNop()))
	}

	engine, err := db.Open(*dir, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Println("strata - lsm storage engine")
	fmt.Printf("config: dir=%s flush_threshold=%d sync=%s\n", *dir, *threshold, *syncMode)
	fmt.Println(usage)

	sh := &shell{engine: engine, fs: vfs.Default, out: os.Stdout, seedIndex: loadSeedIndex(engine)}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	hist := newHistory()
	hist.load(line)
	defer hist.save(line)

	for {
		input, err := line.Prompt("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if sh.run(input) {
			break
		}
	}
}

func complete(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// shell executes one command line at a time against an open database.
type shell struct {
	engine    *db.DB
	fs        vfs.FS
	out       io.Writer
	seedIndex int
}

// run executes a command line and reports whether the shell should exit.
func (sh *shell) run(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "put":
		if len(args) != 2 {
			sh.printf("usage: put <key> <value>\n")
			return false
		}
		if err := sh.engine.Put([]byte(args[0]), []byte(args[1])); err != nil {
			sh.printf("put error: %v\n", err)
			return false
		}
		sh.printf("ok\n")
	case "get":
		if len(args) != 1 {
			sh.printf("usage: get <key>\n")
			return false
		}
		value, err := sh.engine.Get([]byte(args[0]))
		if errors.Is(err, db.ErrNotFound) {
			sh.printf("(not found)\n")
			return false
		}
		if err != nil {
			sh.printf("get error: %v\n", err)
			return false
		}
		sh.printf("%s\n", value)
	case "del", "delete":
		if len(args) != 1 {
			sh.printf("usage: del <key>\n")
			return false
		}
		if err := sh.engine.Delete([]byte(args[0])); err != nil {
			sh.printf("delete error: %v\n", err)
			return false
		}
		sh.printf("ok\n")
	case "scan":
		sh.scan(args)
	case "flush":
		if err := sh.engine.Flush(); err != nil {
			sh.printf("flush error: %v\n", err)
			return false
		}
		sh.printf("ok\n")
	case "seed":
		if len(args) != 1 {
			sh.printf("usage: seed <x>\n")
			return false
		}
		x, err := strconv.Atoi(args[0])
		if err != nil || x < 1 {
			sh.printf("seed: x must be a positive integer\n")
			return false
		}
		sh.seed(x)
	case "stats":
		sh.stats()
	case "tables":
		sh.tables()
	case "dump":
		sh.dump(args)
	case "inspect":
		if len(args) != 1 {
			sh.printf("usage: inspect <file.log|file.sst|MANIFEST>\n")
			return false
		}
		sh.inspect(args[0])
	case "help":
		sh.printf("%s\n", usage)
	case "exit", "quit":
		return true
	default:
		sh.printf("unknown command\n")
	}
	return false
}

func (sh *shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) scan(args []string) {
	if len(args) > 2 {
		sh.printf("usage: scan [start] [end]\n")
		return
	}
	var start, end []byte
	if len(args) > 0 {
		start = []byte(args[0])
	}
	if len(args) > 1 {
		end = []byte(args[1])
	}
	kvs, err := sh.engine.Scan(start, end)
	if err != nil {
		sh.printf("scan error: %v\n", err)
		return
	}
	for _, kv := range kvs {
		sh.printf("%s = %s\n", kv.Key, kv.Value)
	}
	sh.printf("(%d keys)\n", len(kvs))
}
