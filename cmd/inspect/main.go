package main

import (
	"flag"
	"fmt"
	"os"

	"strata/internal/inspect"
	"strata/internal/vfs"
)

func main() {
	dump := flag.Bool("dump", false, "print every entry instead of the file structure")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-dump] <file.log|file.sst|MANIFEST>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	run := inspect.Inspect
	if *dump {
		run = inspect.Dump
	}

	failed := false
	for i, path := range flag.Args() {
		if i > 0 {
			fmt.Println()
		}
		if err := run(os.Stdout, vfs.Default, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
