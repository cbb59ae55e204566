package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
)

const historyFile = ".strata_history"

// history persists the liner prompt history in the user's home directory.
type history struct {
	file string
}

func newHistory() *history {
	home, err := os.UserHomeDir()
	if err != nil {
		return &history{}
	}
	return &history{file: filepath.Join(home, historyFile)}
}

func (h *history) load(line *liner.State) {
	if h.file == "" {
		return
	}
	f, err := os.Open(h.file)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to read history: %v\n", err)
	}
}

func (h *history) save(line *liner.State) {
	if h.file == "" {
		return
	}
	f, err := os.Create(h.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save history: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save history: %v\n", err)
	}
}
