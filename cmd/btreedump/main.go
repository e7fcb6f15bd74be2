// Command btreedump attaches to an existing blocktree index file and
// writes a traversal of it to stdout, mirroring
// original_source/btree_display.cc's filestem/cachesize/dot-or-normal
// invocation.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mstenberg/blocktree/btree"
	"github.com/mstenberg/blocktree/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "btreedump:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path      = flag.String("file", "", "path to the index file")
		blockSize = flag.Uint("blocksize", 4096, "block size in bytes (must match the file's attach parameters)")
		keySize   = flag.Uint("keysize", 8, "key size in bytes")
		valueSize = flag.Uint("valuesize", 8, "value size in bytes")
		mode      = flag.String("mode", "depth", "traversal mode: depth|dot|sorted")
	)
	flag.Parse()

	if *path == "" {
		flag.Usage()
		return fmt.Errorf("-file is required")
	}

	displayMode, err := parseMode(*mode)
	if err != nil {
		return err
	}

	info, err := os.Stat(*path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", *path, err)
	}
	numBlocks := uint32(info.Size()) / uint32(*blockSize)

	fs, err := store.NewFileStore(*path, uint32(*blockSize), numBlocks)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer fs.Close()

	ix, err := btree.Attach(fs, uint32(*keySize), uint32(*valueSize), false)
	if err != nil {
		return fmt.Errorf("attach index: %w", err)
	}

	if err := ix.Display(os.Stdout, displayMode); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	if err := ix.Detach(); err != nil {
		return fmt.Errorf("detach index: %w", err)
	}

	stats := fs.Stats()
	fmt.Fprintf(os.Stderr, "numallocs       = %d\n", stats.NumAllocs)
	fmt.Fprintf(os.Stderr, "numdeallocs     = %d\n", stats.NumDeallocs)
	fmt.Fprintf(os.Stderr, "numreads        = %d\n", stats.NumReads)
	fmt.Fprintf(os.Stderr, "numdiskreads    = %d\n", stats.NumDiskReads)
	fmt.Fprintf(os.Stderr, "numwrites       = %d\n", stats.NumWrites)
	fmt.Fprintf(os.Stderr, "numdiskwrites   = %d\n", stats.NumDiskWrites)

	return nil
}

func parseMode(s string) (btree.DisplayMode, error) {
	switch s {
	case "depth":
		return btree.Depth, nil
	case "dot":
		return btree.DepthDot, nil
	case "sorted":
		return btree.SortedKeyVal, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want depth|dot|sorted)", s)
	}
}
