// Command objectcache-inspect is a diagnostics CLI over a cache's metadata
// catalog and artifact storage: it lists entries, prints a size summary, and
// can trigger a manual eviction sweep.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"fmt"
	"os"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/objectcache"
	"github.com/agilira/objectcache/metastore"
	"github.com/agilira/objectcache/storage"
)

func main() {
	flags := flashflags.NewFlagSet("objectcache-inspect", flashflags.ExitOnError)
	dbPath := flags.String("db", "objectcache.sqlite", "path to the metadata catalog")
	storageRoot := flags.String("storage", "./objectcache-blobs", "path to the artifact storage root")
	command := flags.String("cmd", "list", "one of: list, summary, evict")
	onlyExisting := flags.Bool("resident-only", false, "list: only show entries whose artifacts are currently resident")
	retainHistory := flags.Bool("retain-history", true, "evict: keep access history for evicted entries")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "objectcache-inspect:", err)
		os.Exit(2)
	}

	if err := run(*dbPath, *storageRoot, *command, *onlyExisting, *retainHistory); err != nil {
		fmt.Fprintln(os.Stderr, "objectcache-inspect:", err)
		os.Exit(1)
	}
}

func run(dbPath, storageRoot, command string, onlyExisting, retainHistory bool) error {
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return err
	}

	store, err := metastore.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	backend := storage.NewFilesystem(storageRoot)
	keygen := objectcache.FilesystemKeyGenerator{Subfolder: "blobs", Ext: "bin"}

	engine, err := objectcache.NewCacheEngine(store, backend, keygen, objectcache.DefaultConfig())
	if err != nil {
		return err
	}

	switch command {
	case "list":
		return cmdList(engine, onlyExisting)
	case "summary":
		return cmdSummary(engine)
	case "evict":
		return cmdEvict(engine, retainHistory)
	default:
		return fmt.Errorf("unknown -cmd %q (want list, summary, or evict)", command)
	}
}

func cmdList(engine *objectcache.CacheEngine, onlyExisting bool) error {
	if !onlyExisting {
		return engine.PrintContents(os.Stdout)
	}
	entries, err := engine.IterEntries(true)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s  resident  %10d bytes  %s\n",
			entry.LogicalKey.String(), entry.SizeBytes(), entry.MainArtifactKey.Shorten(40))
	}
	return nil
}

func cmdSummary(engine *objectcache.CacheEngine) error {
	summary, err := engine.SizeSummary()
	if err != nil {
		return err
	}
	fmt.Printf("entries:           %d\n", summary.TotalEntries)
	fmt.Printf("resident entries:  %d\n", summary.ResidentEntries)
	fmt.Printf("resident bytes:    %d\n", summary.ResidentBytes)
	fmt.Printf("other entries:     %d\n", summary.OtherEntries)
	return nil
}

func cmdEvict(engine *objectcache.CacheEngine, retainHistory bool) error {
	evicted, err := engine.Evict(objectcache.EvictOptions{RetainHistory: retainHistory})
	if err != nil {
		return err
	}
	for _, key := range evicted {
		fmt.Println(key.String())
	}
	fmt.Fprintf(os.Stderr, "evicted %d entries\n", len(evicted))
	return nil
}
