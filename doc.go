// Package objectcache implements a utility-driven, content-addressed object
// cache for the results of expensive computations (compiled models,
// numerical inferences, heavy transformations).
//
// # Overview
//
// Callers hand the cache a Producer — a description of a computation plus
// functions to execute, serialize, and deserialize its result. The cache
// either returns a previously stored result or runs the producer, deciding
// whether to persist the outcome based on a continuous, comparable utility
// function that trades compute cost against storage cost.
//
// The package is built around five collaborators:
//
//   - MetadataStore: a durable catalog of entries, stored artifacts, access
//     history, and serialization-performance samples (see package metastore).
//   - ArtifactStorage: an opaque blob store keyed by an ArtifactKey (see
//     package storage).
//   - KeyGenerator: derives artifact keys from logical entry keys.
//   - UtilityFunction: a pure, side-effect-free scorer mapping
//     (entry, free space, last access) to a real number.
//   - CacheEngine: admission, lookup, serve-or-compute orchestration,
//     eviction, verification, and bookkeeping.
//
// # Quick Start
//
//	store, _ := metastore.OpenSQLite("cache.db")
//	blobs := storage.NewFilesystem("./blobs")
//	engine, _ := objectcache.NewCacheEngine(store, blobs, objectcache.FilesystemKeyGenerator{},
//		objectcache.DefaultConfig())
//
//	result, err := engine.LookupOrProduce(myProducer, objectcache.LookupOptions{})
//
// # Concurrency
//
// A CacheEngine is single-threaded and cooperative: producers run inline on
// the caller's goroutine, and a producer that blocks on I/O blocks the
// entire engine call. The engine itself takes an internal mutex around every
// public operation so that callers who do share one engine across goroutines
// still observe correct, serialized behavior — the spec never promised
// concurrent speedup, only well-defined results.
//
// # Errors
//
// objectcache uses structured errors from github.com/agilira/go-errors.
// Every public operation returns either a value or a typed error; there is
// no silent fallback to recompute when verification fails.
//
//	if objectcache.IsCorrupted(err) {
//	    // caller decides whether to evict and recompute
//	}
//
// # Configuration
//
// Config carries the five utility parameters (CostPerMinuteComputeVs1GB,
// ReservedFreeSpaceBytes, HalfLifeHours, UtilityAt1GB,
// MarginalUtilityExponent) plus ambient knobs (Logger, TimeProvider,
// MetricsCollector). DefaultConfig returns the documented defaults; Validate
// normalizes zero-valued fields rather than rejecting them, the way
// balios.Config.Validate does.
//
// # Hot reload
//
// The utility parameters can be live-reloaded from a config file via
// HotConfig, which watches the file with github.com/agilira/argus and
// atomically swaps the engine's evaluator. Package cmd/objectcache-inspect
// is a small diagnostics CLI (iteration, size summary, pretty-printing) built
// on github.com/agilira/flash-flags.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package objectcache
