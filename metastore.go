// metastore.go: the durable metadata catalog contract
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import "time"

// SerializationFilter narrows SummarizeSerialization to a time window.
// A zero Since/Until means "no lower/upper bound".
type SerializationFilter struct {
	Since time.Time
	Until time.Time
}

// MetadataStore is the durable catalog of entries, stored artifacts, access
// history, and serialization-performance samples (spec §4.2). It is a
// single-writer, single-reader abstraction from the CacheEngine's
// perspective: the engine never opens two concurrent mutating calls against
// one store.
type MetadataStore interface {
	// InsertEntry adds a new entry. Returns an error satisfying
	// IsDuplicateKey if entry.LogicalKey already has an entry.
	InsertEntry(entry CacheEntry) error

	// UpdateEntry replaces an existing entry's mutable fields (compute
	// time, weight, artifacts, serialization class). Returns an error
	// satisfying IsMissing if no entry exists for entry.LogicalKey.
	UpdateEntry(entry CacheEntry) error

	// GetEntry returns the entry for key, or (nil, nil) if absent.
	GetEntry(key LogicalKey) (*CacheEntry, error)

	// GetEntryByArtifact returns the entry that owns artifactKey, or
	// (nil, nil) if no entry references it.
	GetEntryByArtifact(artifactKey ArtifactKey) (*CacheEntry, error)

	// IterEntries returns every entry currently in the store. Order is
	// unspecified but stable within one call.
	IterEntries() ([]CacheEntry, error)

	// RemoveEntry deletes the entry for key. If retainHistory is false, its
	// access history is deleted too. Returns (false, nil) if no entry
	// existed.
	RemoveEntry(key LogicalKey, retainHistory bool) (bool, error)

	// AppendAccess appends one AccessRecord for key.
	AppendAccess(key LogicalKey, timestamp time.Time) error

	// GetLastAccess returns the most recent access timestamp for key, or
	// the zero Time if none is recorded.
	GetLastAccess(key LogicalKey) (time.Time, error)

	// GetAccessHistory returns every AccessRecord for key, oldest first.
	GetAccessHistory(key LogicalKey) ([]AccessRecord, error)

	// AppendSerializationSample records one (de)serialization cost sample.
	AppendSerializationSample(sample SerializationSample) error

	// SummarizeSerialization aggregates samples for class within filter's
	// time window.
	SummarizeSerialization(class string, filter SerializationFilter) (SerializationSummary, error)

	// AddArtifactToEntry attaches an auxiliary blob record to an existing
	// entry. Returns an error satisfying IsMissing if no entry exists for
	// key.
	AddArtifactToEntry(key LogicalKey, artifact StoredArtifact) error

	// Commit flushes pending mutations durably. A crash before Commit may
	// lose recent mutations but must not corrupt earlier committed state.
	Commit() error

	// Close releases resources. Subsequent calls on a closed store return
	// an error satisfying IsClosed.
	Close() error
}
