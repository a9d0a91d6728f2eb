// entry.go: the logical cache record and its companions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"sort"
	"time"
)

// MainTag is the reserved tag for an entry's main serialized blob. Every
// other tag identifies an auxiliary artifact (spec §3).
const MainTag = ""

// maxTagLength is the maximum length of a StoredArtifact tag (spec §3).
const maxTagLength = 10

// StoredArtifact describes one blob recorded alongside a CacheEntry.
type StoredArtifact struct {
	ArtifactKey ArtifactKey
	// Tag distinguishes auxiliary blobs from the main serialized result.
	// MainTag ("") is reserved for the main blob. Must be <= 10 characters.
	Tag string
	// ContentHash is the hash of the bytes actually stored under
	// ArtifactKey, or ZeroHash if the backend cannot compute one (spec
	// §4.3's key-integrity contract).
	ContentHash EntityHash
	// SizeBytes is the blob's size on disk. Must be > 0.
	SizeBytes int64
}

// Validate checks the StoredArtifact's own invariants (tag length, positive
// size). It does not check ArtifactStorage state.
func (a StoredArtifact) Validate() error {
	if len(a.Tag) > maxTagLength {
		return NewErrInternal("StoredArtifact.Validate: tag too long", nil)
	}
	if a.SizeBytes <= 0 {
		return NewErrInternal("StoredArtifact.Validate: size must be positive", nil)
	}
	return nil
}

// CacheEntry is the logical record bound to one-or-more on-disk artifacts
// (spec §3).
type CacheEntry struct {
	LogicalKey LogicalKey
	// ComputeTime is the wall-clock duration the producer took to compute
	// the object. Must be >= 0.
	ComputeTime time.Duration
	// Weight is the caller-supplied importance multiplier. Default 1.0.
	Weight float64
	// MainArtifactKey must appear as a key in Artifacts.
	MainArtifactKey ArtifactKey
	// Artifacts maps every stored blob (main and auxiliary) by its
	// ArtifactKey. Must be non-empty.
	Artifacts map[ArtifactKey]StoredArtifact
	// SerializationClass tags producers whose (de)serialization cost is
	// assumed comparable (spec §3, §4.2).
	SerializationClass string
}

// Validate enforces invariant 1 (spec §3): MainArtifactKey must be a member
// of Artifacts, and Artifacts must be non-empty.
func (e *CacheEntry) Validate() error {
	if len(e.Artifacts) == 0 {
		return NewErrInternal("CacheEntry.Validate: artifacts must be non-empty", nil)
	}
	if _, ok := e.Artifacts[e.MainArtifactKey]; !ok {
		return NewErrInternal("CacheEntry.Validate: main artifact key not present in artifacts", nil)
	}
	for _, a := range e.Artifacts {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	if e.ComputeTime < 0 {
		return NewErrInternal("CacheEntry.Validate: compute time must be non-negative", nil)
	}
	return nil
}

// sortedArtifactKeys returns e.Artifacts' keys in the total order defined by
// ArtifactKey.Less.
func (e *CacheEntry) sortedArtifactKeys() []ArtifactKey {
	keys := make([]ArtifactKey, 0, len(e.Artifacts))
	for k := range e.Artifacts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// SizeBytes is the derived total size: the sum of every artifact's size
// (spec §3).
func (e *CacheEntry) SizeBytes() int64 {
	var total int64
	for _, a := range e.Artifacts {
		total += a.SizeBytes
	}
	return total
}

// ContentHash is the derived SHA-256 of the concatenation of every
// artifact's content hash, iterated in ascending ArtifactKey order (spec
// §3). It is therefore invariant under permutation of Artifacts' iteration
// order (property P5) because the iteration order is always re-derived by
// sorting, never taken from map order.
func (e *CacheEntry) ContentHash() EntityHash {
	keys := e.sortedArtifactKeys()
	parts := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h := e.Artifacts[k].ContentHash
		parts = append(parts, h[:])
	}
	return HashConcat(parts...)
}

// AuxiliaryArtifacts returns every artifact other than the main one, keyed
// by tag.
func (e *CacheEntry) AuxiliaryArtifacts() map[string]StoredArtifact {
	out := make(map[string]StoredArtifact)
	for k, a := range e.Artifacts {
		if k == e.MainArtifactKey && a.Tag == MainTag {
			continue
		}
		out[a.Tag] = a
	}
	return out
}

// AccessRecord is one append-only entry in a logical key's access log (spec
// §3).
type AccessRecord struct {
	LogicalKey LogicalKey
	Timestamp  time.Time
}

// SerializationSample records the cost of one (de)serialization, used to
// estimate future costs by class (spec §3, §4.2). Wiring this feedback into
// UtilityFunction is explicitly out of scope (spec §9); the sample table
// exists so a future version can use it.
type SerializationSample struct {
	Class              string
	Timestamp          time.Time
	SerializeDuration  time.Duration
	DeserializeDuration time.Duration
	SerializedSize     int64
	InMemorySize       int64
}

// SerializationSummary aggregates SerializationSample rows for one class
// (spec §4.2).
type SerializationSummary struct {
	MeanSerialize   time.Duration
	MeanDeserialize time.Duration
	SampleCount     int64
	OldestSample    time.Time
}

// EntryState is the observed lifecycle state of a CacheEntry (spec §4.5).
// It is always derived on demand from (CacheEntry presence, artifact
// presence) rather than stored as a field, keeping CacheEntry a pure value
// type per the source's re-architecture note (spec §9).
type EntryState uint8

const (
	// StateAbsent: no CacheEntry exists for the logical key.
	StateAbsent EntryState = iota
	// StateTracked: a CacheEntry exists but its artifacts were never saved
	// (utility was negative at admission time).
	StateTracked
	// StateResident: a CacheEntry exists and every one of its artifacts
	// exists in storage.
	StateResident
	// StateEvicted: a CacheEntry exists but at least one of its artifacts is
	// missing from storage (evicted, or never fully admitted after a
	// partial failure).
	StateEvicted
)

// String renders the state name for logging and diagnostics.
func (s EntryState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateTracked:
		return "tracked"
	case StateResident:
		return "resident"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}
