// memory.go: an in-memory MetadataStore for tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package metastore

import (
	"sort"
	"sync"
	"time"

	"github.com/agilira/objectcache"
)

// Memory is an in-memory objectcache.MetadataStore. It has no I/O that can
// fail (its only errors are the contract's duplicate-key, missing-entry and
// closed-store errors) and requires no Commit durability guarantee, the same
// shortcut the original source's mock collaborators take to let tests
// exercise CacheEngine decisions without a real database.
type Memory struct {
	mu       sync.Mutex
	entries  map[objectcache.LogicalKey]objectcache.CacheEntry
	accesses map[objectcache.LogicalKey][]time.Time
	samples  []objectcache.SerializationSample
	closed   bool
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[objectcache.LogicalKey]objectcache.CacheEntry),
		accesses: make(map[objectcache.LogicalKey][]time.Time),
	}
}

func (m *Memory) checkOpen() error {
	if m.closed {
		return objectcache.NewErrClosed("metastore.Memory")
	}
	return nil
}

// InsertEntry implements objectcache.MetadataStore.
func (m *Memory) InsertEntry(entry objectcache.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.entries[entry.LogicalKey]; ok {
		return objectcache.NewErrDuplicateKey(entry.LogicalKey)
	}
	m.entries[entry.LogicalKey] = entry
	return nil
}

// UpdateEntry implements objectcache.MetadataStore.
func (m *Memory) UpdateEntry(entry objectcache.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.entries[entry.LogicalKey]; !ok {
		return objectcache.NewErrMissing("entry", entry.LogicalKey.String())
	}
	m.entries[entry.LogicalKey] = entry
	return nil
}

// GetEntry implements objectcache.MetadataStore.
func (m *Memory) GetEntry(key objectcache.LogicalKey) (*objectcache.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// GetEntryByArtifact implements objectcache.MetadataStore.
func (m *Memory) GetEntryByArtifact(artifactKey objectcache.ArtifactKey) (*objectcache.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	for _, entry := range m.entries {
		if _, ok := entry.Artifacts[artifactKey]; ok {
			e := entry
			return &e, nil
		}
	}
	return nil, nil
}

// IterEntries implements objectcache.MetadataStore.
func (m *Memory) IterEntries() ([]objectcache.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]objectcache.CacheEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalKey.String() < out[j].LogicalKey.String() })
	return out, nil
}

// RemoveEntry implements objectcache.MetadataStore.
func (m *Memory) RemoveEntry(key objectcache.LogicalKey, retainHistory bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	if !retainHistory {
		delete(m.accesses, key)
	}
	return true, nil
}

// AppendAccess implements objectcache.MetadataStore.
func (m *Memory) AppendAccess(key objectcache.LogicalKey, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.accesses[key] = append(m.accesses[key], timestamp)
	return nil
}

// GetLastAccess implements objectcache.MetadataStore.
func (m *Memory) GetLastAccess(key objectcache.LogicalKey) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return time.Time{}, err
	}
	history := m.accesses[key]
	if len(history) == 0 {
		return time.Time{}, nil
	}
	last := history[0]
	for _, t := range history[1:] {
		if t.After(last) {
			last = t
		}
	}
	return last, nil
}

// GetAccessHistory implements objectcache.MetadataStore.
func (m *Memory) GetAccessHistory(key objectcache.LogicalKey) ([]objectcache.AccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	history := m.accesses[key]
	sorted := make([]time.Time, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	out := make([]objectcache.AccessRecord, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, objectcache.AccessRecord{LogicalKey: key, Timestamp: t})
	}
	return out, nil
}

// AppendSerializationSample implements objectcache.MetadataStore.
func (m *Memory) AppendSerializationSample(sample objectcache.SerializationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.samples = append(m.samples, sample)
	return nil
}

// SummarizeSerialization implements objectcache.MetadataStore.
func (m *Memory) SummarizeSerialization(class string, filter objectcache.SerializationFilter) (objectcache.SerializationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return objectcache.SerializationSummary{}, err
	}

	var summary objectcache.SerializationSummary
	var totalSerialize, totalDeserialize time.Duration
	for _, s := range m.samples {
		if s.Class != class {
			continue
		}
		if !filter.Since.IsZero() && s.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && s.Timestamp.After(filter.Until) {
			continue
		}
		if summary.SampleCount == 0 || s.Timestamp.Before(summary.OldestSample) {
			summary.OldestSample = s.Timestamp
		}
		totalSerialize += s.SerializeDuration
		totalDeserialize += s.DeserializeDuration
		summary.SampleCount++
	}
	if summary.SampleCount > 0 {
		summary.MeanSerialize = totalSerialize / time.Duration(summary.SampleCount)
		summary.MeanDeserialize = totalDeserialize / time.Duration(summary.SampleCount)
	}
	return summary, nil
}

// AddArtifactToEntry implements objectcache.MetadataStore.
func (m *Memory) AddArtifactToEntry(key objectcache.LogicalKey, artifact objectcache.StoredArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	entry, ok := m.entries[key]
	if !ok {
		return objectcache.NewErrMissing("entry", key.String())
	}
	entry.Artifacts[artifact.ArtifactKey] = artifact
	m.entries[key] = entry
	return nil
}

// Commit implements objectcache.MetadataStore. Memory has no durability
// layer to flush; Commit only checks the store is open.
func (m *Memory) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkOpen()
}

// Close implements objectcache.MetadataStore.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ objectcache.MetadataStore = (*Memory)(nil)
