// memory.go: an in-memory ArtifactStorage for tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package storage

import (
	"sync"

	"github.com/agilira/objectcache"
)

// Memory is an in-memory ArtifactStorage with a caller-declared capacity,
// letting tests exercise admission/eviction decisions without touching a
// real filesystem. FreeSpace reports Capacity minus the sum of all stored
// blob sizes.
type Memory struct {
	mu       sync.Mutex
	Capacity int64
	blobs    map[objectcache.ArtifactKey][]byte
}

// NewMemory builds an empty Memory backend with the given capacity, in
// bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		Capacity: capacity,
		blobs:    make(map[objectcache.ArtifactKey][]byte),
	}
}

// CanonicalKey implements objectcache.ArtifactStorage; Memory keys are
// already canonical.
func (m *Memory) CanonicalKey(key objectcache.ArtifactKey) objectcache.ArtifactKey {
	return key
}

// FreeSpace implements objectcache.StorageRead.
func (m *Memory) FreeSpace() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var used int64
	for _, b := range m.blobs {
		used += int64(len(b))
	}
	return m.Capacity - used, nil
}

// StorageID implements objectcache.StorageRead.
func (m *Memory) StorageID() string {
	return "memory"
}

// Exists implements objectcache.StorageRead.
func (m *Memory) Exists(key objectcache.ArtifactKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok, nil
}

// Size implements objectcache.StorageRead.
func (m *Memory) Size(key objectcache.ArtifactKey) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return 0, objectcache.NewErrMissing("artifact", key.String())
	}
	return int64(len(b)), nil
}

// Hash implements objectcache.StorageRead.
func (m *Memory) Hash(key objectcache.ArtifactKey) (objectcache.EntityHash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return objectcache.EntityHash{}, objectcache.NewErrMissing("artifact", key.String())
	}
	return objectcache.HashBytes(b), nil
}

// Remove implements objectcache.StorageRead.
func (m *Memory) Remove(key objectcache.ArtifactKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return false, nil
	}
	delete(m.blobs, key)
	return true, nil
}

// Close implements objectcache.StorageRead.
func (m *Memory) Close() error {
	return nil
}

// Save implements objectcache.ArtifactStorage: create-exclusive.
func (m *Memory) Save(key objectcache.ArtifactKey, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; ok {
		return objectcache.NewErrAlreadyExists(key.String())
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[key] = cp
	return nil
}

// Load implements objectcache.ArtifactStorage.
func (m *Memory) Load(key objectcache.ArtifactKey) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, objectcache.NewErrMissing("artifact", key.String())
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

var _ objectcache.ArtifactStorage = (*Memory)(nil)
