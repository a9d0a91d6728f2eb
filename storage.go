// storage.go: the opaque blob store contract
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

// StorageRead is the read-only surface of ArtifactStorage (spec §4.3).
type StorageRead interface {
	// FreeSpace returns the bytes currently free, after any headroom the
	// backend itself reserves internally.
	FreeSpace() (int64, error)

	// StorageID identifies this storage backend instance, for logging and
	// diagnostics.
	StorageID() string

	// Exists reports whether key is present.
	Exists(key ArtifactKey) (bool, error)

	// Size returns the byte size of the blob stored under key. Returns an
	// error satisfying IsMissing if key is absent.
	Size(key ArtifactKey) (int64, error)

	// Hash returns the content hash of the bytes stored under key. If the
	// backend cannot compute one, it returns ZeroHash, nil: a "not
	// verifiable" sentinel against which verification passes trivially
	// (spec §4.3's key-integrity contract). Returns an error satisfying
	// IsMissing if key is absent.
	Hash(key ArtifactKey) (EntityHash, error)

	// Remove deletes the blob at key. Returns (false, nil) if key was
	// already absent; deletes are idempotent in effect.
	Remove(key ArtifactKey) (bool, error)

	// Close releases resources held by the backend.
	Close() error
}

// ArtifactStorage is the full blob-store interface: StorageRead plus
// mutation (spec §4.3).
type ArtifactStorage interface {
	StorageRead

	// Save writes data under key. Returns an error satisfying
	// IsAlreadyExists if key is already occupied — saves are
	// create-exclusive, never a silent overwrite.
	Save(key ArtifactKey, data []byte) error

	// Load reads the bytes stored under key. Returns an error satisfying
	// IsMissing if key is absent.
	Load(key ArtifactKey) ([]byte, error)

	// CanonicalKey resolves key relative to the backend's root, e.g.
	// joining a relative path onto a base directory. Backends for which
	// this is a no-op may return key unchanged.
	CanonicalKey(key ArtifactKey) ArtifactKey
}
