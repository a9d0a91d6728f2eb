// Package storage provides concrete objectcache.ArtifactStorage
// implementations: Filesystem, the reference backend, and Memory, an
// in-memory collaborator for tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package storage

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/agilira/objectcache"
)

// Filesystem is the reference ArtifactStorage: every ArtifactKey is a
// relative path rooted at Root. FreeSpace reports the filesystem's
// available space via statfs.
type Filesystem struct {
	Root string
	id   string
}

// NewFilesystem builds a Filesystem backend rooted at root. root must
// already exist.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{Root: root, id: "filesystem:" + root}
}

func (f *Filesystem) resolve(key objectcache.ArtifactKey) string {
	return filepath.Join(f.Root, filepath.FromSlash(key.Value))
}

// CanonicalKey implements objectcache.ArtifactStorage.
func (f *Filesystem) CanonicalKey(key objectcache.ArtifactKey) objectcache.ArtifactKey {
	return key
}

// FreeSpace implements objectcache.StorageRead.
func (f *Filesystem) FreeSpace() (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(f.Root, &stat); err != nil {
		return 0, objectcache.NewErrStoreUnavailable("statfs", err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// StorageID implements objectcache.StorageRead.
func (f *Filesystem) StorageID() string {
	return f.id
}

// Exists implements objectcache.StorageRead.
func (f *Filesystem) Exists(key objectcache.ArtifactKey) (bool, error) {
	_, err := os.Stat(f.resolve(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, objectcache.NewErrStoreUnavailable("stat", err)
	}
	return true, nil
}

// Size implements objectcache.StorageRead.
func (f *Filesystem) Size(key objectcache.ArtifactKey) (int64, error) {
	info, err := os.Stat(f.resolve(key))
	if os.IsNotExist(err) {
		return 0, objectcache.NewErrMissing("artifact", key.String())
	}
	if err != nil {
		return 0, objectcache.NewErrStoreUnavailable("stat", err)
	}
	return info.Size(), nil
}

// Hash implements objectcache.StorageRead: it reads the blob and hashes it.
// Filesystem backends can always verify, so it never returns ZeroHash for a
// present key.
func (f *Filesystem) Hash(key objectcache.ArtifactKey) (objectcache.EntityHash, error) {
	data, err := f.Load(key)
	if err != nil {
		return objectcache.EntityHash{}, err
	}
	return objectcache.HashBytes(data), nil
}

// Remove implements objectcache.StorageRead.
func (f *Filesystem) Remove(key objectcache.ArtifactKey) (bool, error) {
	err := os.Remove(f.resolve(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, objectcache.NewErrStoreUnavailable("remove", err)
	}
	return true, nil
}

// Close implements objectcache.StorageRead. Filesystem holds no resources to
// release.
func (f *Filesystem) Close() error {
	return nil
}

// Save implements objectcache.ArtifactStorage: create-exclusive, refusing to
// overwrite an occupied key.
func (f *Filesystem) Save(key objectcache.ArtifactKey, data []byte) error {
	path := f.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return objectcache.NewErrStoreUnavailable("mkdirall", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return objectcache.NewErrAlreadyExists(key.String())
	}
	if err != nil {
		return objectcache.NewErrStoreUnavailable("openfile", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return objectcache.NewErrStoreUnavailable("write", err)
	}
	return nil
}

// Load implements objectcache.ArtifactStorage.
func (f *Filesystem) Load(key objectcache.ArtifactKey) ([]byte, error) {
	data, err := os.ReadFile(f.resolve(key))
	if os.IsNotExist(err) {
		return nil, objectcache.NewErrMissing("artifact", key.String())
	}
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("readfile", err)
	}
	return data, nil
}

var _ objectcache.ArtifactStorage = (*Filesystem)(nil)
