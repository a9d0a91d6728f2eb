// keys.go: artifact keys and the key-generation contract
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"encoding/base64"
	"path"
	"strings"
)

// ArtifactKeyKind tags which of the two ArtifactKey variants a value holds
// (spec §3): a relative filesystem path, or an abstract identifier.
type ArtifactKeyKind uint8

const (
	// ArtifactKeyPath is a relative filesystem path under a storage root.
	ArtifactKeyPath ArtifactKeyKind = iota
	// ArtifactKeyAbstract is an opaque identifier meaningful only to the
	// ArtifactStorage backend that issued it.
	ArtifactKeyAbstract
)

// ArtifactKey identifies a single blob in ArtifactStorage. It is a tagged
// variant rather than an interface: the two kinds share one total-order
// comparison (lexicographic on Value, Kind as tiebreaker) so multi-blob
// content hashing (spec §3, invariant 5) is deterministic regardless of
// which backend produced the keys.
type ArtifactKey struct {
	Kind  ArtifactKeyKind
	Value string
}

// NewPathArtifactKey builds an ArtifactKey for the filesystem-path variant.
func NewPathArtifactKey(relativePath string) ArtifactKey {
	return ArtifactKey{Kind: ArtifactKeyPath, Value: path.Clean(relativePath)}
}

// NewAbstractArtifactKey builds an ArtifactKey for the abstract-identifier
// variant.
func NewAbstractArtifactKey(id string) ArtifactKey {
	return ArtifactKey{Kind: ArtifactKeyAbstract, Value: id}
}

// String serializes the key to a stable textual form suitable for use as a
// MetadataStore primary key and for the spec §6 persistence format.
func (k ArtifactKey) String() string {
	return k.Value
}

// IsZero reports whether k is the zero ArtifactKey (no key set).
func (k ArtifactKey) IsZero() bool {
	return k.Value == "" && k.Kind == ArtifactKeyPath
}

// Less defines the total, stable order over ArtifactKeys required for
// deterministic multi-blob content hashing (spec §3, invariant 5): first by
// Value, then by Kind to break ties between a path and an abstract
// identifier that happen to render to the same string.
func (k ArtifactKey) Less(other ArtifactKey) bool {
	if k.Value != other.Value {
		return k.Value < other.Value
	}
	return k.Kind < other.Kind
}

// Shorten renders a display-friendly, humanized form of k, collapsing the
// middle of a long value with an ellipsis so it fits within maxLen runes.
// Grounded in the original source's pretty_path.pretty_shorten, referenced
// by spec §3 as part of the abstract ArtifactKey's capability set.
func (k ArtifactKey) Shorten(maxLen int) string {
	v := k.Value
	if maxLen <= 0 || len(v) <= maxLen {
		return v
	}
	if maxLen <= 3 {
		return v[:maxLen]
	}
	head := (maxLen - 1) / 2
	tail := maxLen - 1 - head
	return v[:head] + "…" + v[len(v)-tail:]
}

// KeyGenerator derives artifact keys from logical entry keys (spec §4.4).
// Derivation is pure and deterministic: the same LogicalKey always yields
// the same ArtifactKey from a given generator instance.
type KeyGenerator interface {
	// DeriveArtifactKey derives the main artifact key for logicalKey.
	DeriveArtifactKey(logicalKey LogicalKey) ArtifactKey
}

// FilesystemKeyGenerator is the reference KeyGenerator: it builds paths of
// the form "<subfolder>/<prefix><base64(hash)[0:N]>.<ext>", replacing the
// path-unsafe base64 characters '/' and '+' with '_'.
type FilesystemKeyGenerator struct {
	// Subfolder is an optional directory prefix, e.g. "blobs". May be empty.
	Subfolder string
	// Prefix is prepended to the truncated hash, e.g. "obj-". May be empty.
	Prefix string
	// Ext is the file extension, without a leading dot, e.g. "bin". May be
	// empty.
	Ext string
	// HashLength is N, the number of base64 characters of the hash to keep.
	// If <= 0, DefaultArtifactKeyHashLength is used.
	HashLength int
}

// DeriveArtifactKey implements KeyGenerator.
func (g FilesystemKeyGenerator) DeriveArtifactKey(logicalKey LogicalKey) ArtifactKey {
	n := g.HashLength
	if n <= 0 {
		n = DefaultArtifactKeyHashLength
	}

	encoded := base64.StdEncoding.EncodeToString(logicalKey[:])
	encoded = strings.NewReplacer("/", "_", "+", "_").Replace(encoded)
	if n < len(encoded) {
		encoded = encoded[:n]
	}

	name := g.Prefix + encoded
	if g.Ext != "" {
		name += "." + g.Ext
	}

	if g.Subfolder != "" {
		return NewPathArtifactKey(path.Join(g.Subfolder, name))
	}
	return NewPathArtifactKey(name)
}
