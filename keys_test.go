// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import "testing"

func TestArtifactKeyLessTotalOrder(t *testing.T) {
	a := NewPathArtifactKey("a")
	b := NewPathArtifactKey("b")
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) == false && a.Less(b) == false {
		t.Fatal("Less must order two distinct keys one way or the other")
	}
}

func TestArtifactKeyLessTiebreakByKind(t *testing.T) {
	path := ArtifactKey{Kind: ArtifactKeyPath, Value: "x"}
	abstract := ArtifactKey{Kind: ArtifactKeyAbstract, Value: "x"}
	if !path.Less(abstract) {
		t.Fatal("expected path variant to sort before abstract variant for equal values")
	}
}

func TestArtifactKeyIsZero(t *testing.T) {
	var zero ArtifactKey
	if !zero.IsZero() {
		t.Fatal("zero-value ArtifactKey should report IsZero")
	}
	if NewPathArtifactKey("x").IsZero() {
		t.Fatal("non-empty ArtifactKey should not report IsZero")
	}
}

func TestArtifactKeyShorten(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		maxLen int
		want   string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exact limit", "abcdefghij", 10, "abcdefghij"},
		{"needs collapsing", "abcdefghijklmnopqrstuvwxyz", 10, "abcd…vwxyz"},
		{"non-positive limit is no-op", "abcdefghij", 0, "abcdefghij"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewAbstractArtifactKey(tt.value)
			got := k.Shorten(tt.maxLen)
			if got != tt.want {
				t.Fatalf("Shorten(%d) = %q, want %q", tt.maxLen, got, tt.want)
			}
			if tt.maxLen > 0 && len([]rune(got)) > tt.maxLen {
				t.Fatalf("Shorten(%d) = %q exceeds max length", tt.maxLen, got)
			}
		})
	}
}

func TestFilesystemKeyGeneratorDeterministic(t *testing.T) {
	gen := FilesystemKeyGenerator{Subfolder: "blobs", Prefix: "obj-", Ext: "bin", HashLength: 8}
	key := HashBytes([]byte("logical-key"))

	a := gen.DeriveArtifactKey(key)
	b := gen.DeriveArtifactKey(key)
	if a != b {
		t.Fatalf("DeriveArtifactKey not deterministic: %v != %v", a, b)
	}
	if a.Kind != ArtifactKeyPath {
		t.Fatal("FilesystemKeyGenerator must produce path-kind keys")
	}
}

func TestFilesystemKeyGeneratorDistinctInputs(t *testing.T) {
	gen := FilesystemKeyGenerator{HashLength: 16, Ext: "bin"}
	a := gen.DeriveArtifactKey(HashBytes([]byte("one")))
	b := gen.DeriveArtifactKey(HashBytes([]byte("two")))
	if a == b {
		t.Fatal("distinct logical keys produced the same artifact key")
	}
}

func TestFilesystemKeyGeneratorDefaultHashLength(t *testing.T) {
	gen := FilesystemKeyGenerator{}
	key := gen.DeriveArtifactKey(HashBytes([]byte("x")))
	if key.Value == "" {
		t.Fatal("expected a non-empty derived key with default hash length")
	}
}
