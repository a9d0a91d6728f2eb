// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"testing"
	"time"
)

func makeEntry(t *testing.T, withAux bool) CacheEntry {
	t.Helper()
	mainKey := NewPathArtifactKey("main.bin")
	artifacts := map[ArtifactKey]StoredArtifact{
		mainKey: {ArtifactKey: mainKey, Tag: MainTag, ContentHash: HashBytes([]byte("main")), SizeBytes: 10},
	}
	if withAux {
		auxKey := NewPathArtifactKey("aux.bin")
		artifacts[auxKey] = StoredArtifact{ArtifactKey: auxKey, Tag: "idx", ContentHash: HashBytes([]byte("aux")), SizeBytes: 5}
	}
	return CacheEntry{
		LogicalKey:      HashBytes([]byte("logical")),
		ComputeTime:     time.Second,
		Weight:          1.0,
		MainArtifactKey: mainKey,
		Artifacts:       artifacts,
	}
}

func TestCacheEntryValidate(t *testing.T) {
	entry := makeEntry(t, true)
	if err := entry.Validate(); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
}

func TestCacheEntryValidateRejectsEmptyArtifacts(t *testing.T) {
	entry := makeEntry(t, false)
	entry.Artifacts = nil
	if err := entry.Validate(); err == nil {
		t.Fatal("expected error for empty Artifacts")
	}
}

func TestCacheEntryValidateRejectsMissingMainKey(t *testing.T) {
	entry := makeEntry(t, false)
	entry.MainArtifactKey = NewPathArtifactKey("not-present.bin")
	if err := entry.Validate(); err == nil {
		t.Fatal("expected error when MainArtifactKey is absent from Artifacts")
	}
}

func TestCacheEntryValidateRejectsNegativeComputeTime(t *testing.T) {
	entry := makeEntry(t, false)
	entry.ComputeTime = -time.Second
	if err := entry.Validate(); err == nil {
		t.Fatal("expected error for negative ComputeTime")
	}
}

func TestCacheEntrySizeBytesSumsArtifacts(t *testing.T) {
	entry := makeEntry(t, true)
	if got := entry.SizeBytes(); got != 15 {
		t.Fatalf("SizeBytes() = %d, want 15", got)
	}
}

func TestCacheEntryContentHashStableUnderMapOrder(t *testing.T) {
	a := makeEntry(t, true)
	b := makeEntry(t, true)
	// Map iteration order is randomized by the runtime; ContentHash must not
	// depend on it (property P5).
	for i := 0; i < 20; i++ {
		if a.ContentHash() != b.ContentHash() {
			t.Fatal("ContentHash varied across calls despite identical artifacts")
		}
	}
}

func TestCacheEntryAuxiliaryArtifactsExcludesMain(t *testing.T) {
	entry := makeEntry(t, true)
	aux := entry.AuxiliaryArtifacts()
	if len(aux) != 1 {
		t.Fatalf("expected exactly one auxiliary artifact, got %d", len(aux))
	}
	if _, ok := aux[MainTag]; ok {
		t.Fatal("main artifact leaked into AuxiliaryArtifacts()")
	}
	if _, ok := aux["idx"]; !ok {
		t.Fatal("expected auxiliary tagged 'idx'")
	}
}

func TestEntryStateString(t *testing.T) {
	tests := []struct {
		state EntryState
		want  string
	}{
		{StateAbsent, "absent"},
		{StateTracked, "tracked"},
		{StateResident, "resident"},
		{StateEvicted, "evicted"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStoredArtifactValidateRejectsNonPositiveSize(t *testing.T) {
	a := StoredArtifact{ArtifactKey: NewPathArtifactKey("x"), Tag: MainTag, SizeBytes: 0}
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for zero SizeBytes")
	}
}

func TestStoredArtifactValidateRejectsLongTag(t *testing.T) {
	a := StoredArtifact{ArtifactKey: NewPathArtifactKey("x"), Tag: "way-too-long-a-tag", SizeBytes: 1}
	if err := a.Validate(); err == nil {
		t.Fatal("expected error for over-length tag")
	}
}
