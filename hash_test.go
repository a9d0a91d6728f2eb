// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import "testing"

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	if a != b {
		t.Fatalf("HashBytes not deterministic: %v != %v", a, b)
	}
}

func TestHashBytesDiffers(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("world"))
	if a == b {
		t.Fatal("HashBytes produced same digest for different input")
	}
}

func TestHashConcatOrderSensitive(t *testing.T) {
	a := HashConcat([]byte("a"), []byte("b"))
	b := HashConcat([]byte("b"), []byte("a"))
	if a == b {
		t.Fatal("HashConcat should be sensitive to part order")
	}
}

func TestHashConcatNeverZero(t *testing.T) {
	h := HashConcat([]byte{})
	if h.IsZero() {
		t.Fatal("HashConcat of empty input should not collide with ZeroHash")
	}
}

func TestEntityHashRoundTrip(t *testing.T) {
	h := HashBytes([]byte("round trip me"))
	s := h.String()
	parsed, err := ParseEntityHash(s)
	if err != nil {
		t.Fatalf("ParseEntityHash: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %v != %v", parsed, h)
	}
}

func TestParseEntityHashRejectsBadLength(t *testing.T) {
	if _, err := ParseEntityHash("not-a-valid-hash"); err == nil {
		t.Fatal("expected error for malformed hash string")
	}
}

func TestZeroHashIsZero(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Fatal("ZeroHash.IsZero() should be true")
	}
	if HashBytes(nil).IsZero() {
		t.Fatal("HashBytes(nil) should not equal ZeroHash")
	}
}
