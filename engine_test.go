// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache_test

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/agilira/objectcache"
	"github.com/agilira/objectcache/metastore"
	"github.com/agilira/objectcache/storage"
)

// fakeClock is a TimeProvider a test can advance explicitly, grounded in
// balios' own style of a pluggable time source for deterministic tests.
type fakeClock struct {
	now int64
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t.UnixNano()} }

func (c *fakeClock) Now() int64 { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now += int64(d) }

// testProducer is a minimal objectcache.Producer/MockProducer for exercising
// LookupOrProduce without a real expensive computation, grounded in the
// original source's mock_cache.py.
type testProducer struct {
	key          objectcache.LogicalKey
	payload      []byte
	declared     time.Duration
	hasDeclared  bool
	serClass     string
	computeCalls int
	auxiliaries  map[string]objectcache.ArtifactKey
	protected    bool
}

func newTestProducer(name string, payload []byte, declared time.Duration) *testProducer {
	return &testProducer{
		key:         objectcache.HashBytes([]byte(name)),
		payload:     payload,
		declared:    declared,
		hasDeclared: true,
	}
}

func (p *testProducer) LogicalKey() objectcache.LogicalKey { return p.key }
func (p *testProducer) SerializationClass() string         { return p.serClass }

func (p *testProducer) Compute() (interface{}, error) {
	p.computeCalls++
	return p.payload, nil
}

func (p *testProducer) Serialize(object interface{}) ([]byte, error) {
	return object.([]byte), nil
}

func (p *testProducer) Instantiate(mainBytes []byte, aux map[string]objectcache.ArtifactKey) (interface{}, error) {
	if len(p.auxiliaries) == 0 && aux != nil {
		return nil, objectcache.NewErrUnexpectedAuxiliaries(p.key)
	}
	return mainBytes, nil
}

func (p *testProducer) AuxiliaryArtifacts(storage objectcache.ArtifactStorage) (map[string]objectcache.ArtifactKey, error) {
	return p.auxiliaries, nil
}

func (p *testProducer) ProtectAuxiliaries() { p.protected = true }

func (p *testProducer) ProposeKey() objectcache.ArtifactKey { return objectcache.ArtifactKey{} }

func (p *testProducer) DeclaredComputeTime() (time.Duration, bool) { return p.declared, p.hasDeclared }

var (
	_ objectcache.Producer     = (*testProducer)(nil)
	_ objectcache.MockProducer = (*testProducer)(nil)
)

func newTestEngine(t *testing.T, capacity int64, cfg objectcache.Config) (*objectcache.CacheEngine, *metastore.Memory, *storage.Memory, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	cfg.TimeProvider = clock
	store := metastore.NewMemory()
	blobs := storage.NewMemory(capacity)
	engine, err := objectcache.NewCacheEngine(store, blobs, objectcache.FilesystemKeyGenerator{Ext: "bin"}, cfg)
	if err != nil {
		t.Fatalf("NewCacheEngine: %v", err)
	}
	return engine, store, blobs, clock
}

// Scenario 1 (spec §8): small and slow wins admission.
func TestScenarioSmallAndSlowWins(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		ReservedFreeSpaceBytes:    1 << 30,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, blobs, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("small-slow", make([]byte, 128), 5*time.Minute)
	obj, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{})
	if err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}
	if len(obj.([]byte)) != 128 {
		t.Fatalf("unexpected object length %d", len(obj.([]byte)))
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state != objectcache.StateResident {
		t.Fatalf("expected StateResident, got %v", state)
	}

	key := objectcache.FilesystemKeyGenerator{Ext: "bin"}.DeriveArtifactKey(producer.key)
	exists, err := blobs.Exists(key)
	if err != nil || !exists {
		t.Fatalf("expected artifact to be stored, exists=%v err=%v", exists, err)
	}
}

// Scenario 2 (spec §8): large and fast loses, tracked but not stored.
func TestScenarioLargeAndFastLoses(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		ReservedFreeSpaceBytes:    1 << 30,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, blobs, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("large-fast", make([]byte, 1<<20), 0)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state != objectcache.StateTracked && state != objectcache.StateEvicted {
		t.Fatalf("expected a tracked-but-not-resident entry, got %v", state)
	}

	key := objectcache.FilesystemKeyGenerator{Ext: "bin"}.DeriveArtifactKey(producer.key)
	exists, err := blobs.Exists(key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("artifact must not be stored for a rejected admission")
	}
}

// Scenario 3 (spec §8): a mock producer under budget is admitted and a
// second lookup increments the access count by exactly one (property P3).
func TestScenarioMockBudgetAndIdempotentLookup(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, store, _, clock := newTestEngine(t, 100<<20, cfg)

	producer := newTestProducer("budget", make([]byte, 500*1024), 5*time.Second)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("first LookupOrProduce: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("second LookupOrProduce: %v", err)
	}
	if producer.computeCalls != 1 {
		t.Fatalf("expected Compute to run exactly once, ran %d times", producer.computeCalls)
	}

	entries, err := engine.IterEntries(false)
	if err != nil {
		t.Fatalf("IterEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}

	history, err := store.GetAccessHistory(producer.key)
	if err != nil {
		t.Fatalf("GetAccessHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected access count to increment by exactly one per lookup, got %d records", len(history))
	}
}

// Scenario 4 (spec §8): an eviction sweep under pressure never lets free
// space violate the reserved floor, after every admission-and-evict step and
// at the end.
func TestScenarioEvictionSweepUnderPressure(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		ReservedFreeSpaceBytes:    1 << 20,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	const capacity = 64 << 20
	engine, _, blobs, clock := newTestEngine(t, capacity, cfg)

	rng := rand.New(rand.NewSource(123))
	for i := 0; i < 200; i++ {
		size := int(rng.ExpFloat64() * 256 * 1024)
		if size <= 0 {
			size = 1
		}
		if size > capacity/2 {
			size = capacity / 2
		}
		computeSeconds := rng.ExpFloat64() * 30
		name := fmt.Sprintf("item-%d", i)
		producer := newTestProducer(name, make([]byte, size), time.Duration(computeSeconds*float64(time.Second)))

		if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
			t.Fatalf("LookupOrProduce(%s): %v", name, err)
		}
		clock.Advance(time.Second)

		if _, err := engine.Evict(objectcache.EvictOptions{}); err != nil {
			t.Fatalf("Evict after %s: %v", name, err)
		}

		free, err := blobs.FreeSpace()
		if err != nil {
			t.Fatalf("FreeSpace: %v", err)
		}
		if free < cfg.ReservedFreeSpaceBytes {
			t.Fatalf("free space %d violates reserved floor %d after %s", free, cfg.ReservedFreeSpaceBytes, name)
		}
	}

	free, err := blobs.FreeSpace()
	if err != nil {
		t.Fatalf("FreeSpace: %v", err)
	}
	if free < cfg.ReservedFreeSpaceBytes {
		t.Fatalf("final free space %d violates reserved floor", free)
	}
}

// Scenario 5 (spec §8): verify catches out-of-band tampering with the main
// blob's bytes.
func TestScenarioVerifyCatchesTampering(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, blobs, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("tamper", []byte("original bytes"), time.Minute)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("first LookupOrProduce: %v", err)
	}

	key := objectcache.FilesystemKeyGenerator{Ext: "bin"}.DeriveArtifactKey(producer.key)
	if _, err := blobs.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := blobs.Save(key, []byte("tampered!!!!!!!")); err != nil {
		t.Fatalf("Save (tamper): %v", err)
	}

	_, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{Verify: true})
	if err == nil {
		t.Fatal("expected an error from a tampered blob under verify")
	}
	if !objectcache.IsCorrupted(err) {
		t.Fatalf("expected IsCorrupted, got %v", err)
	}
}

// Scenario 6 (spec §8): mutating an auxiliary artifact out of band is caught
// when reuse_past_hash=false (StrictAuxiliaryCheck).
func TestScenarioAuxiliaryMutationDetection(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, blobs, _ := newTestEngine(t, 10<<30, cfg)

	aux1 := objectcache.NewPathArtifactKey("aux1.bin")
	aux2 := objectcache.NewPathArtifactKey("aux2.bin")
	if err := blobs.Save(aux1, []byte("aux-one")); err != nil {
		t.Fatalf("Save aux1: %v", err)
	}
	if err := blobs.Save(aux2, []byte("aux-two")); err != nil {
		t.Fatalf("Save aux2: %v", err)
	}

	producer := newTestProducer("with-aux", []byte("main bytes"), time.Minute)
	producer.auxiliaries = map[string]objectcache.ArtifactKey{"one": aux1, "two": aux2}

	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("first LookupOrProduce: %v", err)
	}

	if _, err := blobs.Remove(aux1); err != nil {
		t.Fatalf("Remove aux1: %v", err)
	}
	if err := blobs.Save(aux1, []byte("mutated!")); err != nil {
		t.Fatalf("Save (mutate aux1): %v", err)
	}

	_, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{StrictAuxiliaryCheck: true})
	if err == nil {
		t.Fatal("expected an error from a mutated auxiliary under StrictAuxiliaryCheck")
	}
	if !objectcache.IsAuxiliaryMutated(err) {
		t.Fatalf("expected IsAuxiliaryMutated, got %v", err)
	}
}

// Property P4: round-trip. Instantiate(Serialize(x)) == x for a producer with
// no auxiliaries.
func TestPropertyRoundTrip(t *testing.T) {
	cfg := objectcache.DefaultConfig()
	engine, _, _, _ := newTestEngine(t, 10<<30, cfg)

	payload := []byte("round trip payload")
	producer := newTestProducer("roundtrip", payload, time.Minute)

	first, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{})
	if err != nil {
		t.Fatalf("first LookupOrProduce: %v", err)
	}
	if !bytes.Equal(first.([]byte), payload) {
		t.Fatalf("round-trip mismatch on admission: got %q want %q", first, payload)
	}

	second, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{})
	if err != nil {
		t.Fatalf("second LookupOrProduce: %v", err)
	}
	if !bytes.Equal(second.([]byte), payload) {
		t.Fatalf("round-trip mismatch on fast path: got %q want %q", second, payload)
	}
}

// Property P6: post-eviction, every evicted entry's artifacts are gone from
// storage and the entry itself is gone from metadata (StateAbsent).
func TestPropertyPostEviction(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, blobs, clock := newTestEngine(t, 2<<20, cfg)

	producer := newTestProducer("evictable", make([]byte, 1<<20), 4*time.Hour)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}
	clock.Advance(365 * 24 * time.Hour)

	evicted, err := engine.Evict(objectcache.EvictOptions{RetainHistory: true})
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	found := false
	for _, k := range evicted {
		if k == producer.key {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to be evicted after a year of staleness", producer.key.String())
	}

	key := objectcache.FilesystemKeyGenerator{Ext: "bin"}.DeriveArtifactKey(producer.key)
	exists, err := blobs.Exists(key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected artifact to be removed from storage after eviction")
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state != objectcache.StateAbsent {
		t.Fatalf("expected StateAbsent after eviction, got %v", state)
	}
}

// Boundary case (spec §8): free space exactly equal to reserved_free_space
// rejects any new admission with utility -Inf.
func TestBoundaryFreeSpaceExactlyReserved(t *testing.T) {
	cfg := objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1,
		ReservedFreeSpaceBytes:    10 << 20,
		HalfLifeHours:             24,
		UtilityAt1GB:              2,
		MarginalUtilityExponent:   1,
	}
	engine, _, _, _ := newTestEngine(t, 10<<20, cfg)

	producer := newTestProducer("at-the-edge", []byte("x"), time.Hour)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state == objectcache.StateResident {
		t.Fatal("admission must be rejected when free space exactly equals the reserved floor")
	}
}

// Boundary case (spec §8): zero compute time with a non-zero size is always
// rejected, since benefit is zero and cost for any positive size is > 0.
func TestBoundaryZeroComputeTimeAlwaysRejected(t *testing.T) {
	cfg := objectcache.DefaultConfig()
	engine, _, _, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("zero-compute", make([]byte, 1<<20), 0)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state == objectcache.StateResident {
		t.Fatal("zero compute_time with nonzero size must never be admitted")
	}
}

func TestEngineRemoveDeletesEntryAndArtifacts(t *testing.T) {
	cfg := objectcache.DefaultConfig()
	engine, _, blobs, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("removable", []byte("payload"), time.Minute)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}

	removed, err := engine.Remove(producer.key, false)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected Remove to report true for an existing entry")
	}

	key := objectcache.FilesystemKeyGenerator{Ext: "bin"}.DeriveArtifactKey(producer.key)
	exists, err := blobs.Exists(key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected artifact to be gone after Remove")
	}

	state, err := engine.GetEntryState(producer.key)
	if err != nil {
		t.Fatalf("GetEntryState: %v", err)
	}
	if state != objectcache.StateAbsent {
		t.Fatalf("expected StateAbsent, got %v", state)
	}
}

func TestEngineSizeSummaryCountsResidentBytes(t *testing.T) {
	cfg := objectcache.DefaultConfig()
	engine, _, _, _ := newTestEngine(t, 10<<30, cfg)

	producer := newTestProducer("summary", make([]byte, 4096), time.Minute)
	if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
		t.Fatalf("LookupOrProduce: %v", err)
	}

	summary, err := engine.SizeSummary()
	if err != nil {
		t.Fatalf("SizeSummary: %v", err)
	}
	if summary.ResidentEntries != 1 {
		t.Fatalf("expected 1 resident entry, got %d", summary.ResidentEntries)
	}
	if summary.ResidentBytes != 4096 {
		t.Fatalf("expected 4096 resident bytes, got %d", summary.ResidentBytes)
	}
}

func TestEnginePrintContentsWritesEveryEntry(t *testing.T) {
	cfg := objectcache.DefaultConfig()
	engine, _, _, _ := newTestEngine(t, 10<<30, cfg)

	for _, name := range []string{"a", "b", "c"} {
		producer := newTestProducer(name, []byte(name), time.Minute)
		if _, err := engine.LookupOrProduce(producer, objectcache.LookupOptions{}); err != nil {
			t.Fatalf("LookupOrProduce(%s): %v", name, err)
		}
	}

	var buf bytes.Buffer
	if err := engine.PrintContents(&buf); err != nil {
		t.Fatalf("PrintContents: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty output from PrintContents")
	}
}

func TestUtilityEvaluateNegativeInfinityIsReallyInfinite(t *testing.T) {
	u := objectcache.NewUtilityFunction(objectcache.Config{
		CostPerMinuteComputeVs1GB: 0.1, HalfLifeHours: 24, UtilityAt1GB: 2, MarginalUtilityExponent: 1,
	})
	got := u.Evaluate(objectcache.EvaluateInput{
		SizeBytes: 2 << 30, FreeSpaceBytes: 1 << 30, Existing: false,
	})
	if !math.IsInf(got, -1) {
		t.Fatalf("expected -Inf, got %v", got)
	}
}
