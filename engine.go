// engine.go: admission, lookup, eviction orchestration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"container/heap"
	goerrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// LookupOptions configures one LookupOrProduce call.
type LookupOptions struct {
	// Weight is the caller-supplied importance multiplier for this
	// invocation. Zero means the default, 1.0.
	Weight float64

	// Verify recomputes the entry's content hash from storage on the fast
	// path and fails with an error satisfying IsCorrupted on mismatch.
	Verify bool

	// StrictAuxiliaryCheck, when true, is spec's reuse_past_hash=false: the
	// engine cross-checks that the auxiliary artifact key set still
	// matches what was previously recorded (failing with
	// IsNonFunctionalProducer otherwise) and that every auxiliary's fresh
	// hash still matches its recorded hash (failing with
	// IsAuxiliaryMutated otherwise). The zero value is reuse_past_hash's
	// default of true: past auxiliary observations are trusted without
	// re-verification.
	StrictAuxiliaryCheck bool

	// Verbose requests extra Logger output describing the decision path
	// taken (fast path, admitted, rejected, ...).
	Verbose bool
}

// EvictOptions configures one Evict sweep.
type EvictOptions struct {
	// RetainHistory, when true, keeps each evicted entry's access history
	// after its CacheEntry is removed (spec §4.5).
	RetainHistory bool
}

// CacheEngine is the orchestrator described in spec §4.5: admission,
// lookup, serve-or-compute, eviction, verification, and bookkeeping. It is
// single-threaded and cooperative (spec §5): an internal mutex serializes
// every public method so that sharing one engine across goroutines is safe,
// even though producers still run inline and block the caller.
type CacheEngine struct {
	store   MetadataStore
	storage ArtifactStorage
	keygen  KeyGenerator
	utility UtilityFunction
	cfg     Config
	mu      sync.Mutex
}

// NewCacheEngine builds a CacheEngine from its three collaborators and a
// Config. cfg is validated (and normalized) in place.
func NewCacheEngine(store MetadataStore, storage ArtifactStorage, keygen KeyGenerator, cfg Config) (*CacheEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g, ok := keygen.(FilesystemKeyGenerator); ok && g.HashLength <= 0 {
		g.HashLength = cfg.ArtifactKeyHashLength
		keygen = g
	}
	return &CacheEngine{
		store:   store,
		storage: storage,
		keygen:  keygen,
		utility: NewUtilityFunction(cfg),
		cfg:     cfg,
	}, nil
}

func (e *CacheEngine) now() time.Time {
	return time.Unix(0, e.cfg.TimeProvider.Now())
}

// LookupOrProduce implements spec §4.5: it serves a cached result when one
// is resident, or runs producer.Compute and decides whether to admit the
// result based on UtilityFunction.Evaluate.
func (e *CacheEngine) LookupOrProduce(producer Producer, opts LookupOptions) (result interface{}, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.cfg.TimeProvider.Now()
	now := e.now()
	weight := opts.Weight
	if weight == 0 {
		weight = 1.0
	}

	key := producer.LogicalKey()

	entry, err := e.store.GetEntry(key)
	if err != nil {
		return nil, NewErrStoreUnavailable("GetEntry", err)
	}

	if entry != nil {
		resident, err := e.allArtifactsExist(entry)
		if err != nil {
			return nil, err
		}
		if resident {
			obj, err := e.fastPath(producer, entry, now, opts)
			e.cfg.MetricsCollector.RecordLookup(e.cfg.TimeProvider.Now()-start, err == nil)
			return obj, err
		}
	}

	obj, err := e.computePath(producer, entry, key, now, weight, opts)
	e.cfg.MetricsCollector.RecordLookup(e.cfg.TimeProvider.Now()-start, false)
	return obj, err
}

// fastPath implements spec §4.5 step 3.
func (e *CacheEngine) fastPath(producer Producer, entry *CacheEntry, now time.Time, opts LookupOptions) (interface{}, error) {
	if opts.Verify {
		ok, recomputed, err := e.verifyContentHash(entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewErrCorrupted(entry.LogicalKey, entry.ContentHash(), recomputed)
		}
	}

	if opts.StrictAuxiliaryCheck {
		auxKeys, err := producer.AuxiliaryArtifacts(e.storage)
		fresh := CacheEntry{Artifacts: make(map[ArtifactKey]StoredArtifact, len(auxKeys))}
		for tag, ak := range auxKeys {
			hash, hashErr := e.storage.Hash(ak)
			err = goerrors.Join(err, hashErr)
			fresh.Artifacts[ak] = StoredArtifact{ArtifactKey: ak, Tag: tag, ContentHash: hash}
		}
		if err == nil {
			err = e.checkAuxiliaryConsistency(entry, fresh)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := e.store.AppendAccess(entry.LogicalKey, now); err != nil {
		return nil, NewErrStoreUnavailable("AppendAccess", err)
	}
	if err := e.commit(); err != nil {
		return nil, err
	}

	mainBytes, err := e.storage.Load(e.storage.CanonicalKey(entry.MainArtifactKey))
	if err != nil {
		return nil, err
	}

	var aux map[string]ArtifactKey
	auxArtifacts := entry.AuxiliaryArtifacts()
	if len(auxArtifacts) > 0 {
		aux = make(map[string]ArtifactKey, len(auxArtifacts))
		for tag, a := range auxArtifacts {
			aux[tag] = a.ArtifactKey
		}
	}

	if opts.Verbose {
		e.cfg.Logger.Info("objectcache: fast path hit", "logical_key", entry.LogicalKey.String())
	}

	return producer.Instantiate(mainBytes, aux)
}

// computePath implements spec §4.5 steps 4-9.
func (e *CacheEngine) computePath(producer Producer, entry *CacheEntry, key LogicalKey, now time.Time, weight float64, opts LookupOptions) (interface{}, error) {
	t0 := e.cfg.TimeProvider.Now()
	obj, computeErr := producer.Compute()
	t1 := e.cfg.TimeProvider.Now()
	if computeErr != nil {
		return nil, computeErr
	}
	computeTime := time.Duration(t1 - t0)
	if mock, ok := producer.(MockProducer); ok {
		if declared, has := mock.DeclaredComputeTime(); has {
			computeTime = declared
		}
	}

	mainKey := producer.ProposeKey()
	if mainKey.IsZero() {
		mainKey = e.keygen.DeriveArtifactKey(key)
	}

	auxKeys, err := producer.AuxiliaryArtifacts(e.storage)
	if err != nil {
		return nil, err
	}

	artifacts := make(map[ArtifactKey]StoredArtifact, len(auxKeys)+1)
	for tag, ak := range auxKeys {
		size, err := e.storage.Size(ak)
		if err != nil {
			return nil, err
		}
		hash, err := e.storage.Hash(ak)
		if err != nil {
			return nil, err
		}
		artifacts[ak] = StoredArtifact{ArtifactKey: ak, Tag: tag, ContentHash: hash, SizeBytes: size}
	}

	mainBytes, err := producer.Serialize(obj)
	if err != nil {
		return nil, err
	}
	mainHash := HashBytes(mainBytes)
	artifacts[mainKey] = StoredArtifact{
		ArtifactKey: mainKey,
		Tag:         MainTag,
		ContentHash: mainHash,
		SizeBytes:   int64(len(mainBytes)),
	}

	newEntry := CacheEntry{
		LogicalKey:         key,
		ComputeTime:        computeTime,
		Weight:             weight,
		MainArtifactKey:    mainKey,
		Artifacts:          artifacts,
		SerializationClass: producer.SerializationClass(),
	}

	if entry != nil && opts.StrictAuxiliaryCheck {
		if err := e.checkAuxiliaryConsistency(entry, newEntry); err != nil {
			return nil, err
		}
	}

	if entry != nil {
		newEntry.ComputeTime = maxDuration(entry.ComputeTime, newEntry.ComputeTime)
	}

	freeSpace, err := e.storage.FreeSpace()
	if err != nil {
		return nil, NewErrStoreUnavailable("FreeSpace", err)
	}

	lastAccess := time.Time{}
	if entry != nil {
		lastAccess, err = e.store.GetLastAccess(key)
		if err != nil {
			return nil, NewErrStoreUnavailable("GetLastAccess", err)
		}
	}

	u := e.utility.Evaluate(EvaluateInput{
		ComputeTime:    newEntry.ComputeTime,
		Weight:         newEntry.Weight,
		SizeBytes:      newEntry.SizeBytes(),
		FreeSpaceBytes: freeSpace,
		LastAccess:     lastAccess,
		Now:            now,
		Existing:       false,
	})

	if u < 0 {
		if err := e.persistTrackedOnly(entry, newEntry, now); err != nil {
			return nil, err
		}
		e.cfg.MetricsCollector.RecordRejection()
		if opts.Verbose {
			e.cfg.Logger.Info("objectcache: rejected (negative utility)", "logical_key", key.String(), "utility", u)
		}
		return obj, nil
	}

	if err := e.admit(entry, newEntry, mainBytes, now, len(auxKeys) > 0); err != nil {
		return nil, err
	}
	if len(auxKeys) > 0 {
		producer.ProtectAuxiliaries()
	}
	e.cfg.MetricsCollector.RecordAdmission(newEntry.SizeBytes())
	if opts.Verbose {
		e.cfg.Logger.Info("objectcache: admitted", "logical_key", key.String(), "utility", u)
	}
	return obj, nil
}

// checkAuxiliaryConsistency implements spec §4.5's reuse_past_hash=false
// cross-check.
func (e *CacheEngine) checkAuxiliaryConsistency(old *CacheEntry, fresh CacheEntry) error {
	oldAux := old.AuxiliaryArtifacts()
	freshAux := fresh.AuxiliaryArtifacts()

	if len(oldAux) != len(freshAux) {
		return NewErrNonFunctionalProducer(old.LogicalKey)
	}
	for tag, oldArtifact := range oldAux {
		freshArtifact, ok := freshAux[tag]
		if !ok || freshArtifact.ArtifactKey != oldArtifact.ArtifactKey {
			return NewErrNonFunctionalProducer(old.LogicalKey)
		}
		if !freshArtifact.ContentHash.IsZero() && !oldArtifact.ContentHash.IsZero() &&
			freshArtifact.ContentHash != oldArtifact.ContentHash {
			return NewErrAuxiliaryMutated(tag, freshArtifact.ArtifactKey.String())
		}
	}
	return nil
}

// persistTrackedOnly implements spec §4.5 step 8, u<0 branch: the entry is
// inserted or pessimistically merged into metadata without saving any
// blobs.
func (e *CacheEngine) persistTrackedOnly(old *CacheEntry, fresh CacheEntry, now time.Time) error {
	var err error
	if old == nil {
		err = e.store.InsertEntry(fresh)
	} else {
		err = e.store.UpdateEntry(fresh)
	}
	if err != nil {
		return NewErrStoreUnavailable("InsertEntry/UpdateEntry", err)
	}
	if err := e.store.AppendAccess(fresh.LogicalKey, now); err != nil {
		return NewErrStoreUnavailable("AppendAccess", err)
	}
	return e.commit()
}

// admit implements spec §4.5 step 8, u>=0 branch: save the main blob,
// verify its stored hash against the declared one, then persist metadata.
func (e *CacheEngine) admit(old *CacheEntry, fresh CacheEntry, mainBytes []byte, now time.Time, hasAuxiliaries bool) error {
	canonical := e.storage.CanonicalKey(fresh.MainArtifactKey)
	if err := e.storage.Save(canonical, mainBytes); err != nil {
		return err
	}

	storedHash, err := e.storage.Hash(canonical)
	if err != nil {
		return err
	}
	declaredHash := fresh.Artifacts[fresh.MainArtifactKey].ContentHash
	if !storedHash.IsZero() && storedHash != declaredHash {
		return NewErrHashMismatch(fresh.MainArtifactKey.String(), declaredHash, storedHash)
	}

	var storeErr error
	if old == nil {
		storeErr = e.store.InsertEntry(fresh)
	} else {
		storeErr = e.store.UpdateEntry(fresh)
	}
	if storeErr != nil {
		return NewErrStoreUnavailable("InsertEntry/UpdateEntry", storeErr)
	}

	if err := e.store.AppendAccess(fresh.LogicalKey, now); err != nil {
		return NewErrStoreUnavailable("AppendAccess", err)
	}
	return e.commit()
}

func (e *CacheEngine) commit() error {
	start := e.cfg.TimeProvider.Now()
	err := e.store.Commit()
	e.cfg.MetricsCollector.RecordCommit(e.cfg.TimeProvider.Now() - start)
	if err != nil {
		return NewErrStoreUnavailable("Commit", err)
	}
	return nil
}

// allArtifactsExist implements invariant 2 (spec §3): every artifact of a
// present entry must exist in storage for the entry to be reported as
// resident.
func (e *CacheEngine) allArtifactsExist(entry *CacheEntry) (bool, error) {
	for k := range entry.Artifacts {
		ok, err := e.storage.Exists(k)
		if err != nil {
			return false, NewErrStoreUnavailable("Exists", err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// verifyContentHash recomputes entry's content hash from storage. If any
// artifact's hash is not verifiable (ZeroHash), verification passes
// trivially (spec §4.3).
func (e *CacheEngine) verifyContentHash(entry *CacheEntry) (ok bool, recomputed EntityHash, err error) {
	keys := entry.sortedArtifactKeys()
	parts := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h, err := e.storage.Hash(k)
		if err != nil {
			return false, EntityHash{}, err
		}
		if h.IsZero() {
			return true, EntityHash{}, nil
		}
		parts = append(parts, h[:])
	}
	recomputed = HashConcat(parts...)
	return recomputed == entry.ContentHash(), recomputed, nil
}

// GetEntryState reports the observed lifecycle state of key's entry (spec
// §4.5). StateTracked is never returned here: from a point-in-time snapshot
// an entry whose artifacts are all absent is indistinguishable from one that
// was admitted and later evicted, so both observe as StateEvicted. No
// CacheEngine method returns StateTracked.
func (e *CacheEngine) GetEntryState(key LogicalKey) (EntryState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.store.GetEntry(key)
	if err != nil {
		return StateAbsent, NewErrStoreUnavailable("GetEntry", err)
	}
	if entry == nil {
		return StateAbsent, nil
	}
	resident, err := e.allArtifactsExist(entry)
	if err != nil {
		return StateAbsent, err
	}
	if resident {
		return StateResident, nil
	}
	return StateEvicted, nil
}

// evictItem is one candidate in Evict's min-heap.
type evictItem struct {
	entry   CacheEntry
	utility float64
}

type evictHeap []evictItem

func (h evictHeap) Len() int            { return len(h) }
func (h evictHeap) Less(i, j int) bool  { return h[i].utility < h[j].utility }
func (h evictHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *evictHeap) Push(x interface{}) { *h = append(*h, x.(evictItem)) }
func (h *evictHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Evict runs one pruning pass (spec §4.5): it builds a min-heap of resident
// entries with negative utility and repeatedly evicts the worst one,
// re-evaluating against the current free-space snapshot each time, until
// the worst remaining candidate's utility is no longer negative.
func (e *CacheEngine) Evict(opts EvictOptions) ([]LogicalKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	freeSpace, err := e.storage.FreeSpace()
	if err != nil {
		return nil, NewErrStoreUnavailable("FreeSpace", err)
	}

	entries, err := e.store.IterEntries()
	if err != nil {
		return nil, NewErrStoreUnavailable("IterEntries", err)
	}

	h := &evictHeap{}
	heap.Init(h)
	for _, entry := range entries {
		entry := entry
		resident, err := e.allArtifactsExist(&entry)
		if err != nil {
			return nil, err
		}
		if !resident {
			continue
		}
		u, err := e.residentUtility(&entry, freeSpace, now)
		if err != nil {
			return nil, err
		}
		if u < 0 {
			heap.Push(h, evictItem{entry: entry, utility: u})
		}
	}

	var evicted []LogicalKey
	for h.Len() > 0 {
		item := heap.Pop(h).(evictItem)

		currentFreeSpace, err := e.storage.FreeSpace()
		if err != nil {
			return evicted, NewErrStoreUnavailable("FreeSpace", err)
		}
		u, err := e.residentUtility(&item.entry, currentFreeSpace, now)
		if err != nil {
			return evicted, err
		}
		if u >= 0 {
			break
		}

		for k := range item.entry.Artifacts {
			if _, err := e.storage.Remove(k); err != nil {
				return evicted, NewErrArtifactRemovalFailed(k.String(), err)
			}
		}
		if _, err := e.store.RemoveEntry(item.entry.LogicalKey, opts.RetainHistory); err != nil {
			return evicted, NewErrStoreUnavailable("RemoveEntry", err)
		}

		e.cfg.MetricsCollector.RecordEviction(item.entry.SizeBytes())
		evicted = append(evicted, item.entry.LogicalKey)
	}

	if err := e.commit(); err != nil {
		return evicted, err
	}
	return evicted, nil
}

func (e *CacheEngine) residentUtility(entry *CacheEntry, freeSpace int64, now time.Time) (float64, error) {
	lastAccess, err := e.store.GetLastAccess(entry.LogicalKey)
	if err != nil {
		return 0, NewErrStoreUnavailable("GetLastAccess", err)
	}
	return e.utility.Evaluate(EvaluateInput{
		ComputeTime:    entry.ComputeTime,
		Weight:         entry.Weight,
		SizeBytes:      entry.SizeBytes(),
		FreeSpaceBytes: freeSpace,
		LastAccess:     lastAccess,
		Now:            now,
		Existing:       true,
	}), nil
}

// Remove deletes key's entry and every one of its artifacts. It returns
// false if no entry existed. Artifact-removal failures are collected and
// joined into the returned error, but removal of the entry from metadata
// still proceeds once every artifact delete has been attempted.
func (e *CacheEngine) Remove(key LogicalKey, retainHistory bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(key, retainHistory)
}

func (e *CacheEngine) removeLocked(key LogicalKey, retainHistory bool) (bool, error) {
	entry, err := e.store.GetEntry(key)
	if err != nil {
		return false, NewErrStoreUnavailable("GetEntry", err)
	}
	if entry == nil {
		return false, nil
	}

	var removeErrs []error
	for k := range entry.Artifacts {
		if _, err := e.storage.Remove(k); err != nil {
			removeErrs = append(removeErrs, NewErrArtifactRemovalFailed(k.String(), err))
		}
	}

	if _, err := e.store.RemoveEntry(key, retainHistory); err != nil {
		removeErrs = append(removeErrs, NewErrStoreUnavailable("RemoveEntry", err))
	}
	if err := e.commit(); err != nil {
		removeErrs = append(removeErrs, err)
	}

	if len(removeErrs) > 0 {
		return true, goerrors.Join(removeErrs...)
	}
	return true, nil
}

// RemoveAll removes every entry and its artifacts. It returns the number of
// entries removed. Each entry's removal is committed on its own, so a full
// pass issues one MetadataStore.Commit per removed entry rather than one in
// total.
func (e *CacheEngine) RemoveAll(retainHistory bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.IterEntries()
	if err != nil {
		return 0, NewErrStoreUnavailable("IterEntries", err)
	}

	var allErrs []error
	count := 0
	for _, entry := range entries {
		removed, err := e.removeLocked(entry.LogicalKey, retainHistory)
		if err != nil {
			allErrs = append(allErrs, err)
		}
		if removed {
			count++
		}
	}
	if len(allErrs) > 0 {
		return count, goerrors.Join(allErrs...)
	}
	return count, nil
}

// IterEntries returns every entry in the store. If onlyExisting is true,
// only entries whose artifacts are all currently resident are returned.
func (e *CacheEngine) IterEntries(onlyExisting bool) ([]CacheEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.IterEntries()
	if err != nil {
		return nil, NewErrStoreUnavailable("IterEntries", err)
	}
	if !onlyExisting {
		return entries, nil
	}

	out := make([]CacheEntry, 0, len(entries))
	for _, entry := range entries {
		entry := entry
		resident, err := e.allArtifactsExist(&entry)
		if err != nil {
			return nil, err
		}
		if resident {
			out = append(out, entry)
		}
	}
	return out, nil
}

// SizeSummary totals the sizes of entries currently in the store, broken
// down by lifecycle state.
type SizeSummary struct {
	TotalEntries    int
	ResidentEntries int
	ResidentBytes   int64
	OtherEntries    int
}

// SizeSummary computes a SizeSummary over every entry in the store (spec
// §4.5's diagnostic traversals).
func (e *CacheEngine) SizeSummary() (SizeSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.IterEntries()
	if err != nil {
		return SizeSummary{}, NewErrStoreUnavailable("IterEntries", err)
	}

	var summary SizeSummary
	summary.TotalEntries = len(entries)
	for _, entry := range entries {
		entry := entry
		resident, err := e.allArtifactsExist(&entry)
		if err != nil {
			return SizeSummary{}, err
		}
		if resident {
			summary.ResidentEntries++
			summary.ResidentBytes += entry.SizeBytes()
		} else {
			summary.OtherEntries++
		}
	}
	return summary, nil
}

// PrintContents writes a human-readable listing of every entry to w, one
// line per entry, for diagnostics (spec §4.5).
func (e *CacheEngine) PrintContents(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.store.IterEntries()
	if err != nil {
		return NewErrStoreUnavailable("IterEntries", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LogicalKey.String() < entries[j].LogicalKey.String()
	})

	for _, entry := range entries {
		entry := entry
		resident, err := e.allArtifactsExist(&entry)
		if err != nil {
			return err
		}
		state := StateEvicted
		if resident {
			state = StateResident
		}
		_, err = fmt.Fprintf(w, "%s  %-8s  %10d bytes  %s\n",
			entry.LogicalKey.String(), state, entry.SizeBytes(), entry.MainArtifactKey.Shorten(40))
		if err != nil {
			return err
		}
	}
	return nil
}

// UtilityParameters returns the engine's current UtilityFunction, for
// display or hot-reload diffing.
func (e *CacheEngine) UtilityParameters() UtilityFunction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.utility
}

// SetUtilityParameters swaps the engine's UtilityFunction. It is the hook
// HotConfig uses to apply a live configuration reload (spec §8.4):
// admission and eviction decisions made after this call use u, decisions
// already in flight finish with whatever was captured before the swap.
func (e *CacheEngine) SetUtilityParameters(u UtilityFunction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.utility = u
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
