// utility.go: the pure utility scorer
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"math"
	"time"
)

// negativeInfinity is returned by Evaluate for configurations the entry
// cannot be admitted or retained under (spec §4.1 step 4).
var negativeInfinity = math.Inf(-1)

// EvaluateInput bundles everything UtilityFunction.Evaluate needs. It holds
// no reference to an Entry ↔ Manager back-pointer, unlike the design the
// source uses (spec §9): the entry is a pure value, and free space/last
// access/now are threaded in explicitly by the caller.
type EvaluateInput struct {
	// ComputeTime is the entry's recorded compute_time.
	ComputeTime time.Duration
	// Weight is the entry's caller-supplied importance multiplier.
	Weight float64
	// SizeBytes is the entry's total artifact size.
	SizeBytes int64
	// FreeSpaceBytes is the storage backend's free space at decision time,
	// before subtracting ReservedFreeSpaceBytes.
	FreeSpaceBytes int64
	// LastAccess is the entry's most recent access timestamp. The zero
	// Time means "unset", treated as age 0 (spec §4.1 step 2).
	LastAccess time.Time
	// Now is the current time, captured once at the engine operation's
	// entry point.
	Now time.Time
	// Existing is true when evaluating a resident entry (spec §4.1 step 4;
	// the "existing" flag reflects whether the entry's blobs are currently
	// resident at decision time, per spec §9's redesign decision, not
	// whether the entry previously existed in metadata).
	Existing bool
}

// UtilityFunction is a pure, side-effect-free scorer mapping
// (entry, free space, last access, existing?) to a real number (spec §4.1).
// It holds only the five configuration parameters; Evaluate never mutates
// state and never performs I/O.
type UtilityFunction struct {
	// CostPerMinuteComputeVs1GB (C).
	CostPerMinuteComputeVs1GB float64
	// ReservedFreeSpaceBytes (R).
	ReservedFreeSpaceBytes int64
	// HalfLifeHours (H).
	HalfLifeHours float64
	// UtilityAt1GB (U1).
	UtilityAt1GB float64
	// MarginalUtilityExponent (alpha).
	MarginalUtilityExponent float64
}

// NewUtilityFunction builds a UtilityFunction from a Config's five utility
// parameters.
func NewUtilityFunction(cfg Config) UtilityFunction {
	return UtilityFunction{
		CostPerMinuteComputeVs1GB: cfg.CostPerMinuteComputeVs1GB,
		ReservedFreeSpaceBytes:    cfg.ReservedFreeSpaceBytes,
		HalfLifeHours:             cfg.HalfLifeHours,
		UtilityAt1GB:              cfg.UtilityAt1GB,
		MarginalUtilityExponent:   cfg.MarginalUtilityExponent,
	}
}

// marginalUtility is U(f) = U1 * f^(-alpha) for f in GB (spec §4.1).
// Callers short-circuit f < 0 to negativeInfinity before reaching here;
// f == 0 does reach it and yields +Inf for a positive alpha, which makes the
// caller's result negativeInfinity as well.
func (u UtilityFunction) marginalUtility(freeGB float64) float64 {
	return u.UtilityAt1GB * math.Pow(freeGB, -u.MarginalUtilityExponent)
}

// ageHours returns the age of last access, in hours, relative to now. An
// unset lastAccess (zero Time) is treated as age zero (spec §4.1 step 2).
func ageHours(lastAccess, now time.Time) float64 {
	if lastAccess.IsZero() {
		return 0
	}
	age := now.Sub(lastAccess)
	if age < 0 {
		age = 0
	}
	return age.Hours()
}

// benefit is (compute_time_minutes / C) * weight * 2^(-age_hours/H)
// (spec §4.1 step 3).
func (u UtilityFunction) benefit(computeTime time.Duration, weight float64, lastAccess, now time.Time) float64 {
	computeMinutes := computeTime.Minutes()
	ageH := ageHours(lastAccess, now)
	decay := math.Pow(2, -ageH/u.HalfLifeHours)
	return (computeMinutes / u.CostPerMinuteComputeVs1GB) * weight * decay
}

// Evaluate computes benefit plus the marginal-utility delta freeing (or
// occupying) sizeGB of free space would cost, where the delta depends on
// whether the entry is currently resident (Existing), and is -Inf whenever
// the entry cannot be admitted/retained under the available free space at
// all. marginalUtility is decreasing, so losing free space always costs a
// negative (or zero) amount; adding it in keeps Evaluate monotone
// non-decreasing in free space.
//
// Evaluate is monotone non-decreasing in in.FreeSpaceBytes for fixed other
// inputs: this is the property the eviction algorithm (CacheEngine.Evict)
// depends on to terminate correctly (spec §4.1, §9). Implementers
// substituting an alternative formula MUST preserve this monotonicity.
func (u UtilityFunction) Evaluate(in EvaluateInput) float64 {
	freeBytes := in.FreeSpaceBytes - u.ReservedFreeSpaceBytes
	freeGB := float64(freeBytes) / bytesPerGB
	sizeGB := float64(in.SizeBytes) / bytesPerGB

	b := u.benefit(in.ComputeTime, in.Weight, in.LastAccess, in.Now)

	var cost float64
	if in.Existing {
		if freeGB < 0 {
			return negativeInfinity
		}
		cost = u.marginalUtility(freeGB+sizeGB) - u.marginalUtility(freeGB)
	} else {
		if freeGB < sizeGB {
			return negativeInfinity
		}
		cost = u.marginalUtility(freeGB) - u.marginalUtility(freeGB-sizeGB)
	}

	return b + cost
}
