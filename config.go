// config.go: configuration for the admission/eviction engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import (
	"github.com/agilira/go-timecache"
)

// Config holds the utility-function parameters and ambient dependencies for
// a CacheEngine. The five utility parameters are exactly the ones named in
// spec §6; everything else is wiring.
type Config struct {
	// CostPerMinuteComputeVs1GB (C) is the equivalence factor: one minute of
	// compute costs the same as 1/C GB-hours of storage-utility.
	// Must be > 0. Default: DefaultCostPerMinuteComputeVs1GB.
	CostPerMinuteComputeVs1GB float64

	// ReservedFreeSpaceBytes (R) is subtracted from raw free space before any
	// utility computation. Default: DefaultReservedFreeSpaceBytes.
	ReservedFreeSpaceBytes int64

	// HalfLifeHours (H) is the exponential decay half-life, in hours, of an
	// entry's benefit. Must be > 0. Default: DefaultHalfLifeHours.
	HalfLifeHours float64

	// UtilityAt1GB (U1) is the scalar utility of 1 GB of free space.
	// Must be > 0. Default: DefaultUtilityAt1GB.
	UtilityAt1GB float64

	// MarginalUtilityExponent (alpha) shapes the marginal storage-utility
	// curve: U(f) = U1 * f^(-alpha). Default: DefaultMarginalUtilityExponent.
	MarginalUtilityExponent float64

	// ArtifactKeyHashLength is the number of base64 characters of the hash
	// used by a FilesystemKeyGenerator handed to NewCacheEngine whose own
	// HashLength is unset. Must be > 0. Default: DefaultArtifactKeyHashLength.
	ArtifactKeyHashLength int

	// Logger is used for debugging and monitoring. If nil, NoOpLogger is
	// used.
	Logger Logger

	// TimeProvider supplies the current time at each engine operation's
	// entry point. If nil, a default wall-clock implementation is used.
	TimeProvider TimeProvider

	// MetricsCollector collects operation metrics (latencies, hit/miss
	// rates, admission/rejection counts). If nil, NoOpMetricsCollector is
	// used (zero overhead).
	MetricsCollector MetricsCollector
}

// Validate normalizes zero-valued fields to their documented defaults and
// returns an error only for values the utility function cannot operate on
// (negative half-life, negative cost factor, negative U1, negative reserved
// space). This mirrors balios.Config.Validate: default first, reject only
// what truly cannot be made sensible.
func (c *Config) Validate() error {
	if c.CostPerMinuteComputeVs1GB == 0 {
		c.CostPerMinuteComputeVs1GB = DefaultCostPerMinuteComputeVs1GB
	}
	if c.CostPerMinuteComputeVs1GB < 0 {
		return NewErrInvalidConfig("cost_per_minute_compute_vs_1gb", c.CostPerMinuteComputeVs1GB)
	}

	if c.ReservedFreeSpaceBytes < 0 {
		return NewErrInvalidConfig("reserved_free_space_bytes", c.ReservedFreeSpaceBytes)
	}

	if c.HalfLifeHours == 0 {
		c.HalfLifeHours = DefaultHalfLifeHours
	}
	if c.HalfLifeHours < 0 {
		return NewErrInvalidConfig("half_life_hours", c.HalfLifeHours)
	}

	if c.UtilityAt1GB == 0 {
		c.UtilityAt1GB = DefaultUtilityAt1GB
	}
	if c.UtilityAt1GB < 0 {
		return NewErrInvalidConfig("utility_at_1gb", c.UtilityAt1GB)
	}

	if c.MarginalUtilityExponent == 0 {
		c.MarginalUtilityExponent = DefaultMarginalUtilityExponent
	}

	if c.ArtifactKeyHashLength <= 0 {
		c.ArtifactKeyHashLength = DefaultArtifactKeyHashLength
	}

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	return nil
}

// DefaultConfig returns a configuration with the documented defaults
// {0.1, 0, 24.0, 2.0, 1.0}.
func DefaultConfig() Config {
	return Config{
		CostPerMinuteComputeVs1GB: DefaultCostPerMinuteComputeVs1GB,
		ReservedFreeSpaceBytes:    DefaultReservedFreeSpaceBytes,
		HalfLifeHours:             DefaultHalfLifeHours,
		UtilityAt1GB:              DefaultUtilityAt1GB,
		MarginalUtilityExponent:   DefaultMarginalUtilityExponent,
		ArtifactKeyHashLength:     DefaultArtifactKeyHashLength,
		Logger:                    NoOpLogger{},
		TimeProvider:              &systemTimeProvider{},
		MetricsCollector:          NoOpMetricsCollector{},
	}
}

// systemTimeProvider is the default time provider, backed by go-timecache's
// cached clock (refreshed in the background) rather than a syscall on every
// Now() call.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
