// objectcache.go: package-level constants and version
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

const (
	// Version of the objectcache library.
	Version = "v0.1.0-dev"

	// DefaultCostPerMinuteComputeVs1GB is the equivalence factor (C) between
	// one minute of compute and 1/C GB-hours of storage-utility.
	DefaultCostPerMinuteComputeVs1GB = 0.1

	// DefaultReservedFreeSpaceBytes is subtracted from raw free space before
	// any utility computation.
	DefaultReservedFreeSpaceBytes int64 = 0

	// DefaultHalfLifeHours is the exponential decay half-life of an entry's
	// benefit.
	DefaultHalfLifeHours = 24.0

	// DefaultUtilityAt1GB is the scalar utility assigned to 1 GB of free space.
	DefaultUtilityAt1GB = 2.0

	// DefaultMarginalUtilityExponent is the shape parameter of the marginal
	// storage-utility curve.
	DefaultMarginalUtilityExponent = 1.0

	// DefaultArtifactKeyHashLength is the number of base64 characters of the
	// logical key's hash used by the filesystem key generator.
	DefaultArtifactKeyHashLength = 8

	// bytesPerGB is the conversion constant used throughout the utility
	// function; sizes are bytes at rest and convert to GB only inside it.
	bytesPerGB = 1 << 30
)
