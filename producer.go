// producer.go: the caller-supplied computation contract
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package objectcache

import "time"

// Producer is the caller-supplied description of how to compute, serialize,
// and deserialize an object (spec §6). Implementations must be safe to call
// repeatedly: LogicalKey and SerializationClass are pure functions of the
// producer's own configuration.
type Producer interface {
	// LogicalKey returns the EntityHash identifying this producer's
	// invocation (its argument fingerprint). Pure and deterministic.
	LogicalKey() LogicalKey

	// SerializationClass tags producers whose (de)serialization cost is
	// assumed comparable. May be empty.
	SerializationClass() string

	// Compute runs the (possibly expensive) computation and returns its
	// result.
	Compute() (interface{}, error)

	// Serialize converts a computed object to bytes for the main artifact.
	Serialize(object interface{}) ([]byte, error)

	// Instantiate reconstructs an object from the main blob's bytes and,
	// when the producer declared auxiliaries, a map from tag to the
	// resolved ArtifactKey of each auxiliary. aux is nil when the producer
	// has no auxiliaries; a producer whose Instantiate does not support
	// auxiliaries must reject a non-nil aux with
	// NewErrUnexpectedAuxiliaries.
	Instantiate(mainBytes []byte, aux map[string]ArtifactKey) (interface{}, error)

	// AuxiliaryArtifacts returns the side-effect blobs the producer wants
	// recorded alongside the main result, keyed by tag. May be empty. A
	// producer with no auxiliaries may implement this as a no-op returning
	// (nil, nil); the engine treats a nil map identically to an empty one.
	AuxiliaryArtifacts(storage ArtifactStorage) (map[string]ArtifactKey, error)

	// ProtectAuxiliaries signals that the engine has committed to keeping
	// the producer's auxiliary artifacts. It is called only when the entry
	// was admitted and had non-empty auxiliaries; the producer must not
	// delete those files on its own cleanup path after this call.
	ProtectAuxiliaries()

	// ProposeKey optionally overrides key generation for the main
	// artifact. Returning a zero-value ArtifactKey (IsZero() == true) means
	// "no proposal"; the engine then falls back to its KeyGenerator.
	ProposeKey() ArtifactKey
}

// MockProducer is a Producer whose Compute() reports a synthetic,
// caller-declared duration instead of measuring real wall-clock time. The
// engine's ComputeTime measurement step (spec §4.5 step 4) checks for this
// capability and, when present, uses the declared duration. This mirrors how
// the original source's mock_cache.py and test_mock_cache.py let tests
// exercise utility decisions deterministically without actually sleeping.
type MockProducer interface {
	Producer
	// DeclaredComputeTime is the duration LookupOrProduce should attribute
	// to this producer's Compute() call, regardless of how long Compute()
	// actually took to return.
	DeclaredComputeTime() (time.Duration, bool)
}
