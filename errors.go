// errors.go: comprehensive error handling for objectcache operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error codes
// for every MetadataStore, ArtifactStorage, and CacheEngine operation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package objectcache

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for objectcache operations, grouped per spec §7.
const (
	// Configuration errors (1xxx)
	ErrCodeInvalidConfig errors.ErrorCode = "OBJECTCACHE_INVALID_CONFIG"

	// Metadata errors (2xxx)
	ErrCodeDuplicateKey errors.ErrorCode = "OBJECTCACHE_DUPLICATE_KEY"
	ErrCodeMissing       errors.ErrorCode = "OBJECTCACHE_MISSING"
	ErrCodeClosed        errors.ErrorCode = "OBJECTCACHE_CLOSED"

	// Storage errors (3xxx)
	ErrCodeAlreadyExists errors.ErrorCode = "OBJECTCACHE_ALREADY_EXISTS"
	ErrCodeStoreUnavailable errors.ErrorCode = "OBJECTCACHE_STORE_UNAVAILABLE"

	// Integrity errors (4xxx)
	ErrCodeCorrupted             errors.ErrorCode = "OBJECTCACHE_CORRUPTED"
	ErrCodeHashMismatch          errors.ErrorCode = "OBJECTCACHE_HASH_MISMATCH"
	ErrCodeNonFunctionalProducer errors.ErrorCode = "OBJECTCACHE_NON_FUNCTIONAL_PRODUCER"
	ErrCodeAuxiliaryMutated      errors.ErrorCode = "OBJECTCACHE_AUXILIARY_MUTATED"
	ErrCodeUnexpectedAuxiliaries errors.ErrorCode = "OBJECTCACHE_UNEXPECTED_AUXILIARIES"

	// Eviction errors (5xxx)
	ErrCodeArtifactRemovalFailed errors.ErrorCode = "OBJECTCACHE_ARTIFACT_REMOVAL_FAILED"

	// Internal errors (9xxx)
	ErrCodeInternalError  errors.ErrorCode = "OBJECTCACHE_INTERNAL_ERROR"
	ErrCodePanicRecovered errors.ErrorCode = "OBJECTCACHE_PANIC_RECOVERED"
)

const (
	msgInvalidConfig         = "invalid engine configuration"
	msgDuplicateKey          = "logical key already has a cache entry"
	msgMissing               = "requested object does not exist"
	msgClosed                = "handle is closed"
	msgAlreadyExists         = "artifact key is already occupied"
	msgStoreUnavailable      = "store is unavailable"
	msgCorrupted             = "recomputed content hash does not match stored hash"
	msgHashMismatch          = "declared object hash does not match stored blob hash"
	msgNonFunctionalProducer = "auxiliary artifact key set changed between observations"
	msgAuxiliaryMutated      = "auxiliary artifact hash changed between observations"
	msgUnexpectedAuxiliaries = "producer does not support auxiliaries but some were supplied"
	msgArtifactRemovalFailed = "storage refused or could not execute an artifact delete"
	msgInternalError         = "internal objectcache error"
	msgPanicRecovered        = "panic recovered in cache operation"
)

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

// NewErrInvalidConfig creates an error for a configuration field that cannot
// be normalized to a sensible value.
func NewErrInvalidConfig(field string, value interface{}) error {
	return errors.NewWithContext(ErrCodeInvalidConfig, msgInvalidConfig, map[string]interface{}{
		"field": field,
		"value": value,
	})
}

// =============================================================================
// METADATA ERRORS
// =============================================================================

// NewErrDuplicateKey creates an error for InsertEntry on an existing key.
func NewErrDuplicateKey(key LogicalKey) error {
	return errors.NewWithField(ErrCodeDuplicateKey, msgDuplicateKey, "logical_key", key.String())
}

// NewErrMissing creates an error for a read of a non-existent entry, blob,
// or history record.
func NewErrMissing(kind string, key string) error {
	return errors.NewWithContext(ErrCodeMissing, msgMissing, map[string]interface{}{
		"kind": kind,
		"key":  key,
	})
}

// NewErrClosed creates an error for an operation on a closed store or
// storage handle.
func NewErrClosed(handle string) error {
	return errors.NewWithField(ErrCodeClosed, msgClosed, "handle", handle)
}

// =============================================================================
// STORAGE ERRORS
// =============================================================================

// NewErrAlreadyExists creates an error for Save on an occupied artifact key.
func NewErrAlreadyExists(key string) error {
	return errors.NewWithField(ErrCodeAlreadyExists, msgAlreadyExists, "artifact_key", key)
}

// NewErrStoreUnavailable wraps a low-level transport failure from a
// MetadataStore or ArtifactStorage backend.
func NewErrStoreUnavailable(operation string, cause error) error {
	if cause == nil {
		return errors.NewWithField(ErrCodeStoreUnavailable, msgStoreUnavailable, "operation", operation)
	}
	return errors.Wrap(cause, ErrCodeStoreUnavailable, msgStoreUnavailable).
		WithContext("operation", operation).
		AsRetryable()
}

// =============================================================================
// INTEGRITY ERRORS
// =============================================================================

// NewErrCorrupted creates an error when a verify pass finds the recomputed
// content hash does not match the entry's recorded content hash.
func NewErrCorrupted(key LogicalKey, recorded, recomputed EntityHash) error {
	return errors.NewWithContext(ErrCodeCorrupted, msgCorrupted, map[string]interface{}{
		"logical_key": key.String(),
		"recorded":    recorded.String(),
		"recomputed":  recomputed.String(),
	})
}

// NewErrHashMismatch creates an error when the hash the producer declared
// for a produced object does not match the hash of the bytes actually saved.
func NewErrHashMismatch(artifactKey string, declared, stored EntityHash) error {
	return errors.NewWithContext(ErrCodeHashMismatch, msgHashMismatch, map[string]interface{}{
		"artifact_key": artifactKey,
		"declared":     declared.String(),
		"stored":       stored.String(),
	})
}

// NewErrNonFunctionalProducer creates an error when a re-seen producer's
// auxiliary key set no longer matches what was previously recorded.
func NewErrNonFunctionalProducer(key LogicalKey) error {
	return errors.NewWithField(ErrCodeNonFunctionalProducer, msgNonFunctionalProducer, "logical_key", key.String())
}

// NewErrAuxiliaryMutated creates an error when a re-seen auxiliary artifact's
// hash no longer matches what was previously recorded.
func NewErrAuxiliaryMutated(tag string, artifactKey string) error {
	return errors.NewWithContext(ErrCodeAuxiliaryMutated, msgAuxiliaryMutated, map[string]interface{}{
		"tag":          tag,
		"artifact_key": artifactKey,
	})
}

// NewErrUnexpectedAuxiliaries creates an error when aux artifacts are passed
// to a producer whose Instantiate does not support them.
func NewErrUnexpectedAuxiliaries(key LogicalKey) error {
	return errors.NewWithField(ErrCodeUnexpectedAuxiliaries, msgUnexpectedAuxiliaries, "logical_key", key.String())
}

// =============================================================================
// EVICTION ERRORS
// =============================================================================

// NewErrArtifactRemovalFailed creates an error when storage cannot delete an
// artifact during eviction.
func NewErrArtifactRemovalFailed(artifactKey string, cause error) error {
	return errors.Wrap(cause, ErrCodeArtifactRemovalFailed, msgArtifactRemovalFailed).
		WithContext("artifact_key", artifactKey).
		AsRetryable()
}

// =============================================================================
// INTERNAL ERRORS
// =============================================================================

// NewErrInternal creates a generic internal error.
func NewErrInternal(operation string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInternalError, msgInternalError).
			WithContext("operation", operation).
			WithSeverity("warning")
	}
	return errors.NewWithField(ErrCodeInternalError, msgInternalError, "operation", operation).
		WithSeverity("warning")
}

// NewErrPanicRecovered creates an error when a panic is recovered from a
// producer callback.
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// =============================================================================
// ERROR CHECKING HELPERS
// =============================================================================

// IsDuplicateKey reports whether err is a duplicate logical key error.
func IsDuplicateKey(err error) bool { return errors.HasCode(err, ErrCodeDuplicateKey) }

// IsMissing reports whether err is a not-found error.
func IsMissing(err error) bool { return errors.HasCode(err, ErrCodeMissing) }

// IsClosed reports whether err was raised by an operation on a closed
// handle.
func IsClosed(err error) bool { return errors.HasCode(err, ErrCodeClosed) }

// IsAlreadyExists reports whether err is an artifact-key-occupied error.
func IsAlreadyExists(err error) bool { return errors.HasCode(err, ErrCodeAlreadyExists) }

// IsCorrupted reports whether err is a verify-time content hash mismatch.
func IsCorrupted(err error) bool { return errors.HasCode(err, ErrCodeCorrupted) }

// IsHashMismatch reports whether err is an admission-time hash mismatch.
func IsHashMismatch(err error) bool { return errors.HasCode(err, ErrCodeHashMismatch) }

// IsNonFunctionalProducer reports whether err is an auxiliary-key-set-changed
// error.
func IsNonFunctionalProducer(err error) bool {
	return errors.HasCode(err, ErrCodeNonFunctionalProducer)
}

// IsAuxiliaryMutated reports whether err is an auxiliary-hash-changed error.
func IsAuxiliaryMutated(err error) bool { return errors.HasCode(err, ErrCodeAuxiliaryMutated) }

// IsArtifactRemovalFailed reports whether err was raised by a failed
// eviction delete.
func IsArtifactRemovalFailed(err error) bool {
	return errors.HasCode(err, ErrCodeArtifactRemovalFailed)
}

// IsRetryable reports whether err can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from err, or "" if it is not a
// structured objectcache error.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the structured context map from err, or nil.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var oerr *errors.Error
	if goerrors.As(err, &oerr) {
		return oerr.Context
	}
	return nil
}
