// Package metastore provides concrete objectcache.MetadataStore
// implementations: SQLiteStore, the durable reference catalog, and Memory,
// an in-memory collaborator for tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package metastore

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agilira/objectcache"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	logical_key TEXT PRIMARY KEY,
	compute_time_ns INTEGER NOT NULL,
	weight REAL NOT NULL,
	main_artifact_key TEXT NOT NULL,
	main_artifact_kind INTEGER NOT NULL,
	serialization_class TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS artifacts (
	logical_key TEXT NOT NULL REFERENCES entries(logical_key) ON DELETE CASCADE,
	artifact_key TEXT NOT NULL,
	artifact_kind INTEGER NOT NULL,
	tag TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	PRIMARY KEY (logical_key, artifact_key, artifact_kind)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_key ON artifacts(artifact_key, artifact_kind);
CREATE TABLE IF NOT EXISTS accesses (
	logical_key TEXT NOT NULL,
	accessed_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accesses_key ON accesses(logical_key, accessed_at_ns);
CREATE TABLE IF NOT EXISTS serialization_samples (
	class TEXT NOT NULL,
	sampled_at_ns INTEGER NOT NULL,
	serialize_ns INTEGER NOT NULL,
	deserialize_ns INTEGER NOT NULL,
	serialized_size INTEGER NOT NULL,
	in_memory_size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_class ON serialization_samples(class, sampled_at_ns);
`

// SQLiteStore is the reference objectcache.MetadataStore: a single SQLite
// file holding the four relations (entries, artifacts, accesses,
// serialization_samples). Mutations accumulate in one open transaction and
// become durable only on Commit, matching the contract that a crash before
// Commit may lose recent mutations but must not corrupt earlier state.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
	tx *sql.Tx
}

// OpenSQLite opens (creating if necessary) a SQLite-backed MetadataStore at
// path and ensures its schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ensureTx() (*sql.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.Begin", err)
	}
	s.tx = tx
	return tx, nil
}

// InsertEntry implements objectcache.MetadataStore.
func (s *SQLiteStore) InsertEntry(entry objectcache.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return err
	}

	var exists int
	row := tx.QueryRow(`SELECT COUNT(1) FROM entries WHERE logical_key = ?`, entry.LogicalKey.String())
	if err := row.Scan(&exists); err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.InsertEntry.check", err)
	}
	if exists > 0 {
		return objectcache.NewErrDuplicateKey(entry.LogicalKey)
	}

	if err := s.writeEntryTx(tx, entry); err != nil {
		return err
	}
	return nil
}

// UpdateEntry implements objectcache.MetadataStore.
func (s *SQLiteStore) UpdateEntry(entry objectcache.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return err
	}

	var exists int
	row := tx.QueryRow(`SELECT COUNT(1) FROM entries WHERE logical_key = ?`, entry.LogicalKey.String())
	if err := row.Scan(&exists); err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.UpdateEntry.check", err)
	}
	if exists == 0 {
		return objectcache.NewErrMissing("entry", entry.LogicalKey.String())
	}

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE logical_key = ?`, entry.LogicalKey.String()); err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.UpdateEntry.clearArtifacts", err)
	}
	return s.writeEntryTx(tx, entry)
}

func (s *SQLiteStore) writeEntryTx(tx *sql.Tx, entry objectcache.CacheEntry) error {
	_, err := tx.Exec(`
		INSERT INTO entries (logical_key, compute_time_ns, weight, main_artifact_key, main_artifact_kind, serialization_class)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(logical_key) DO UPDATE SET
			compute_time_ns = excluded.compute_time_ns,
			weight = excluded.weight,
			main_artifact_key = excluded.main_artifact_key,
			main_artifact_kind = excluded.main_artifact_kind,
			serialization_class = excluded.serialization_class`,
		entry.LogicalKey.String(), int64(entry.ComputeTime), entry.Weight,
		entry.MainArtifactKey.Value, int(entry.MainArtifactKey.Kind), entry.SerializationClass)
	if err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.writeEntry", err)
	}

	for _, artifact := range entry.Artifacts {
		_, err := tx.Exec(`
			INSERT INTO artifacts (logical_key, artifact_key, artifact_kind, tag, content_hash, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.LogicalKey.String(), artifact.ArtifactKey.Value, int(artifact.ArtifactKey.Kind),
			artifact.Tag, artifact.ContentHash.String(), artifact.SizeBytes)
		if err != nil {
			return objectcache.NewErrStoreUnavailable("sqlite3.writeArtifact", err)
		}
	}
	return nil
}

// GetEntry implements objectcache.MetadataStore.
func (s *SQLiteStore) GetEntry(key objectcache.LogicalKey) (*objectcache.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return nil, err
	}
	return s.getEntryTx(tx, key)
}

func (s *SQLiteStore) getEntryTx(tx *sql.Tx, key objectcache.LogicalKey) (*objectcache.CacheEntry, error) {
	var computeNs int64
	var weight float64
	var mainValue, serializationClass string
	var mainKind int

	row := tx.QueryRow(`
		SELECT compute_time_ns, weight, main_artifact_key, main_artifact_kind, serialization_class
		FROM entries WHERE logical_key = ?`, key.String())
	err := row.Scan(&computeNs, &weight, &mainValue, &mainKind, &serializationClass)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.GetEntry", err)
	}

	artifacts, err := s.loadArtifactsTx(tx, key)
	if err != nil {
		return nil, err
	}

	entry := objectcache.CacheEntry{
		LogicalKey:         key,
		ComputeTime:        time.Duration(computeNs),
		Weight:             weight,
		MainArtifactKey:    objectcache.ArtifactKey{Kind: objectcache.ArtifactKeyKind(mainKind), Value: mainValue},
		Artifacts:          artifacts,
		SerializationClass: serializationClass,
	}
	return &entry, nil
}

func (s *SQLiteStore) loadArtifactsTx(tx *sql.Tx, key objectcache.LogicalKey) (map[objectcache.ArtifactKey]objectcache.StoredArtifact, error) {
	rows, err := tx.Query(`
		SELECT artifact_key, artifact_kind, tag, content_hash, size_bytes
		FROM artifacts WHERE logical_key = ?`, key.String())
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.loadArtifacts", err)
	}
	defer rows.Close()

	artifacts := make(map[objectcache.ArtifactKey]objectcache.StoredArtifact)
	for rows.Next() {
		var value, tag, hashStr string
		var kind int
		var size int64
		if err := rows.Scan(&value, &kind, &tag, &hashStr, &size); err != nil {
			return nil, objectcache.NewErrStoreUnavailable("sqlite3.loadArtifacts.scan", err)
		}
		hash, err := objectcache.ParseEntityHash(hashStr)
		if err != nil {
			return nil, err
		}
		ak := objectcache.ArtifactKey{Kind: objectcache.ArtifactKeyKind(kind), Value: value}
		artifacts[ak] = objectcache.StoredArtifact{
			ArtifactKey: ak,
			Tag:         tag,
			ContentHash: hash,
			SizeBytes:   size,
		}
	}
	return artifacts, rows.Err()
}

// GetEntryByArtifact implements objectcache.MetadataStore.
func (s *SQLiteStore) GetEntryByArtifact(artifactKey objectcache.ArtifactKey) (*objectcache.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return nil, err
	}

	var logicalKeyStr string
	row := tx.QueryRow(`
		SELECT logical_key FROM artifacts WHERE artifact_key = ? AND artifact_kind = ? LIMIT 1`,
		artifactKey.Value, int(artifactKey.Kind))
	err = row.Scan(&logicalKeyStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.GetEntryByArtifact", err)
	}

	key, err := objectcache.ParseEntityHash(logicalKeyStr)
	if err != nil {
		return nil, err
	}
	return s.getEntryTx(tx, key)
}

// IterEntries implements objectcache.MetadataStore.
func (s *SQLiteStore) IterEntries() ([]objectcache.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(`SELECT logical_key FROM entries`)
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.IterEntries", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, objectcache.NewErrStoreUnavailable("sqlite3.IterEntries.scan", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.IterEntries.rows", err)
	}

	entries := make([]objectcache.CacheEntry, 0, len(keys))
	for _, k := range keys {
		key, err := objectcache.ParseEntityHash(k)
		if err != nil {
			return nil, err
		}
		entry, err := s.getEntryTx(tx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// RemoveEntry implements objectcache.MetadataStore.
func (s *SQLiteStore) RemoveEntry(key objectcache.LogicalKey, retainHistory bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return false, err
	}

	res, err := tx.Exec(`DELETE FROM entries WHERE logical_key = ?`, key.String())
	if err != nil {
		return false, objectcache.NewErrStoreUnavailable("sqlite3.RemoveEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, objectcache.NewErrStoreUnavailable("sqlite3.RemoveEntry.rowsAffected", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE logical_key = ?`, key.String()); err != nil {
		return false, objectcache.NewErrStoreUnavailable("sqlite3.RemoveEntry.artifacts", err)
	}
	if !retainHistory {
		if _, err := tx.Exec(`DELETE FROM accesses WHERE logical_key = ?`, key.String()); err != nil {
			return false, objectcache.NewErrStoreUnavailable("sqlite3.RemoveEntry.accesses", err)
		}
	}
	return true, nil
}

// AppendAccess implements objectcache.MetadataStore.
func (s *SQLiteStore) AppendAccess(key objectcache.LogicalKey, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO accesses (logical_key, accessed_at_ns) VALUES (?, ?)`,
		key.String(), timestamp.UnixNano())
	if err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.AppendAccess", err)
	}
	return nil
}

// GetLastAccess implements objectcache.MetadataStore.
func (s *SQLiteStore) GetLastAccess(key objectcache.LogicalKey) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return time.Time{}, err
	}

	var ns int64
	row := tx.QueryRow(`
		SELECT accessed_at_ns FROM accesses WHERE logical_key = ? ORDER BY accessed_at_ns DESC LIMIT 1`, key.String())
	err = row.Scan(&ns)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, objectcache.NewErrStoreUnavailable("sqlite3.GetLastAccess", err)
	}
	return time.Unix(0, ns), nil
}

// GetAccessHistory implements objectcache.MetadataStore.
func (s *SQLiteStore) GetAccessHistory(key objectcache.LogicalKey) ([]objectcache.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(`
		SELECT accessed_at_ns FROM accesses WHERE logical_key = ? ORDER BY accessed_at_ns ASC`, key.String())
	if err != nil {
		return nil, objectcache.NewErrStoreUnavailable("sqlite3.GetAccessHistory", err)
	}
	defer rows.Close()

	var history []objectcache.AccessRecord
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, objectcache.NewErrStoreUnavailable("sqlite3.GetAccessHistory.scan", err)
		}
		history = append(history, objectcache.AccessRecord{LogicalKey: key, Timestamp: time.Unix(0, ns)})
	}
	return history, rows.Err()
}

// AppendSerializationSample implements objectcache.MetadataStore.
func (s *SQLiteStore) AppendSerializationSample(sample objectcache.SerializationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO serialization_samples (class, sampled_at_ns, serialize_ns, deserialize_ns, serialized_size, in_memory_size)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sample.Class, sample.Timestamp.UnixNano(), int64(sample.SerializeDuration), int64(sample.DeserializeDuration),
		sample.SerializedSize, sample.InMemorySize)
	if err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.AppendSerializationSample", err)
	}
	return nil
}

// SummarizeSerialization implements objectcache.MetadataStore. It runs a
// single aggregate query over serialization_samples (grounded on the
// original source's single-statement rollup of settings-adjacent sample
// data).
func (s *SQLiteStore) SummarizeSerialization(class string, filter objectcache.SerializationFilter) (objectcache.SerializationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return objectcache.SerializationSummary{}, err
	}

	query := `
		SELECT AVG(serialize_ns), AVG(deserialize_ns), COUNT(*), MIN(sampled_at_ns)
		FROM serialization_samples WHERE class = ?`
	args := []interface{}{class}
	if !filter.Since.IsZero() {
		query += ` AND sampled_at_ns >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		query += ` AND sampled_at_ns <= ?`
		args = append(args, filter.Until.UnixNano())
	}

	var meanSerialize, meanDeserialize sql.NullFloat64
	var count int64
	var oldestNs sql.NullInt64
	row := tx.QueryRow(query, args...)
	if err := row.Scan(&meanSerialize, &meanDeserialize, &count, &oldestNs); err != nil {
		return objectcache.SerializationSummary{}, objectcache.NewErrStoreUnavailable("sqlite3.SummarizeSerialization", err)
	}

	summary := objectcache.SerializationSummary{SampleCount: count}
	if meanSerialize.Valid {
		summary.MeanSerialize = time.Duration(meanSerialize.Float64)
	}
	if meanDeserialize.Valid {
		summary.MeanDeserialize = time.Duration(meanDeserialize.Float64)
	}
	if oldestNs.Valid {
		summary.OldestSample = time.Unix(0, oldestNs.Int64)
	}
	return summary, nil
}

// AddArtifactToEntry implements objectcache.MetadataStore.
func (s *SQLiteStore) AddArtifactToEntry(key objectcache.LogicalKey, artifact objectcache.StoredArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.ensureTx()
	if err != nil {
		return err
	}

	var exists int
	row := tx.QueryRow(`SELECT COUNT(1) FROM entries WHERE logical_key = ?`, key.String())
	if err := row.Scan(&exists); err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.AddArtifactToEntry.check", err)
	}
	if exists == 0 {
		return objectcache.NewErrMissing("entry", key.String())
	}

	_, err = tx.Exec(`
		INSERT INTO artifacts (logical_key, artifact_key, artifact_kind, tag, content_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.String(), artifact.ArtifactKey.Value, int(artifact.ArtifactKey.Kind),
		artifact.Tag, artifact.ContentHash.String(), artifact.SizeBytes)
	if err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.AddArtifactToEntry", err)
	}
	return nil
}

// Commit implements objectcache.MetadataStore: it commits the current
// transaction and opens a fresh one for subsequent mutations.
func (s *SQLiteStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.Commit", err)
	}
	return nil
}

// Close implements objectcache.MetadataStore.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	if err := s.db.Close(); err != nil {
		return objectcache.NewErrStoreUnavailable("sqlite3.Close", err)
	}
	return nil
}

var _ objectcache.MetadataStore = (*SQLiteStore)(nil)
