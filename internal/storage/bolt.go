// Package storage — bolt.go
//
// BoltDB-backed persistent storage for the LACT unit control daemon.
//
// Schema (BoltDB bucket layout):
//
//	/ledger
//	    key:   RFC3339Nano timestamp + "_" + monotonic sequence  [sortable]
//	    value: JSON-encoded LedgerEntry (hash-chained, see internal/audit)
//
//	/batches
//	    key:   closed_at RFC3339Nano timestamp
//	    value: JSON-encoded controller.BatchReport
//
//	/proving_reports
//	    key:   completed_at RFC3339Nano timestamp
//	    value: JSON-encoded proving.Report
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Ledger entries older than RetentionDays are pruned on startup and
//     periodically by the retention goroutine. Batch and proving reports
//     are custody records and are never automatically pruned.
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The daemon logs a fatal event and refuses to start.
//     Recovery: restore from backup at /var/lib/lactd/lactd.db.bak.
//   - Disk full: bbolt.Update() returns an error. The daemon logs the
//     error; the scan thread is never blocked on a storage failure.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/lactd/lactd.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 365

	bucketLedger         = "ledger"
	bucketBatches        = "batches"
	bucketProvingReports = "proving_reports"
	bucketMeta           = "meta"
)

// LedgerEntry is a single hash-chained audit record (see internal/audit).
// Stored as JSON in the ledger bucket.
type LedgerEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	SkidID     string         `json:"skid_id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload"`
	Hash       string         `json:"hash"`
	ParentHash string         `json:"parent_hash"`
}

// DB wraps a BoltDB instance with typed accessors for lactd data.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at the given path.
// Initialises all required buckets and verifies the schema version.
// Returns an error if the database is corrupt or schema is incompatible.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		NoGrowSync:   false,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketLedger, bucketBatches, bucketProvingReports, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, daemon requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Ledger operations ──────────────────────────────────────────────────

func ledgerKey(t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", t.UTC().Format(time.RFC3339Nano), seq))
}

// AppendLedger writes a new hash-chained audit ledger entry.
func (d *DB) AppendLedger(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendLedger marshal: %w", err)
	}
	key := ledgerKey(entry.Timestamp, entry.Seq)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("AppendLedger bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOldLedgerEntries deletes ledger entries older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldLedgerEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, 0)

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldLedgerEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadLedger returns all ledger entries in chronological order. For
// operator-console inspection; not called on the scan hot path.
func (d *DB) ReadLedger() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		return b.ForEach(func(_, v []byte) error {
			var entry LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// LastLedgerHash returns the Hash of the most recently appended entry, or
// "" if the ledger is empty. Used to resume a hash chain across restarts.
func (d *DB) LastLedgerHash() (string, error) {
	var hash string
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		var entry LedgerEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
		hash = entry.Hash
		return nil
	})
	return hash, err
}

// ─── Batch / proving report operations ───────────────────────────────────

// PutBatchReport persists a closed batch report, JSON-encoded, keyed by
// its close timestamp.
func (d *DB) PutBatchReport(closedAt time.Time, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("PutBatchReport marshal: %w", err)
	}
	key := []byte(closedAt.UTC().Format(time.RFC3339Nano))
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketBatches)).Put(key, data)
	})
}

// PutProvingReport persists a completed proving report, JSON-encoded,
// keyed by its completion timestamp.
func (d *DB) PutProvingReport(completedAt time.Time, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("PutProvingReport marshal: %w", err)
	}
	key := []byte(completedAt.UTC().Format(time.RFC3339Nano))
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProvingReports)).Put(key, data)
	})
}
