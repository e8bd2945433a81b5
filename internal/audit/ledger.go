// Package audit implements the hash-chained custody audit trail: every
// safety request, state transition, alarm raise, and batch/proving event
// is recorded as a ledger entry whose hash covers the entry content plus
// the previous entry's hash, so the sequence cannot be truncated or
// reordered undetected.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lactplc/skidcore/internal/storage"
)

// Store is the narrow persistence surface the Ledger writes to.
type Store interface {
	AppendLedger(entry storage.LedgerEntry) error
	LastLedgerHash() (string, error)
}

// Ledger computes and persists the hash chain. It is safe for concurrent
// use, though in practice only the Controller's scan thread calls Record.
type Ledger struct {
	mu         sync.Mutex
	store      Store
	skidID     string
	now        func() time.Time
	log        *zap.Logger
	seq        uint64
	lastHash   string
}

// NewLedger returns a Ledger that persists to store, resuming the hash
// chain from the last entry already on disk if one exists.
func NewLedger(store Store, skidID string, now func() time.Time, log *zap.Logger) (*Ledger, error) {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{store: store, skidID: skidID, now: now, log: log}
	last, err := store.LastLedgerHash()
	if err != nil {
		return nil, fmt.Errorf("audit: resume hash chain: %w", err)
	}
	l.lastHash = last
	return l, nil
}

// Record appends a new chained entry. It implements the narrow
// controller.AuditSink interface so the Controller can depend on it
// without importing this package's concrete type.
func (l *Ledger) Record(kind string, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := storage.LedgerEntry{
		Seq:        l.seq,
		Timestamp:  l.now().UTC(),
		SkidID:     l.skidID,
		Kind:       kind,
		Payload:    payload,
		ParentHash: l.lastHash,
	}
	hash, err := canonicalHash(entry)
	if err != nil {
		return fmt.Errorf("audit: hash entry: %w", err)
	}
	entry.Hash = hash

	if err := l.store.AppendLedger(entry); err != nil {
		l.log.Error("audit: append failed", zap.String("kind", kind), zap.Error(err))
		return err
	}

	l.seq++
	l.lastHash = hash
	return nil
}

// canonicalHash computes sha256 over the entry's content fields plus its
// parent hash, excluding Hash itself. json.Marshal on a struct produces a
// stable field order, making this reproducible across processes.
func canonicalHash(entry storage.LedgerEntry) (string, error) {
	canonical := struct {
		Seq        uint64         `json:"seq"`
		Timestamp  string         `json:"timestamp"`
		SkidID     string         `json:"skid_id"`
		Kind       string         `json:"kind"`
		Payload    map[string]any `json:"payload"`
		ParentHash string         `json:"parent_hash"`
	}{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		SkidID:     entry.SkidID,
		Kind:       entry.Kind,
		Payload:    entry.Payload,
		ParentHash: entry.ParentHash,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify walks entries in order and confirms each entry's Hash matches
// its recomputed canonical hash and that ParentHash chains correctly.
// Returns the index of the first broken entry, or -1 if the chain is
// intact.
func Verify(entries []storage.LedgerEntry) int {
	parent := ""
	for i, e := range entries {
		if e.ParentHash != parent {
			return i
		}
		want, err := canonicalHash(storage.LedgerEntry{
			Seq: e.Seq, Timestamp: e.Timestamp, SkidID: e.SkidID,
			Kind: e.Kind, Payload: e.Payload, ParentHash: e.ParentHash,
		})
		if err != nil || want != e.Hash {
			return i
		}
		parent = e.Hash
	}
	return -1
}
