package audit

import (
	"testing"
	"time"

	"github.com/lactplc/skidcore/internal/storage"
)

type fakeStore struct {
	entries []storage.LedgerEntry
}

func (f *fakeStore) AppendLedger(e storage.LedgerEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) LastLedgerHash() (string, error) {
	if len(f.entries) == 0 {
		return "", nil
	}
	return f.entries[len(f.entries)-1].Hash, nil
}

func fixedNow() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(100 * time.Millisecond)
		return t
	}
}

func TestLedgerChainsHashes(t *testing.T) {
	store := &fakeStore{}
	l, err := NewLedger(store, "SKID-1", fixedNow(), nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	if err := l.Record("state_transition", map[string]any{"from": "Idle", "to": "Startup"}); err != nil {
		t.Fatalf("Record 1: %v", err)
	}
	if err := l.Record("alarm_raised", map[string]any{"id": "ESTOP"}); err != nil {
		t.Fatalf("Record 2: %v", err)
	}

	if len(store.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.entries))
	}
	if store.entries[0].ParentHash != "" {
		t.Errorf("first entry should have empty parent hash, got %q", store.entries[0].ParentHash)
	}
	if store.entries[1].ParentHash != store.entries[0].Hash {
		t.Errorf("second entry's parent hash %q should equal first entry's hash %q",
			store.entries[1].ParentHash, store.entries[0].Hash)
	}

	if bad := Verify(store.entries); bad != -1 {
		t.Errorf("Verify found a break at index %d on an intact chain", bad)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	store := &fakeStore{}
	l, err := NewLedger(store, "SKID-1", fixedNow(), nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	l.Record("state_transition", map[string]any{"from": "Idle", "to": "Startup"})
	l.Record("state_transition", map[string]any{"from": "Startup", "to": "Running"})

	store.entries[0].Payload["to"] = "Tampered"

	if bad := Verify(store.entries); bad != 0 {
		t.Errorf("expected tamper detected at index 0, got %d", bad)
	}
}

func TestLedgerResumesChainFromStore(t *testing.T) {
	store := &fakeStore{entries: []storage.LedgerEntry{
		{Seq: 0, Kind: "state_transition", Hash: "deadbeef"},
	}}
	l, err := NewLedger(store, "SKID-1", fixedNow(), nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	l.Record("alarm_raised", map[string]any{"id": "ESTOP"})
	if store.entries[1].ParentHash != "deadbeef" {
		t.Errorf("expected resumed parent hash %q, got %q", "deadbeef", store.entries[1].ParentHash)
	}
}
