package history

import (
	"testing"
	"time"

	"github.com/dropwire/dropwire/internal/errdefs"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerPutGet(t *testing.T) {
	l := openTestLedger(t)

	rec := Record{
		TransferID: "t1",
		Name:       "photos",
		Direction:  DirectionSent,
		Mode:       "relay",
		Bytes:      5 * 1024 * 1024,
		Chunks:     5,
		Status:     "completed",
		FinishedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := l.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := l.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != rec {
		t.Fatalf("Get = %+v, want %+v", got, rec)
	}

	if _, err := l.Get("missing"); !errdefs.IsNotFound(err) {
		t.Fatalf("missing record: got %v, want not_found", err)
	}
}

func TestLedgerListMostRecentFirst(t *testing.T) {
	l := openTestLedger(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		rec := Record{
			TransferID: id,
			Direction:  DirectionReceived,
			Status:     "completed",
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := l.Put(rec); err != nil {
			t.Fatalf("Put(%s): %v", id, err)
		}
	}

	records, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List returned %d records, want 3", len(records))
	}
	if records[0].TransferID != "c" || records[2].TransferID != "a" {
		t.Fatalf("records not sorted most recent first: %+v", records)
	}
}

func TestLedgerPutOverwrites(t *testing.T) {
	l := openTestLedger(t)

	if err := l.Put(Record{TransferID: "t1", Status: "failed"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := l.Put(Record{TransferID: "t1", Status: "completed"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := l.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("Status = %q, want completed", got.Status)
	}
}
