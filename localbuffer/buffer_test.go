package localbuffer

import (
	"testing"
	"time"

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
)

func openTestBuffer(t *testing.T) *Buffer {
	t.Helper()
	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInsertFactsAndSelectRoundTrip(t *testing.T) {
	b := openTestBuffer(t)
	now := time.Now().Truncate(time.Millisecond)

	records := []catalog.Record{
		{TagID: 1, Time: now, Value: 3.14},
		{TagID: 2, Time: now.Add(time.Second), Value: -1.0},
	}
	if err := b.InsertFacts(records); err != nil {
		t.Fatalf("InsertFacts() error = %v", err)
	}

	got, err := b.SelectFactsBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectFactsBefore() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestInsertFactsIgnoresDuplicateTagIDTime(t *testing.T) {
	b := openTestBuffer(t)
	now := time.Now().Truncate(time.Millisecond)

	if err := b.InsertFacts([]catalog.Record{{TagID: 1, Time: now, Value: 1}}); err != nil {
		t.Fatalf("InsertFacts() error = %v", err)
	}
	// Same (tag_id, time) again with a different value must be ignored, not
	// overwrite or error — a retried store after a partial failure must be
	// idempotent.
	if err := b.InsertFacts([]catalog.Record{{TagID: 1, Time: now, Value: 999}}); err != nil {
		t.Fatalf("InsertFacts() duplicate error = %v", err)
	}

	got, err := b.SelectFactsBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectFactsBefore() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (duplicate key must be ignored)", len(got))
	}
	if got[0].Value != 1 {
		t.Errorf("got[0].Value = %v, want 1 (first insert wins)", got[0].Value)
	}
}

func TestDeleteFactsBeforeCutoff(t *testing.T) {
	b := openTestBuffer(t)
	now := time.Now().Truncate(time.Millisecond)

	records := []catalog.Record{
		{TagID: 1, Time: now, Value: 1},
		{TagID: 1, Time: now.Add(time.Hour), Value: 2},
	}
	if err := b.InsertFacts(records); err != nil {
		t.Fatalf("InsertFacts() error = %v", err)
	}

	if err := b.DeleteFactsBefore(now); err != nil {
		t.Fatalf("DeleteFactsBefore() error = %v", err)
	}

	remaining, err := b.SelectFactsBefore(now.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("SelectFactsBefore() error = %v", err)
	}
	if len(remaining) != 1 || !remaining[0].Time.Equal(now.Add(time.Hour)) {
		t.Fatalf("remaining = %+v, want only the record after cutoff", remaining)
	}
}

func TestInsertFactsEmptyIsNoop(t *testing.T) {
	b := openTestBuffer(t)
	if err := b.InsertFacts(nil); err != nil {
		t.Fatalf("InsertFacts(nil) error = %v", err)
	}
}

func TestLogRoundTripAndDelete(t *testing.T) {
	b := openTestBuffer(t)
	now := time.Now().Truncate(time.Millisecond)

	rec := logging.Record{Time: now, Message: "started", Level: logging.Info, DaemonID: 7}
	if err := b.InsertLog(rec); err != nil {
		t.Fatalf("InsertLog() error = %v", err)
	}

	logs, err := b.SelectLogsBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectLogsBefore() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "started" || logs[0].Level != logging.Info {
		t.Fatalf("logs = %+v", logs)
	}

	if err := b.DeleteLogsBefore(now.Add(time.Hour)); err != nil {
		t.Fatalf("DeleteLogsBefore() error = %v", err)
	}
	remaining, err := b.SelectLogsBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectLogsBefore() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining = %+v, want none after delete", remaining)
	}
}
