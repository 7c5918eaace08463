package cloudstore

import (
	"testing"
	"time"

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
	"github.com/Ajility-Development/IM-Core-Daemon/plcdriver"
)

func TestDiscoveredTagColumns(t *testing.T) {
	tags := []plcdriver.DiscoveredTag{
		{Name: "A", DataTypeName: "DINT"},
		{Name: "B", DataTypeName: "REAL"},
	}
	names, types := discoveredTagColumns(tags)
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("names = %v", names)
	}
	if len(types) != 2 || types[0] != "DINT" || types[1] != "REAL" {
		t.Errorf("types = %v", types)
	}
}

func TestFactColumns(t *testing.T) {
	now := time.Now()
	records := []catalog.Record{
		{TagID: 1, Time: now, Value: 3.5},
		{TagID: 2, Time: now, Value: -1.0},
	}
	tagIDs, times, vals := factColumns(records)
	if len(tagIDs) != 2 || tagIDs[0] != 1 || tagIDs[1] != 2 {
		t.Errorf("tagIDs = %v", tagIDs)
	}
	if len(times) != 2 || !times[0].Equal(now) {
		t.Errorf("times = %v", times)
	}
	if len(vals) != 2 || vals[0] != 3.5 || vals[1] != -1.0 {
		t.Errorf("vals = %v", vals)
	}
}

func TestLogColumns(t *testing.T) {
	now := time.Now()
	records := []logging.Record{
		{ID: 1, Time: now, Message: "m1", Level: logging.Info, DaemonID: 9},
		{ID: 2, Time: now, Message: "m2", Level: logging.Danger, DaemonID: 9},
	}
	times, messages, levels, daemonIDs := logColumns(records)
	if len(messages) != 2 || messages[1] != "m2" {
		t.Errorf("messages = %v", messages)
	}
	if len(levels) != 2 || levels[1] != "danger" {
		t.Errorf("levels = %v", levels)
	}
	if len(daemonIDs) != 2 || daemonIDs[0] != 9 {
		t.Errorf("daemonIDs = %v", daemonIDs)
	}
	_ = times
}

func TestUpsertFactsNoopOnEmpty(t *testing.T) {
	s := &Store{}
	if err := s.UpsertFacts(nil, nil); err != nil {
		t.Fatalf("UpsertFacts(nil) error = %v, want nil (no-op on empty batch)", err)
	}
}

func TestUpsertDiscoveredTagsNoopOnEmpty(t *testing.T) {
	s := &Store{}
	if err := s.UpsertDiscoveredTags(nil, 1, nil); err != nil {
		t.Fatalf("UpsertDiscoveredTags(nil) error = %v, want nil (no-op on empty batch)", err)
	}
}

func TestUpsertLogsNoopOnEmpty(t *testing.T) {
	s := &Store{}
	if err := s.UpsertLogs(nil); err != nil {
		t.Fatalf("UpsertLogs(nil) error = %v, want nil (no-op on empty batch)", err)
	}
}
