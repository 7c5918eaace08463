package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/cloudstore"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
	"github.com/Ajility-Development/IM-Core-Daemon/plcdriver"
	"github.com/Ajility-Development/IM-Core-Daemon/source"
)

type fakeDriver struct{}

func (fakeDriver) Open(ctx context.Context) error  { return nil }
func (fakeDriver) Close() error                    { return nil }
func (fakeDriver) IsConnected() bool               { return true }
func (fakeDriver) Discover(ctx context.Context) ([]plcdriver.DiscoveredTag, error) { return nil, nil }
func (fakeDriver) Poll(ctx context.Context, names []string) ([]plcdriver.Observation, error) {
	return nil, nil
}

type fakeCloudStore struct{}

func (fakeCloudStore) GetSourceActive(ctx context.Context, sourceID int64) (bool, error) {
	return false, nil
}
func (fakeCloudStore) HeartbeatSource(ctx context.Context, sourceID int64) error { return nil }
func (fakeCloudStore) ListMonitoredTags(ctx context.Context, sourceID int64) ([]cloudstore.MonitoredTag, error) {
	return nil, nil
}
func (fakeCloudStore) UpsertDiscoveredTags(ctx context.Context, sourceID int64, tags []plcdriver.DiscoveredTag) error {
	return nil
}

type fakeLocalBuffer struct{}

func (fakeLocalBuffer) InsertFacts(records []catalog.Record) error { return nil }

// newPausedSource returns a Source whose Active() is false, as if the most
// recent Sync found the cloud's source row paused — exactly the case
// pollTask must throttle independently of the daemon's own active flag.
func newPausedSource(id int64) *source.Source {
	return source.New(id, fakeDriver{}, fakeCloudStore{}, fakeLocalBuffer{}, logging.New(1, nil))
}

func TestErrKindWrapAndIs(t *testing.T) {
	base := errors.New("boom")
	wrapped := WrapErr(ErrCloudUnavailable, base)

	if !Is(wrapped, ErrCloudUnavailable) {
		t.Error("Is(wrapped, ErrCloudUnavailable) = false, want true")
	}
	if Is(wrapped, ErrPLCUnavailable) {
		t.Error("Is(wrapped, ErrPLCUnavailable) = true, want false")
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false, want true — Unwrap is broken")
	}
}

func TestWrapErrNilIsNil(t *testing.T) {
	if WrapErr(ErrConfigFatal, nil) != nil {
		t.Error("WrapErr(kind, nil) should return nil")
	}
}

func TestDaemonPausedSkipsPollEntirely(t *testing.T) {
	src := newPausedSource(1)
	d := &Daemon{
		log:            logging.New(1, nil),
		active:         false,
		sources:        []*source.Source{src},
		pausedCounters: make(map[int64]int),
	}

	d.pollTask(context.Background())
	if len(d.pausedCounters) != 0 {
		t.Errorf("pausedCounters = %v, want empty — daemon-level pause is a full no-op, not throttled", d.pausedCounters)
	}
}

func TestPausedSourceCounterThrottle(t *testing.T) {
	src := newPausedSource(1)
	d := &Daemon{
		log:            logging.New(1, nil),
		active:         true,
		sources:        []*source.Source{src},
		pausedCounters: make(map[int64]int),
	}

	warnCount := 0
	for i := 0; i < pausedWarnEvery*2; i++ {
		before := d.pausedCounters[src.ID]
		d.pollTask(context.Background())
		if before == 0 {
			warnCount++
		}
	}
	if warnCount != 2 {
		t.Errorf("warnCount = %d, want 2 (one per %d-cycle window)", warnCount, pausedWarnEvery)
	}
}

func TestPausedSourceCountersAreIndependent(t *testing.T) {
	a := newPausedSource(1)
	b := newPausedSource(2)
	d := &Daemon{
		log:            logging.New(1, nil),
		active:         true,
		sources:        []*source.Source{a, b},
		pausedCounters: make(map[int64]int),
	}

	for i := 0; i < 3; i++ {
		d.pollTask(context.Background())
	}
	if d.pausedCounters[a.ID] != 3 || d.pausedCounters[b.ID] != 3 {
		t.Fatalf("pausedCounters = %v, want both at 3", d.pausedCounters)
	}
}

func TestErrKindStrings(t *testing.T) {
	cases := map[ErrKind]string{
		ErrConfigFatal:      "config_fatal",
		ErrCloudUnavailable: "cloud_unavailable",
		ErrPLCUnavailable:   "plc_unavailable",
		ErrInvalidValue:     "invalid_value",
		ErrCatalogMismatch:  "catalog_mismatch",
		ErrLocalBuffer:      "local_buffer_error",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(kind), got, want)
		}
	}
}
