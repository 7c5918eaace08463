// Package source implements one monitored PLC connection: reconciling which
// tags the cloud wants monitored, polling them, buffering observations, and
// discovering new tags. It is the Go-idiomatic home for what Source.py did
// in the original collector, built against plcdriver.Driver instead of a
// concrete pycomm3 wrapper so it can be tested against a fake driver.
package source

import (
	"context"
	"fmt"

	"github.com/Ajility-Development/IM-Core-Daemon/catalog"
	"github.com/Ajility-Development/IM-Core-Daemon/cloudstore"
	"github.com/Ajility-Development/IM-Core-Daemon/plcdriver"
)

// CloudStore is the subset of cloudstore.Store a Source needs.
type CloudStore interface {
	GetSourceActive(ctx context.Context, sourceID int64) (bool, error)
	HeartbeatSource(ctx context.Context, sourceID int64) error
	ListMonitoredTags(ctx context.Context, sourceID int64) ([]cloudstore.MonitoredTag, error)
	UpsertDiscoveredTags(ctx context.Context, sourceID int64, tags []plcdriver.DiscoveredTag) error
}

// LocalBuffer is the subset of localbuffer.Buffer a Source needs.
type LocalBuffer interface {
	InsertFacts(records []catalog.Record) error
}

// Logger is the subset of logging.Logger a Source needs.
type Logger interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Danger(format string, args ...interface{})
	Success(format string, args ...interface{})
}

// Source ties one plcdriver.Driver to its cloud identity, its monitored-tag
// catalog, and the local buffer it stores observations into.
type Source struct {
	ID     int64
	Driver plcdriver.Driver

	cloud  CloudStore
	buffer LocalBuffer
	log    Logger
	cat    *catalog.Catalog

	active bool
}

// New constructs a Source bound to a driver, cloud store, local buffer and
// logger. The source starts inactive; the first Sync call establishes its
// real state.
func New(id int64, driver plcdriver.Driver, cloud CloudStore, buffer LocalBuffer, log Logger) *Source {
	return &Source{
		ID:     id,
		Driver: driver,
		cloud:  cloud,
		buffer: buffer,
		log:    log,
		cat:    catalog.New(),
	}
}

// Sync re-reads the source's active flag, heartbeats it, and reconciles the
// in-memory catalog against the cloud's monitored-tag set: when active, tags
// no longer monitored are dropped and newly monitored tags are added; when
// inactive, the whole catalog is cleared rather than left polling stale
// entries, matching Source.py's sync().
func (s *Source) Sync(ctx context.Context) error {
	active, err := s.cloud.GetSourceActive(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("source: sync: %w", err)
	}
	s.active = active

	if err := s.cloud.HeartbeatSource(ctx, s.ID); err != nil {
		s.log.Warning("source %d: heartbeat failed: %v", s.ID, err)
	}

	if !active {
		s.cat.Clear()
		return nil
	}

	monitored, err := s.cloud.ListMonitoredTags(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("source: sync: list monitored tags: %w", err)
	}

	wanted := make(map[string]cloudstore.MonitoredTag, len(monitored))
	for _, m := range monitored {
		wanted[m.Name] = m
	}

	for _, name := range s.cat.Names() {
		if _, ok := wanted[name]; !ok {
			s.cat.Remove(name)
		}
	}
	for name, m := range wanted {
		if s.cat.Get(name) == nil {
			s.cat.Put(catalog.NewTag(m.ID, m.Name, m.DataTypeName))
		}
	}
	return nil
}

// Poll reads every currently monitored tag and records each valid
// observation into the catalog. It is a no-op when the source is inactive
// or has no monitored tags.
func (s *Source) Poll(ctx context.Context) error {
	if !s.active {
		return nil
	}
	names := s.cat.Names()
	if len(names) == 0 {
		return nil
	}

	observations, err := s.Driver.Poll(ctx, names)
	if err != nil {
		return fmt.Errorf("source: poll: %w", err)
	}

	for _, obs := range observations {
		tag := s.cat.Get(obs.Name)
		if tag == nil {
			continue
		}
		tag.Record(obs.Time, obs.Value)
	}
	return nil
}

// StoreData drains every monitored tag's buffered observations into the
// local buffer in one bulk insert.
func (s *Source) StoreData(ctx context.Context) error {
	records := s.cat.DrainAll()
	if len(records) == 0 {
		return nil
	}
	if err := s.buffer.InsertFacts(records); err != nil {
		return fmt.Errorf("source: store data: %w", err)
	}
	return nil
}

// DiscoverTags runs the driver's discovery pass and upserts whatever it
// finds into the cloud tag catalog. It is idempotent and deliberately not
// wired to any fixed-cadence schedule — an operator or external tool invokes
// it on demand.
func (s *Source) DiscoverTags(ctx context.Context) error {
	tags, err := s.Driver.Discover(ctx)
	if err != nil {
		return fmt.Errorf("source: discover tags: %w", err)
	}
	if err := s.cloud.UpsertDiscoveredTags(ctx, s.ID, tags); err != nil {
		return fmt.Errorf("source: discover tags: upsert: %w", err)
	}
	s.log.Success("source %d: discovered %d tags", s.ID, len(tags))
	return nil
}

// Active reports whether the most recent Sync found this source active.
func (s *Source) Active() bool {
	return s.active
}

// Catalog exposes the source's monitored-tag catalog for inspection.
func (s *Source) Catalog() *catalog.Catalog {
	return s.cat
}
