// Package daemon wires a resolved cloud identity, a set of PLC sources, the
// local buffer and the cloud store into the collector's four fixed-cadence
// tasks. It is the Go-idiomatic replacement for Daemon.py: same task
// cadence and pause semantics, but retries are for-loops with a back-off
// wait rather than recursive calls, and the scheduler is one
// ticker-driven goroutine per task instead of a Twisted reactor.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ajility-Development/IM-Core-Daemon/cloudstore"
	"github.com/Ajility-Development/IM-Core-Daemon/config"
	"github.com/Ajility-Development/IM-Core-Daemon/localbuffer"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
	"github.com/Ajility-Development/IM-Core-Daemon/plcdriver"
	"github.com/Ajility-Development/IM-Core-Daemon/source"
)

// pausedWarnEvery throttles a paused source's warning log to once every this
// many consecutive paused poll cycles, matching the original collector's
// per-source _pausedCounter reset at 30.
const pausedWarnEvery = 30

// retryBackoff is the pause between bootstrap retries when the cloud store
// cannot be reached yet.
const retryBackoff = 5 * time.Second

// Daemon is one running collector identity: a resolved daemon ID, its set of
// sources, and the cloud/local stores they read from and write to.
type Daemon struct {
	id     int64
	cfg    *config.Config
	cloud  *cloudstore.Store
	buffer *localbuffer.Buffer
	log    *logging.Logger

	sources []*source.Source

	mu             sync.Mutex
	active         bool
	pausedCounters map[int64]int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New resolves CONFIGURATION_KEY and the source list against the cloud
// store, opening a plcdriver.LogixDriver for every Logix-family source
// (sources configured with any other driver are logged and skipped, exactly
// as Source.py's _configure logs "danger" and leaves the source unusable).
// Resolving the daemon identity retries indefinitely on transient cloud
// errors with a 5s back-off; an unknown configuration key is fatal.
func New(ctx context.Context, cfg *config.Config, cloud *cloudstore.Store, buffer *localbuffer.Buffer, log *logging.Logger) (*Daemon, error) {
	row, err := resolveDaemon(ctx, cfg, cloud, log)
	if err != nil {
		return nil, err
	}
	log.SetDaemonID(row.ID)

	d := &Daemon{
		id:             row.ID,
		cfg:            cfg,
		cloud:          cloud,
		buffer:         buffer,
		log:            log,
		active:         row.Active,
		pausedCounters: make(map[int64]int),
	}

	sourceRows, err := listSourcesWithRetry(ctx, cloud, row.ID, log)
	if err != nil {
		return nil, err
	}

	for _, sr := range sourceRows {
		if sr.Driver != "Logix" {
			log.Danger("daemon: source %d: unsupported driver %q, skipping", sr.ID, sr.Driver)
			continue
		}
		drv := plcdriver.NewLogixDriver(sr.Address, log)
		if err := drv.Open(ctx); err != nil {
			log.Danger("daemon: source %d: failed to open PLC connection: %v", sr.ID, err)
			continue
		}
		d.sources = append(d.sources, source.New(sr.ID, drv, cloud, buffer, log))
	}

	return d, nil
}

func resolveDaemon(ctx context.Context, cfg *config.Config, cloud *cloudstore.Store, log *logging.Logger) (*cloudstore.Daemon, error) {
	for {
		row, err := cloud.GetDaemonByConfigKey(ctx, cfg.ConfigurationKey)
		if err == nil {
			return row, nil
		}
		if errors.Is(err, cloudstore.ErrDaemonNotFound) {
			return nil, WrapErr(ErrConfigFatal, err)
		}
		log.Warning("daemon: resolve configuration key failed, retrying in %s: %v", retryBackoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
}

func listSourcesWithRetry(ctx context.Context, cloud *cloudstore.Store, daemonID int64, log *logging.Logger) ([]cloudstore.Source, error) {
	for {
		rows, err := cloud.ListSources(ctx, daemonID)
		if err == nil {
			return rows, nil
		}
		log.Warning("daemon: list sources failed, retrying in %s: %v", retryBackoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
}

func (d *Daemon) isActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Daemon) setActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

// Start launches the five periodic goroutines (poll, store, sync, forward,
// and the fixed 5s log-forward) and returns immediately. Each ticker
// serializes its own task — a tick is never handled concurrently with the
// previous one — but the five tickers run independently of each other.
func (d *Daemon) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.startTicker(runCtx, d.cfg.PollInterval(), d.pollTask)
	d.startTicker(runCtx, d.cfg.StoreInterval(), d.storeTask)
	d.startTicker(runCtx, d.cfg.SyncInterval(), d.syncTask)
	d.startTicker(runCtx, d.cfg.ForwardInterval(), d.forwardDataTask)
	d.startTicker(runCtx, 5*time.Second, d.forwardLogsTask)
}

func (d *Daemon) startTicker(ctx context.Context, interval time.Duration, task func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

// Shutdown stops all five tickers, waits for in-flight task runs to finish,
// then closes every source's driver, the local buffer, and the cloud store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	for _, src := range d.sources {
		if err := src.Driver.Close(); err != nil {
			d.log.Warning("daemon: source %d: error closing driver: %v", src.ID, err)
		}
	}
	if err := d.buffer.Close(); err != nil {
		d.log.Warning("daemon: error closing local buffer: %v", err)
	}
	d.cloud.Close()
	return nil
}

// syncTask re-reads this daemon's active flag and heartbeats it, then — only
// while active — reconciles every source's monitored-tag set against the
// cloud. Matches Daemon.py's syncDaemon()+syncSources() pair.
func (d *Daemon) syncTask(ctx context.Context) {
	active, err := d.cloud.GetDaemonActive(ctx, d.id)
	if err != nil {
		d.log.Danger("daemon: sync: %v", err)
		return
	}
	d.setActive(active)

	if err := d.cloud.HeartbeatDaemon(ctx, d.id); err != nil {
		d.log.Warning("daemon: heartbeat failed: %v", err)
	}
	if !active {
		d.log.Warning("daemon: paused")
		return
	}

	for _, src := range d.sources {
		if err := src.Sync(ctx); err != nil {
			d.log.Warning("daemon: source %d: sync failed: %v", src.ID, err)
		}
	}
}

// pollTask is a no-op while the whole daemon is paused — the same gate
// storeTask uses. While the daemon is active, every source is polled
// individually; a source that is itself paused logs a warning only once
// every pausedWarnEvery consecutive paused cycles rather than on every tick,
// exactly reproducing pollSources()'s per-source _pausedCounter throttle in
// the original collector.
func (d *Daemon) pollTask(ctx context.Context) {
	if !d.isActive() {
		return
	}

	for _, src := range d.sources {
		if !src.Active() {
			d.notePausedSource(src.ID)
			continue
		}
		if err := src.Poll(ctx); err != nil {
			d.log.Danger("daemon: source %d: poll failed: %v", src.ID, WrapErr(ErrPLCUnavailable, err))
		}
	}
}

// notePausedSource logs a throttled warning for one paused source, counted
// independently per source so one source's pause doesn't suppress or reset
// another's counter.
func (d *Daemon) notePausedSource(sourceID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pausedCounters[sourceID] == 0 {
		d.log.Warning("daemon: source %d: paused, skipping poll", sourceID)
	}
	d.pausedCounters[sourceID]++
	if d.pausedCounters[sourceID] >= pausedWarnEvery {
		d.pausedCounters[sourceID] = 0
	}
}

// storeTask drains every source's buffered observations into the local
// buffer, only while the daemon is active — matching Daemon.py's
// storeData(), which skips the task entirely on a paused daemon rather than
// relying on an inactive source's catalog already being empty.
func (d *Daemon) storeTask(ctx context.Context) {
	if !d.isActive() {
		return
	}
	for _, src := range d.sources {
		if err := src.StoreData(ctx); err != nil {
			d.log.Warning("daemon: source %d: store failed: %v", src.ID, err)
		}
	}
}

// forwardDataTask drains every locally buffered fact with time <= now into
// the cloud store, then deletes it locally — matching Daemon.py's
// forwardData(): copy-then-delete, so a crash mid-forward just re-sends.
func (d *Daemon) forwardDataTask(ctx context.Context) {
	cutoff := time.Now()
	records, err := d.buffer.SelectFactsBefore(cutoff)
	if err != nil {
		d.log.Danger("daemon: forward: select local facts: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := d.cloud.UpsertFacts(ctx, records); err != nil {
		d.log.Danger("daemon: forward: upsert facts to cloud: %v", err)
		return
	}
	if err := d.buffer.DeleteFactsBefore(cutoff); err != nil {
		d.log.Danger("daemon: forward: purge forwarded facts: %v", err)
		return
	}
	d.log.Success("daemon: forwarded %d facts", len(records))
}

// forwardLogsTask drains buffered log records into the cloud store on the
// fixed 5s cadence the original collector used for its "utilities" task.
func (d *Daemon) forwardLogsTask(ctx context.Context) {
	if err := d.log.Forward(d.cloud); err != nil {
		d.log.Danger("daemon: forward logs failed: %v", err)
	}
}
