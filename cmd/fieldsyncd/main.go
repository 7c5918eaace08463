// Command fieldsyncd is the collector process: it loads configuration from
// the environment, opens the local and cloud stores, resolves its daemon
// identity, and runs the four periodic collection tasks until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ajility-Development/IM-Core-Daemon/cloudstore"
	"github.com/Ajility-Development/IM-Core-Daemon/config"
	"github.com/Ajility-Development/IM-Core-Daemon/daemon"
	"github.com/Ajility-Development/IM-Core-Daemon/localbuffer"
	"github.com/Ajility-Development/IM-Core-Daemon/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldsyncd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return daemon.WrapErr(daemon.ErrConfigFatal, err)
	}

	buffer, err := localbuffer.Open("./data")
	if err != nil {
		return daemon.WrapErr(daemon.ErrLocalBuffer, err)
	}
	defer buffer.Close()

	// daemon ID 0 until resolveDaemon inside daemon.New() finds the real
	// identity; logging.Logger.SetDaemonID rebinds it once known.
	log := logging.New(0, buffer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cloud, err := openCloudWithRetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cloud.Close()

	d, err := daemon.New(ctx, cfg, cloud, buffer, log)
	if err != nil {
		return err
	}

	d.Start(ctx)
	log.Info("fieldsyncd: started")

	<-ctx.Done()
	log.Info("fieldsyncd: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.Shutdown(shutdownCtx)
}

// bootstrapRetry is the back-off between cloud-connection attempts while
// bringing the process up — mirrors resolveDaemon's retry loop in package
// daemon, but covers the pool-level connect rather than the daemon-row read.
const bootstrapRetry = 5 * time.Second

// openCloudWithRetry connects the cloud store pool, retrying indefinitely on
// communication failure with a fixed back-off. Unlike a bad CONFIGURATION_KEY
// or an unsupported DB_CONNECTION, a connection refusal at startup is
// transient by assumption — the daemon keeps trying rather than exiting.
func openCloudWithRetry(ctx context.Context, cfg *config.Config, log *logging.Logger) (*cloudstore.Store, error) {
	dbCfg := cloudstore.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Database: cfg.DBDatabase,
		Username: cfg.DBUsername,
		Password: cfg.DBPassword,
	}
	for {
		cloud, err := cloudstore.Open(ctx, dbCfg)
		if err == nil {
			return cloud, nil
		}
		log.Warning("fieldsyncd: cloud store unreachable, retrying in %s: %v", bootstrapRetry, err)
		select {
		case <-ctx.Done():
			return nil, daemon.WrapErr(daemon.ErrCloudUnavailable, ctx.Err())
		case <-time.After(bootstrapRetry):
		}
	}
}
