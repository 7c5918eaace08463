// Package config loads the daemon's runtime configuration from the
// environment. There is no file-based or YAML configuration surface here:
// every knob the daemon needs is a single env var, matching how the
// collector this daemon replaces has always been deployed (one container,
// one set of env vars, one cloud identity).
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = ""

// Config holds everything the daemon needs to start: which cloud identity it
// is, how often its periodic tasks run, and how to reach the cloud store.
type Config struct {
	ConfigurationKey string `envconfig:"CONFIGURATION_KEY" required:"true"`

	PollTime    float64 `envconfig:"POLL_TIME" required:"true"`
	StoreTime   float64 `envconfig:"STORE_TIME" required:"true"`
	SyncTime    float64 `envconfig:"SYNC_TIME" required:"true"`
	ForwardTime float64 `envconfig:"FORWARD_TIME" required:"true"`

	DBConnection string `envconfig:"DB_CONNECTION" required:"true"`
	DBHost       string `envconfig:"DB_HOST" required:"true"`
	DBPort       int    `envconfig:"DB_PORT" default:"5432"`
	DBDatabase   string `envconfig:"DB_DATABASE" required:"true"`
	DBUsername   string `envconfig:"DB_USERNAME" required:"true"`
	DBPassword   string `envconfig:"DB_PASSWORD" required:"true"`
}

// ErrUnsupportedConnection is returned when DB_CONNECTION names a backend this
// daemon doesn't know how to talk to. This is always a fatal configuration
// error: the original collector calls sys.exit() immediately on the same
// condition rather than attempting to continue with no cloud store.
var ErrUnsupportedConnection = fmt.Errorf("config: unsupported DB_CONNECTION, only \"pgsql\" is supported")

// Load reads and validates configuration from the environment. It returns
// ErrUnsupportedConnection (wrapped) if DB_CONNECTION is set to anything other
// than "pgsql" — the only cloud backend this daemon implements.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.DBConnection != "pgsql" {
		return nil, fmt.Errorf("config: DB_CONNECTION=%q: %w", c.DBConnection, ErrUnsupportedConnection)
	}
	return &c, nil
}

// PollInterval, StoreInterval, SyncInterval and ForwardInterval convert the
// configured periods (seconds, as floats to mirror the original env vars) to
// time.Duration for use with time.Ticker.
func (c *Config) PollInterval() time.Duration    { return toDuration(c.PollTime) }
func (c *Config) StoreInterval() time.Duration   { return toDuration(c.StoreTime) }
func (c *Config) SyncInterval() time.Duration    { return toDuration(c.SyncTime) }
func (c *Config) ForwardInterval() time.Duration { return toDuration(c.ForwardTime) }

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
