// Package config loads the LEMON server configuration from an HCL file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server  *ServerSettings  `hcl:"server,block"`
	Game    *GameSettings    `hcl:"game,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Owner   *OwnerSettings   `hcl:"owner,block"`
}

// ServerSettings configures the chat gateway.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	Monitor  bool   `hcl:"monitor,optional"`
}

// GameSettings configures rounds and balances.
type GameSettings struct {
	Window         string `hcl:"window,optional"`
	DefaultBalance int64  `hcl:"default_balance,optional"`
	Currency       string `hcl:"currency,optional"`
	BotName        string `hcl:"bot_name,optional"`
	Seed           int64  `hcl:"seed,optional"`

	window time.Duration
}

// StorageSettings configures the audit log and balance snapshots. An empty
// path disables persistence.
type StorageSettings struct {
	Path             string `hcl:"path,optional"`
	QueueSize        int    `hcl:"audit_queue,optional"`
	BatchSize        int    `hcl:"audit_batch,optional"`
	FlushInterval    string `hcl:"flush_interval,optional"`
	SnapshotInterval string `hcl:"snapshot_interval,optional"`

	flushInterval    time.Duration
	snapshotInterval time.Duration
}

// OwnerSettings lists identity keys allowed to run administrative commands.
type OwnerSettings struct {
	IDs []string `hcl:"ids,optional"`
}

// Env holds environment overrides, applied after the file.
type Env struct {
	Addr     string        `env:"LEMON_ADDR"`
	LogLevel string        `env:"LEMON_LOG_LEVEL"`
	Window   time.Duration `env:"LEMON_WINDOW"`
	DBPath   string        `env:"LEMON_DB_PATH"`
	OwnerIDs []string      `env:"LEMON_OWNER_ID" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename, falling back to defaults when it does not exist, and
// applies environment overrides from environ (os.Environ when nil).
func Load(filename string, environ map[string]string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}
		if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}

	var overrides Env
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.ApplyEnv(overrides)

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Game == nil {
		c.Game = &GameSettings{}
	}
	if c.Game.Window == "" {
		c.Game.Window = "5s"
	}
	if c.Game.DefaultBalance == 0 {
		c.Game.DefaultBalance = 1000
	}
	if c.Game.Currency == "" {
		c.Game.Currency = "LEMON"
	}
	if c.Game.BotName == "" {
		c.Game.BotName = "LEMON"
	}
	c.Game.window = 5 * time.Second

	if c.Storage == nil {
		c.Storage = &StorageSettings{Path: "lemon.db"}
	}
	if c.Storage.QueueSize == 0 {
		c.Storage.QueueSize = 1024
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = 100
	}
	if c.Storage.FlushInterval == "" {
		c.Storage.FlushInterval = "5s"
	}
	if c.Storage.SnapshotInterval == "" {
		c.Storage.SnapshotInterval = "30s"
	}
	c.Storage.flushInterval = 5 * time.Second
	c.Storage.snapshotInterval = 30 * time.Second

	if c.Owner == nil {
		c.Owner = &OwnerSettings{}
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.Game.window, err = time.ParseDuration(c.Game.Window); err != nil {
		return fmt.Errorf("game.window: %w", err)
	}
	if c.Storage.flushInterval, err = time.ParseDuration(c.Storage.FlushInterval); err != nil {
		return fmt.Errorf("storage.flush_interval: %w", err)
	}
	if c.Storage.snapshotInterval, err = time.ParseDuration(c.Storage.SnapshotInterval); err != nil {
		return fmt.Errorf("storage.snapshot_interval: %w", err)
	}
	return nil
}

// ApplyEnv overlays non-zero overrides.
func (c *Config) ApplyEnv(e Env) {
	if e.Addr != "" {
		c.SetAddress(e.Addr)
	}
	if e.LogLevel != "" {
		c.Server.LogLevel = e.LogLevel
	}
	if e.Window > 0 {
		c.Game.window = e.Window
		c.Game.Window = e.Window.String()
	}
	if e.DBPath != "" {
		c.Storage.Path = e.DBPath
	}
	for _, id := range e.OwnerIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(c.Owner.IDs, id) {
			c.Owner.IDs = append(c.Owner.IDs, id)
		}
	}
}

// SetAddress accepts "host:port", ":port" or a bare host.
func (c *Config) SetAddress(addr string) {
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		c.Server.Address = addr
		return
	}
	c.Server.Address = host
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
		c.Server.Port = p
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}
	if c.Game.window <= 0 {
		return fmt.Errorf("game window must be positive")
	}
	if c.Game.DefaultBalance < 0 {
		return fmt.Errorf("default balance must not be negative")
	}
	if c.Storage.QueueSize < 0 || c.Storage.BatchSize < 0 {
		return fmt.Errorf("audit queue and batch sizes must not be negative")
	}
	if c.Storage.flushInterval <= 0 || c.Storage.snapshotInterval <= 0 {
		return fmt.Errorf("storage intervals must be positive")
	}
	return nil
}

// ServerAddress returns the listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// WindowDuration returns the collection window.
func (c *Config) WindowDuration() time.Duration { return c.Game.window }

// FlushInterval returns the audit flush interval.
func (c *Config) FlushInterval() time.Duration { return c.Storage.flushInterval }

// SnapshotInterval returns how often balances are saved.
func (c *Config) SnapshotInterval() time.Duration { return c.Storage.snapshotInterval }

// IsOwner reports whether key may run administrative commands.
func (c *Config) IsOwner(key string) bool {
	return slices.Contains(c.Owner.IDs, key)
}
