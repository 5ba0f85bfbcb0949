package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/lemonroulette/internal/audit"
	"github.com/lox/lemonroulette/internal/chat"
	"github.com/lox/lemonroulette/internal/config"
	"github.com/lox/lemonroulette/internal/intake"
	"github.com/lox/lemonroulette/internal/ledger"
	"github.com/lox/lemonroulette/internal/report"
	"github.com/lox/lemonroulette/internal/round"
	"github.com/lox/lemonroulette/internal/storage/sqlite"
	"github.com/lox/lemonroulette/internal/wheel"
	"github.com/muesli/termenv"
	"golang.org/x/sync/errgroup"
)

// ServerCmd runs the gateway with rounds, ledger and audit log.
type ServerCmd struct {
	Config   string        `short:"c" default:"lemon.hcl" help:"Path to HCL configuration file"`
	Addr     string        `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel string        `short:"l" help:"Log level (overrides config)"`
	Window   time.Duration `help:"Collection window (overrides config)"`
	DB       string        `help:"SQLite database path (overrides config)"`
	Seed     *int64        `help:"Deterministic RNG seed for the wheel (optional)"`
	Monitor  bool          `help:"Print every settlement to stdout"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(os.Stderr, cfg.Server.LogLevel)
	ctx := setupSignalHandler(logger)
	return runServer(ctx, cfg, logger)
}

func (c *ServerCmd) applyOverrides(cfg *config.Config) {
	if c.Addr != "" {
		cfg.SetAddress(c.Addr)
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Window > 0 {
		cfg.ApplyEnv(config.Env{Window: c.Window})
	}
	if c.DB != "" {
		cfg.Storage.Path = c.DB
	}
	if c.Seed != nil {
		cfg.Game.Seed = *c.Seed
	}
	if c.Monitor {
		cfg.Server.Monitor = true
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	clock := quartz.NewReal()
	opts := report.Options{BotName: cfg.Game.BotName, Currency: cfg.Game.Currency}

	l := ledger.New(cfg.Game.DefaultBalance)

	var store *sqlite.Store
	var recorder round.Recorder = audit.Discard{}
	var writer *audit.Writer
	if cfg.Storage.Path != "" {
		var err error
		store, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close storage", "error", err)
			}
		}()

		balances, err := store.LoadBalances(ctx)
		if err != nil {
			return fmt.Errorf("load balances: %w", err)
		}
		logger.Info("Restored balances", "accounts", l.Restore(balances), "path", cfg.Storage.Path)

		writer = audit.NewWriter(store, logger, audit.Config{
			QueueSize:     cfg.Storage.QueueSize,
			BatchSize:     cfg.Storage.BatchSize,
			FlushInterval: cfg.FlushInterval(),
			Clock:         clock,
		})
		recorder = writer
	}

	hub := chat.NewHub(opts, logger)
	notifiers := []round.Notifier{hub}
	if cfg.Server.Monitor {
		notifiers = append(notifiers, report.NewConsole(os.Stdout, cfg.Game.Currency, termenv.EnvColorProfile()))
	}

	drawer := wheel.NewGenerator(cfg.Game.Seed)
	settler := round.NewSettler(drawer, l, recorder, round.NewMultiNotifier(notifiers...), clock, logger)
	registry := round.NewRegistry(settler, logger, round.Config{Window: cfg.WindowDuration(), Clock: clock})

	in := intake.New(l, registry, clock, logger)
	dispatcher := chat.NewDispatcher(in, l, cfg.IsOwner, opts, logger)
	gateway := chat.NewServer(hub, dispatcher, logger, chat.Options{
		Addr:     cfg.ServerAddress(),
		Report:   opts,
		Window:   cfg.WindowDuration(),
		Balances: l,
	})

	logger.Info("Starting LEMON roulette",
		"addr", cfg.ServerAddress(),
		"window", cfg.WindowDuration(),
		"default_balance", cfg.Game.DefaultBalance,
		"storage", cfg.Storage.Path,
		"owners", len(cfg.Owner.IDs))

	// The audit writer outlives the gateway so that rounds settled during
	// shutdown still reach the store.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan error, 1)
	if writer != nil {
		go func() { auditDone <- writer.Run(auditCtx) }()
	} else {
		auditDone <- nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.Run(gctx)
	})
	if store != nil {
		g.Go(func() error {
			snapshotLoop(gctx, clock, cfg.SnapshotInterval(), l, store, logger)
			return nil
		})
	}
	runErr := g.Wait()

	logger.Info("Settling open rounds")
	registry.Close()

	stopAudit()
	if err := <-auditDone; err != nil {
		logger.Warn("Audit writer stopped with error", "error", err)
	}
	if writer != nil {
		logger.Info("Audit log flushed", "written", writer.Written(), "dropped", writer.Dropped())
	}

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveBalances(saveCtx, l.Snapshot()); err != nil {
			logger.Warn("Final balance snapshot failed", "error", err)
		}
	}
	return runErr
}

// snapshotLoop saves ledger balances until ctx is cancelled. Failures are
// logged and retried on the next tick.
func snapshotLoop(ctx context.Context, clock quartz.Clock, every time.Duration, l *ledger.Ledger, store *sqlite.Store, logger *log.Logger) {
	ticker := clock.NewTicker(every, "snapshot")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.SaveBalances(ctx, l.Snapshot()); err != nil {
				logger.Warn("Balance snapshot failed", "error", err)
				continue
			}
			logger.Debug("Saved balance snapshot", "accounts", l.Len())
		}
	}
}
