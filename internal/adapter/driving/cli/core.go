package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/keyquota/internal/adapter/driven/clock"
	"github.com/ericfisherdev/keyquota/internal/adapter/driven/hostenv"
	relayadapter "github.com/ericfisherdev/keyquota/internal/adapter/driven/relay"
	sqliteadapter "github.com/ericfisherdev/keyquota/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyquota/internal/application"
	"github.com/ericfisherdev/keyquota/internal/config"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// core is the application wiring shared by every command.
type core struct {
	cfg     *config.Config
	keys    *application.KeyService
	history *application.HistoryService
	relay   driven.UsageRelay
	closers []func() error
}

// openCoreFunc builds the core for a command. Tests replace it.
var openCoreFunc = openCore

// openCore opens the local store and wires the driven adapters.
func openCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core, error) {
	// Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("database opened", "path", db.Path())

	// Run migrations on writer connection.
	schema, err := sqliteadapter.MigrateStorage(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("key store schema ready", "path", db.Path(), "schema_version", schema)

	// Wire driven adapters.
	store := sqliteadapter.NewStorageRepo(db)
	probe := hostenv.NewProbe(version)
	relay, err := relayadapter.NewClient(cfg.RelayURL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	scheduler := clock.NewTickerScheduler()

	c := newCore(cfg, store, probe, relay, scheduler, logger)
	c.closers = append(c.closers,
		func() error { scheduler.Close(); return nil },
		db.Close,
	)
	return c, nil
}

// newCore creates the application services over the given adapters.
func newCore(
	cfg *config.Config,
	store driven.KVStore,
	probe driven.EnvironmentProbe,
	relay driven.UsageRelay,
	scheduler driven.Scheduler,
	logger *slog.Logger,
) *core {
	history := application.NewHistoryService(store, cfg.HistoryLimit, logger)
	keys := application.NewKeyService(
		application.NewCodec(probe),
		store,
		relay,
		history,
		scheduler,
		logger,
		application.WithCooldownSeconds(cfg.CooldownSeconds()),
	)

	return &core{
		cfg:     cfg,
		keys:    keys,
		history: history,
		relay:   relay,
		closers: []func() error{func() error { keys.Close(); return nil }},
	}
}

// Close releases the core's resources in order.
func (c *core) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withCore loads configuration, opens the core, restores the saved keys and
// runs fn. Load problems are printed as notices, not failures.
func withCore(ctx context.Context, out printer, fn func(*core) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c, err := openCoreFunc(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			slog.Error("error closing key store", "error", closeErr)
		}
	}()

	res := c.keys.Load(ctx, true)
	out.printNotices(res.Notices())

	return fn(c)
}
