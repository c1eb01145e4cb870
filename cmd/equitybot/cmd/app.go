package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/config"
	"github.com/rustyeddy/equitybot/engine"
	"github.com/rustyeddy/equitybot/journal"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/metrics"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/sim"
	"github.com/rustyeddy/equitybot/state"
)

type feed interface {
	market.Feed
	market.VolatilitySource
}

// app holds everything a command needs to drive the engine.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	engine  *engine.Engine
	broker  *sim.Engine
	journal journal.Journal
	metrics metrics.Sink
}

// newApp wires the paper broker, feed, state store, journal, notifiers and
// metrics sink from cfg.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	f, err := buildFeed(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.Broker.LedgerPath); err != nil {
		return nil, err
	}
	b, err := sim.NewEngine(cfg.Broker, f)
	if err != nil {
		return nil, fmt.Errorf("paper broker: %w", err)
	}
	j, err := buildJournal(cfg)
	if err != nil {
		return nil, err
	}
	n, err := buildNotifier(cfg)
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	m := buildMetrics(ctx, cfg, log)

	eng, err := engine.New(engine.Deps{
		Config:     cfg,
		Feed:       f,
		Volatility: f,
		Broker:     b,
		Store:      state.NewStore(cfg.State.Path),
		Journal:    j,
		Notifier:   n,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		_ = j.Close()
		m.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, engine: eng, broker: b, journal: j, metrics: m}, nil
}

// Close delivers queued reports before closing the journal and metrics
// sink they write to.
func (a *app) Close() error {
	a.engine.Close()
	a.metrics.Close()
	err := a.journal.Close()
	_ = a.log.Sync()
	return err
}

func buildFeed(cfg *config.Config) (feed, error) {
	switch cfg.Feed.Type {
	case "csv":
		return market.NewCSVFeed(cfg.Feed.Dir), nil
	case "memory":
		return market.NewMemoryFeed(), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Feed.Type)
	}
}

func buildJournal(cfg *config.Config) (journal.Journal, error) {
	var out journal.Multi
	if cfg.Journal.Type == "sqlite" || cfg.Journal.Type == "both" {
		db, err := openSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		out = append(out, db)
	}
	if cfg.Journal.Type == "csv" || cfg.Journal.Type == "both" {
		c, err := journal.NewCSV(cfg.Journal.CSVDir)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		out = append(out, c)
	}
	switch len(out) {
	case 0:
		return journal.Nop{}, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

func openSQLite(path string) (*journal.SQLite, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	return db, nil
}

func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var out notify.Multi
	nc := cfg.Notify
	if nc.Email != nil {
		e, err := notify.NewEmail(*nc.Email)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if nc.Telegram != nil {
		if nc.Telegram.Token == "" {
			return nil, errors.New("telegram: token missing, set " + config.EnvTelegramToken)
		}
		t, err := notify.NewTelegram(nc.Telegram.Token, nc.Telegram.ChatID, nc.Telegram.Endpoint)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if nc.WebhookURL != "" {
		out = append(out, notify.NewWebhook(nc.WebhookURL))
	}
	if len(out) == 0 {
		return notify.Nop{}, nil
	}
	return notify.MinSeverity{Min: notify.ParseSeverity(nc.MinSeverity), Next: out}, nil
}

// buildMetrics falls back to a no-op sink when InfluxDB is unreachable;
// metrics never stop trading.
func buildMetrics(ctx context.Context, cfg *config.Config, log *zap.Logger) metrics.Sink {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	m, err := metrics.NewInflux(ctx, cfg.Metrics.Influx)
	if err != nil {
		log.Warn("metrics disabled", zap.String("url", cfg.Metrics.Influx.URL), zap.Error(err))
		return metrics.Nop{}
	}
	return m
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return nil
}
