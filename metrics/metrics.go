// Package metrics exports per-cycle engine statistics.
package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// CycleStats summarizes one decision cycle.
type CycleStats struct {
	Time           time.Time
	Cycle          int64
	Duration       time.Duration
	DryRun         bool
	Symbols        int
	Signals        int
	Shadows        int
	Entries        int
	Exits          int
	Errors         int
	Equity         float64
	OpenPositions  int
	OpenRisk       float64
	RiskPct        float64
	DailyPnLPct    float64
	KillSwitch     bool
	CircuitBreaker bool
}

type Sink interface {
	RecordCycle(ctx context.Context, s CycleStats) error
	Close()
}

type Nop struct{}

func (Nop) RecordCycle(context.Context, CycleStats) error { return nil }
func (Nop) Close() {}

type InfluxConfig struct {
	URL    string `json:"url" yaml:"url"`
	Token  string `json:"-" yaml:"-"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
	Host   string `json:"host" yaml:"host"`
}

// Influx writes one "cycle" point per cycle.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	host   string
}

// NewInflux connects and checks server health.
func NewInflux(ctx context.Context, cfg InfluxConfig) (*Influx, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb health: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("influxdb not healthy: %+v", health)
	}

	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		host:   cfg.Host,
	}, nil
}

func (i *Influx) RecordCycle(ctx context.Context, s CycleStats) error {
	if err := i.write.WritePoint(ctx, Point(s, i.host)); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	return nil
}

func (i *Influx) Close() {
	i.client.Close()
}

// Point renders s as an InfluxDB point.
func Point(s CycleStats, host string) *write.Point {
	tags := map[string]string{
		"dry_run": fmt.Sprint(s.DryRun),
	}
	if host != "" {
		tags["host"] = host
	}
	return influxdb2.NewPoint(
		"cycle",
		tags,
		map[string]interface{}{
			"cycle":           s.Cycle,
			"duration_ms":     s.Duration.Milliseconds(),
			"symbols":         s.Symbols,
			"signals":         s.Signals,
			"shadows":         s.Shadows,
			"entries":         s.Entries,
			"exits":           s.Exits,
			"errors":          s.Errors,
			"equity":          s.Equity,
			"open_positions":  s.OpenPositions,
			"open_risk":       s.OpenRisk,
			"risk_pct":        s.RiskPct,
			"daily_pnl_pct":   s.DailyPnLPct,
			"kill_switch":     s.KillSwitch,
			"circuit_breaker": s.CircuitBreaker,
		},
		s.Time,
	)
}
