package workers

import (
	"context"
	"log/slog"
	"time"
	"whiteboard-relay/contract"
	"whiteboard-relay/domain"
)

// ProcessReader reports the usage of the current process.
type ProcessReader interface {
	Read() (domain.ProcessStats, error)
}

// StatsReporterWorker logs room and connection counts at a fixed interval,
// with process usage when probe is not nil.
type StatsReporterWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	probe    ProcessReader
	interval time.Duration
}

func NewStatsReporterWorker(log *slog.Logger, registry contract.IRegistry,
	probe ProcessReader, interval time.Duration) *StatsReporterWorker {
	return &StatsReporterWorker{
		log:      log,
		registry: registry,
		probe:    probe,
		interval: interval,
	}
}

func (w *StatsReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *StatsReporterWorker) report() {
	rooms, connections := w.registry.Stats()
	attrs := []any{"rooms", rooms, "connections", connections}

	if w.probe != nil {
		stats, err := w.probe.Read()
		if err != nil {
			w.log.Warn("Failed to collect self stats", "error", err)
		} else {
			attrs = append(attrs, "rss_bytes", stats.RSSBytes, "cpu_percent", stats.CPUPercent)
		}
	}
	w.log.Info("Relay stats", attrs...)
}
