package workers

import (
	"context"
	"log/slog"
	goruntime "runtime"
	"time"
)

// ConnectionCounter reports how many client connections are live.
type ConnectionCounter interface {
	Count() int
}

// Snapshot is what the reporter logs on every tick.
type Snapshot struct {
	Connections int
	Goroutines  int
	AllocMemMb  uint64
	NumGC       uint32
	Uptime      time.Duration
}

// Reporter periodically logs a one-line snapshot of the process.
type Reporter struct {
	log         *slog.Logger
	connections ConnectionCounter
	interval    time.Duration
}

func NewReporter(log *slog.Logger, connections ConnectionCounter, interval time.Duration) Reporter {
	return Reporter{log: log, connections: connections, interval: interval}
}

// Run logs until ctx is canceled, then logs a last snapshot.
func (w Reporter) Run(ctx context.Context) error {
	startTime := time.Now()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.print(w.Snapshot(startTime))
			return nil
		case <-ticker.C:
			w.print(w.Snapshot(startTime))
		}
	}
}

func (w Reporter) Snapshot(startTime time.Time) Snapshot {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	return Snapshot{
		Connections: w.connections.Count(),
		Goroutines:  goruntime.NumGoroutine(),
		AllocMemMb:  mem.Alloc / 1024 / 1024,
		NumGC:       mem.NumGC,
		Uptime:      time.Since(startTime).Round(time.Second),
	}
}

func (w Reporter) print(s Snapshot) {
	w.log.Info("📊 Runtime stats",
		"uptime", s.Uptime.String(),
		"connections", s.Connections,
		"goroutines", s.Goroutines,
		"alloc_mb", s.AllocMemMb,
		"gc", s.NumGC)
}
