package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-router/contract"
)

var _ contract.Worker = (*HealthMonitorWorker)(nil)

// HealthMonitorWorker periodically samples cpu and memory usage of the
// routing process. Purely observational, it never touches the delivery
// path.
type HealthMonitorWorker struct {
	log      *slog.Logger
	interval time.Duration
}

func NewHealthMonitorWorker(log *slog.Logger, interval time.Duration) *HealthMonitorWorker {
	return &HealthMonitorWorker{log: log, interval: interval}
}

func (w *HealthMonitorWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitor")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			w.log.Info("Routing process health", "cpu_percent", cpu, "ram_percent", ram)
		}
	}
}
