package agent

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/xXMohitXx/Dead-Simple-Infra/internal/agent/docker"
	"github.com/xXMohitXx/Dead-Simple-Infra/internal/protocol"
)

// StatsSource takes one-shot resource readings for a container.
type StatsSource interface {
	Stats(ctx context.Context, containerID string) (docker.StatsSnapshot, error)
}

// Sampler periodically reports resource usage for every tracked
// container. One failing container never blocks the others.
type Sampler struct {
	stats    StatsSource
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	sender Sender
}

// NewSampler wires a metrics sampler.
func NewSampler(stats StatsSource, sender Sender, logger *slog.Logger, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{stats: stats, sender: sender, logger: logger, interval: interval}
}

// SetSender swaps the event sink.
func (s *Sampler) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Sampler) send(msg protocol.Message) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Send(msg)
}

// Run samples until ctx is cancelled. tracked is consulted every tick.
func (s *Sampler) Run(ctx context.Context, tracked func() []TrackedContainer) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleAll(ctx, tracked())
		}
	}
}

func (s *Sampler) sampleAll(ctx context.Context, containers []TrackedContainer) {
	for _, tc := range containers {
		snapshot, err := s.stats.Stats(ctx, tc.ContainerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("sample container", "app_id", tc.AppID, "container_id", tc.ContainerID, "error", err)
			continue
		}
		sample := protocol.MetricsData{
			AppID:      tc.AppID,
			CPUPercent: cpuPercent(snapshot),
			MemoryMB:   snapshot.MemoryBytes / 1024 / 1024,
		}
		if err := s.send(protocol.Message{Type: protocol.TypeMetrics, Data: &sample}); err != nil {
			s.logger.Warn("send metrics", "app_id", tc.AppID, "error", err)
		}
	}
}

// cpuPercent derives a usage percentage from raw counters, clamped to
// [0, 100]. A non-positive system delta yields zero.
func cpuPercent(snapshot docker.StatsSnapshot) float64 {
	if snapshot.SystemDelta <= 0 || snapshot.CPUDelta < 0 {
		return 0
	}
	cpus := snapshot.OnlineCPUs
	if cpus <= 0 {
		cpus = 1
	}
	percent := snapshot.CPUDelta / snapshot.SystemDelta * cpus * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
