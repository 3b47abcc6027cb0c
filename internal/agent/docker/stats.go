package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// StatsSnapshot carries the raw counters needed to derive CPU and
// memory usage for one sample.
type StatsSnapshot struct {
	CPUDelta    float64
	SystemDelta float64
	OnlineCPUs  float64
	MemoryBytes float64
}

// Stats takes a one-shot reading of a container's resource counters.
func (c *Client) Stats(ctx context.Context, containerID string) (StatsSnapshot, error) {
	if strings.TrimSpace(containerID) == "" {
		return StatsSnapshot{}, fmt.Errorf("container id cannot be empty")
	}
	resp, err := c.inner.ContainerStats(ctx, containerID, false)
	if err != nil {
		if client.IsErrNotFound(err) {
			return StatsSnapshot{}, ErrNotFound
		}
		return StatsSnapshot{}, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return StatsSnapshot{}, fmt.Errorf("decode container stats: %w", err)
	}

	snapshot := StatsSnapshot{
		CPUDelta:    float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage),
		SystemDelta: float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage),
		OnlineCPUs:  float64(stats.CPUStats.OnlineCPUs),
		MemoryBytes: float64(stats.MemoryStats.Usage),
	}
	if snapshot.OnlineCPUs == 0 {
		snapshot.OnlineCPUs = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	return snapshot, nil
}
