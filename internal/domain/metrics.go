package domain

import "time"

// MetricsSample is one point-in-time resource reading for an app's
// container. Samples are append-only; the console applies no retention.
type MetricsSample struct {
	AppID         string
	CPUPercent    float64
	MemoryMB      float64
	UptimeSeconds int64
	RequestCount  int64
	Timestamp     time.Time
}
