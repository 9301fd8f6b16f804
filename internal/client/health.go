package client

import (
	"context"
	"log/slog"
	"time"
)

// ConnectionState is the backend reachability seen by a HealthMonitor.
type ConnectionState string

const (
	ConnectionChecking     ConnectionState = "checking"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// DefaultHealthInterval is the pause between two health checks.
const DefaultHealthInterval = 10 * time.Second

// HealthStatus is one report of a HealthMonitor. Error is set when disconnected.
type HealthStatus struct {
	State     ConnectionState
	Error     string
	CheckedAt time.Time
}

// HealthMonitor checks GET /health on a fixed interval.
type HealthMonitor struct {
	client   *Client
	interval time.Duration
	onChange func(HealthStatus)
	logger   *slog.Logger
}

// NewHealthMonitor creates a monitor that reports each check to onChange.
// A non-positive interval falls back to DefaultHealthInterval.
func NewHealthMonitor(c *Client, interval time.Duration, onChange func(HealthStatus)) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if onChange == nil {
		onChange = func(HealthStatus) {}
	}
	return &HealthMonitor{
		client:   c,
		interval: interval,
		onChange: onChange,
		logger:   c.logger,
	}
}

// Run checks immediately and then on every tick until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Check runs a single health check and returns its result.
func (m *HealthMonitor) Check(ctx context.Context) HealthStatus {
	return m.check(ctx)
}

func (m *HealthMonitor) check(ctx context.Context) HealthStatus {
	m.onChange(HealthStatus{State: ConnectionChecking, CheckedAt: time.Now()})

	status := HealthStatus{State: ConnectionConnected}
	if err := m.client.Health(ctx); err != nil {
		if ctx.Err() != nil {
			return HealthStatus{State: ConnectionChecking, CheckedAt: time.Now()}
		}
		m.logger.Warn("Backend health check failed",
			slog.String("url", m.client.BaseURL()),
			slog.Any("error", err),
		)
		status = HealthStatus{State: ConnectionDisconnected, Error: err.Error()}
	}
	status.CheckedAt = time.Now()

	m.onChange(status)
	return status
}
