package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/convertd/convertd/internal/capability"
	"github.com/convertd/convertd/internal/device"
	"github.com/convertd/convertd/internal/events"
)

// MonitorOptions configure the periodic device check.
type MonitorOptions struct {
	// Schedule is a cron expression; "@every 30s" style descriptors are
	// accepted.
	Schedule string

	// Retention is how long terminal sessions are kept before the
	// janitor evicts them. Zero disables eviction.
	Retention time.Duration
}

// Monitor re-evaluates device conditions on a schedule and emits
// advisory DEVICE_WARNING events when they worsen. It never cancels or
// pauses sessions itself. It also evicts terminal sessions older than
// the retention window.
type Monitor struct {
	registry  *Registry
	telemetry device.Telemetry
	bus       *events.Bus
	logger    *slog.Logger
	opts      MonitorOptions

	schedule cron.Schedule
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewMonitor(
	registry *Registry,
	telemetry device.Telemetry,
	bus *events.Bus,
	logger *slog.Logger,
	opts MonitorOptions,
) (*Monitor, error) {
	if opts.Schedule == "" {
		opts.Schedule = "@every 30s"
	}
	schedule, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		registry:  registry,
		telemetry: telemetry,
		bus:       bus,
		logger:    logger.With("component", "monitor"),
		opts:      opts,
		schedule:  schedule,
	}, nil
}

// Start launches the monitoring loop. Stop with Stop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		for {
			next := m.schedule.Next(time.Now())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
				m.Tick(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// Tick runs one monitoring cycle: take a snapshot, warn about worsening
// conditions while sessions are active, and sweep expired terminal
// sessions.
func (m *Monitor) Tick(ctx context.Context) {
	snap := m.telemetry.Snapshot(ctx)

	if m.registry.CountActive() > 0 {
		m.advise(snap)
	}
	m.sweep()
}

func (m *Monitor) advise(snap device.Snapshot) {
	if capability.ShouldPauseForBattery(snap) {
		m.logger.Warn("battery low with active sessions",
			"battery_level", snap.BatteryLevel, "charging", snap.Charging)
		m.bus.Publish(events.Event{
			Type: events.TypeDeviceWarning,
			Payload: events.DeviceWarningPayload{
				Reason:         "battery critically low",
				Suggestion:     "pause active conversions or plug in",
				RecommendPause: true,
			},
		})
	}

	if capability.ShouldPauseForThermal(snap) {
		m.logger.Warn("device overheating with active sessions",
			"thermal", snap.Thermal.String(), "temperature_c", snap.TemperatureC)
		m.bus.Publish(events.Event{
			Type: events.TypeDeviceWarning,
			Payload: events.DeviceWarningPayload{
				Reason:         "device temperature in the " + snap.Thermal.String() + " range",
				Suggestion:     "pause active conversions until the device cools",
				RecommendPause: true,
			},
		})
	}

	if advice := capability.StorageAdvice(snap); advice.Severity != capability.SeverityOK {
		m.bus.Publish(events.Event{
			Type: events.TypeDeviceWarning,
			Payload: events.DeviceWarningPayload{
				Reason:     "storage running low",
				Suggestion: advice.Suggestion,
			},
		})
	}
}

// sweep evicts terminal sessions older than the retention window.
// Non-terminal sessions are never evicted regardless of age.
func (m *Monitor) sweep() {
	if m.opts.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.opts.Retention)
	for _, s := range m.registry.List() {
		if s.State.IsTerminal() && s.UpdatedAt.Before(cutoff) {
			m.registry.Delete(s.ID)
			m.logger.Debug("expired session evicted", "session_id", s.ID, "state", s.State.String())
		}
	}
}
