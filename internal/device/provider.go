package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Telemetry captures a device snapshot. Implementations never fail the
// whole capture because a single metric is unavailable.
type Telemetry interface {
	Snapshot(ctx context.Context) Snapshot
}

// ProviderOptions tune how the provider reads the host.
type ProviderOptions struct {
	// StoragePath is the directory whose filesystem is measured for
	// free space. Defaults to the working directory's filesystem.
	StoragePath string

	// BenchmarkOverride, when > 0, replaces the derived benchmark score.
	BenchmarkOverride float64
}

// Provider reads live host telemetry via gopsutil and the battery
// library. It is safe for concurrent use; the benchmark score is
// computed once and reused for the process lifetime.
type Provider struct {
	logger *slog.Logger
	opts   ProviderOptions

	benchmark float64
}

// NewProvider builds a provider and derives the benchmark score up
// front so repeated snapshots stay cheap.
func NewProvider(logger *slog.Logger, opts ProviderOptions) *Provider {
	if opts.StoragePath == "" {
		opts.StoragePath = "."
	}
	p := &Provider{
		logger: logger.With("component", "device"),
		opts:   opts,
	}
	p.benchmark = p.deriveBenchmark(context.Background())
	return p
}

// Snapshot reads all metrics, substituting conservative defaults for any
// that cannot be read on this host.
func (p *Provider) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		CapturedAt: time.Now(),

		// Desktop defaults: mains powered, no throttling.
		BatteryLevel: 1.0,
		Charging:     true,
		Thermal:      ThermalNormal,

		BenchmarkScore: p.benchmark,
	}

	p.readBattery(&snap)
	p.readThermal(ctx, &snap)
	p.readMemory(ctx, &snap)
	p.readStorage(ctx, &snap)
	p.readCPU(ctx, &snap)

	return snap
}

func (p *Provider) readBattery(snap *Snapshot) {
	batteries, err := battery.GetAll()
	if err != nil {
		// Partial errors still return readings; anything else means we
		// cannot tell, so assume half charge and discharging.
		if _, partial := err.(battery.Errors); !partial {
			p.logger.Debug("battery read failed", "error", err)
			snap.BatteryLevel = 0.5
			snap.Charging = false
			return
		}
	}
	if len(batteries) == 0 {
		// No battery at all: desktop or server, keep mains defaults.
		return
	}

	b := batteries[0]
	if b.Full > 0 {
		snap.BatteryLevel = b.Current / b.Full
		if snap.BatteryLevel > 1 {
			snap.BatteryLevel = 1
		}
	}
	snap.Charging = b.State.Raw == battery.Charging || b.State.Raw == battery.Full
}

func (p *Provider) readThermal(ctx context.Context, snap *Snapshot) {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(temps) == 0 {
		return
	}

	var max float64
	for _, t := range temps {
		if t.Temperature > max {
			max = t.Temperature
		}
	}
	snap.TemperatureC = max
	snap.Thermal = thermalFromTemperature(max)
}

func thermalFromTemperature(celsius float64) ThermalLevel {
	switch {
	case celsius < 60:
		return ThermalNormal
	case celsius < 70:
		return ThermalLight
	case celsius < 80:
		return ThermalModerate
	case celsius < 90:
		return ThermalSevere
	case celsius < 100:
		return ThermalCritical
	default:
		return ThermalEmergency
	}
}

// Fallbacks for hosts where a gopsutil read fails. Mid-tier values,
// like the half-charge battery fallback: a failed read must not report
// an exhausted resource.
const (
	fallbackMemoryAvailable  = 2 << 30
	fallbackStorageAvailable = 16 << 30
)

func (p *Provider) readMemory(ctx context.Context, snap *Snapshot) {
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		p.logger.Debug("memory read failed", "error", err)
		snap.MemoryAvailable = fallbackMemoryAvailable
		return
	}
	snap.MemoryTotal = memInfo.Total
	snap.MemoryUsed = memInfo.Used
	snap.MemoryAvailable = memInfo.Available
}

func (p *Provider) readStorage(ctx context.Context, snap *Snapshot) {
	diskInfo, err := disk.UsageWithContext(ctx, p.opts.StoragePath)
	if err != nil {
		p.logger.Debug("storage read failed", "path", p.opts.StoragePath, "error", err)
		snap.StorageAvailable = fallbackStorageAvailable
		return
	}
	snap.StorageTotal = diskInfo.Total
	snap.StorageUsed = diskInfo.Used
	snap.StorageAvailable = diskInfo.Free
}

func (p *Provider) readCPU(ctx context.Context, snap *Snapshot) {
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = counts
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snap.CPUFrequencyMHz = infos[0].Mhz
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUUsagePercent = percents[0]
	}
}

// deriveBenchmark estimates raw processing throughput from core count
// and clock speed. Crude, but stable across snapshots and good enough
// to tier devices; deployments with a measured score set the override.
func (p *Provider) deriveBenchmark(ctx context.Context) float64 {
	if p.opts.BenchmarkOverride > 0 {
		if p.opts.BenchmarkOverride > 100 {
			return 100
		}
		return p.opts.BenchmarkOverride
	}

	cores := 4
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil && counts > 0 {
		cores = counts
	}

	freqMHz := 2000.0
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
		freqMHz = infos[0].Mhz
	}

	score := float64(cores)*6 + freqMHz/100
	if score > 100 {
		score = 100
	}
	return score
}
