package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProcessStats is a point-in-time view of a backend process.
type ProcessStats struct {
	PID int

	CPUPercent float64
	CPUTotal   time.Duration

	MemoryRSSBytes uint64
	PeakRSSBytes   uint64

	// OutputBytes is the current size of the output file, polled each
	// sample.
	OutputBytes int64

	StartedAt   time.Time
	Duration    time.Duration
	LastUpdated time.Time
}

// ProcessMonitor samples CPU, memory and output growth for a running
// backend process on a fixed interval. Linux reads /proc; elsewhere
// only the output size and timing are tracked.
type ProcessMonitor struct {
	pid        int
	outputPath string
	startedAt  time.Time
	interval   time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	lastCPUTime   time.Duration
	lastCheckTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProcessMonitor(pid int, outputPath string) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:        pid,
		outputPath: outputPath,
		startedAt:  time.Now(),
		interval:   time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	pm.lastCheckTime = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.loop()
}

func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) loop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.sample()
	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if pm.outputPath != "" {
		if fi, err := os.Stat(pm.outputPath); err == nil {
			pm.stats.OutputBytes = fi.Size()
		}
	}

	if runtime.GOOS == "linux" {
		pm.sampleLinux(now)
	}
}

// sampleLinux reads utime/stime from /proc/[pid]/stat and resident set
// size from /proc/[pid]/statm. Read errors mean the process exited and
// the previous sample stands.
func (pm *ProcessMonitor) sampleLinux(now time.Time) {
	statData, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pm.pid))
	if err != nil {
		return
	}

	// Fields after the parenthesised command name: utime is index 11,
	// stime index 12, both in clock ticks.
	statStr := string(statData)
	commEnd := strings.LastIndex(statStr, ")")
	if commEnd == -1 {
		return
	}
	fields := strings.Fields(statStr[commEnd+2:])
	if len(fields) < 13 {
		return
	}

	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)

	const clockTicksHz = 100
	cpuTotal := time.Duration(utime+stime) * (time.Second / clockTicksHz)
	pm.stats.CPUTotal = cpuTotal

	elapsed := now.Sub(pm.lastCheckTime)
	if elapsed > 0 && pm.lastCPUTime > 0 {
		pm.stats.CPUPercent = float64(cpuTotal-pm.lastCPUTime) / float64(elapsed) * 100.0
	}
	pm.lastCPUTime = cpuTotal
	pm.lastCheckTime = now

	statmData, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pm.pid))
	if err != nil {
		return
	}
	statmFields := strings.Fields(string(statmData))
	if len(statmFields) >= 2 {
		rss, _ := strconv.ParseUint(statmFields[1], 10, 64)
		pm.stats.MemoryRSSBytes = rss * uint64(os.Getpagesize())
		if pm.stats.MemoryRSSBytes > pm.stats.PeakRSSBytes {
			pm.stats.PeakRSSBytes = pm.stats.MemoryRSSBytes
		}
	}
}
