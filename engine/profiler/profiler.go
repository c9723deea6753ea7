// Package profiler tracks frame rate, simulation tick cost and memory
// statistics for performance monitoring.
package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/hexfab/common"
)

// Profiler tracks frame rate, tick timing and memory statistics.
// Outputs stats to the engine logger once per update interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// Simulation tick costs observed since the last report.
	tickSamples int
	tickTotal   time.Duration
	tickMax     time.Duration
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
}

// RecordTick feeds one simulation tick's cost into the report window.
//
// Parameters:
//   - cost: the measured tick duration
func (p *Profiler) RecordTick(cost time.Duration) {
	p.tickSamples++
	p.tickTotal += cost
	if cost > p.tickMax {
		p.tickMax = cost
	}
}

// Tick should be called once per render frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, simulation tick cost, heap usage, allocation
// rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: bytes of live heap objects. Sys: total memory obtained from
	// the OS. TotalAlloc: cumulative allocation, tracks churn.
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses.
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	var tickAvg time.Duration
	if p.tickSamples > 0 {
		tickAvg = p.tickTotal / time.Duration(p.tickSamples)
	}

	common.Logger().Info("profiler",
		"fps", fps,
		"tick_avg", tickAvg,
		"tick_max", p.tickMax,
		"heap_mb", allocMB,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.tickSamples = 0
	p.tickTotal = 0
	p.tickMax = 0
	return true
}
