// Package sysmetrics samples process-level resource usage into the
// Prometheus registry on a fixed interval.
package sysmetrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Sampler periodically refreshes CPU, memory, and goroutine gauges.
type Sampler struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	cpuPercent prometheus.Gauge
	procCPU    prometheus.Gauge
	heapBytes  prometheus.Gauge
	rssBytes   prometheus.Gauge
	goroutines prometheus.Gauge

	// smoothed is an exponential moving average of system CPU, to
	// avoid spikes from single samples.
	smoothed float64
}

// NewSampler builds a Sampler publishing into the default Prometheus
// registry.
func NewSampler(interval time.Duration, logger *zap.Logger) *Sampler {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Sampler{
		interval: interval,
		logger:   logger,
		proc:     proc,
		cpuPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wampgo_system_cpu_percent",
			Help: "Smoothed system-wide CPU utilisation",
		}),
		procCPU: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wampgo_process_cpu_percent",
			Help: "CPU utilisation of the router process",
		}),
		heapBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wampgo_heap_alloc_bytes",
			Help: "Go heap bytes currently allocated",
		}),
		rssBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wampgo_process_rss_bytes",
			Help: "Resident set size of the router process",
		}),
		goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wampgo_goroutines",
			Help: "Number of live goroutines",
		}),
	}
}

// Run samples until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.heapBytes.Set(float64(mem.HeapAlloc))
	s.goroutines.Set(float64(runtime.NumGoroutine()))

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		alpha := 0.3
		if s.smoothed == 0 {
			s.smoothed = percents[0]
		} else {
			s.smoothed = alpha*percents[0] + (1-alpha)*s.smoothed
		}
		s.cpuPercent.Set(s.smoothed)
	}

	if s.proc != nil {
		if pcpu, err := s.proc.CPUPercent(); err == nil {
			s.procCPU.Set(pcpu)
		}
		if info, err := s.proc.MemoryInfo(); err == nil && info != nil {
			s.rssBytes.Set(float64(info.RSS))
		}
	} else if s.logger != nil {
		s.logger.Debug("process handle unavailable, skipping process metrics")
	}
}
