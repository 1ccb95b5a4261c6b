package source

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

// PerformanceSource reports CPU, memory and disk usage of the host, and
// how long it has been up.
type PerformanceSource struct {
	diskPath  string
	cpuWindow time.Duration

	cpuPercent    func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	uptime        func(ctx context.Context) (uint64, error)
	bootTime      func(ctx context.Context) (uint64, error)
}

// NewPerformanceSource measures disk usage of the filesystem holding
// diskPath. CPU usage is averaged over cpuWindow.
func NewPerformanceSource(diskPath string, cpuWindow time.Duration) *PerformanceSource {
	if diskPath == "" {
		diskPath = "/"
	}
	return &PerformanceSource{
		diskPath:      diskPath,
		cpuWindow:     cpuWindow,
		cpuPercent:    cpu.PercentWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		diskUsage:     disk.UsageWithContext,
		uptime:        host.UptimeWithContext,
		bootTime:      host.BootTimeWithContext,
	}
}

func (s *PerformanceSource) Category() models.Category {
	return models.Performance
}

func (s *PerformanceSource) Sample(ctx context.Context) models.MetricSet {
	metrics := make(map[string]models.Value, len(models.PerformanceFields))

	if values, err := s.cpuPercent(ctx, s.cpuWindow, false); err != nil {
		metrics["cpu_percent"] = models.Unavailable(err.Error())
	} else if len(values) == 0 {
		metrics["cpu_percent"] = models.Unavailable("no cpu samples")
	} else {
		metrics["cpu_percent"] = models.Number(round(clampPercent(values[0]), 2))
	}

	if vm, err := s.virtualMemory(ctx); err != nil {
		reason := models.Unavailable(err.Error())
		metrics["ram_percent"] = reason
		metrics["ram_used_mb"] = reason
		metrics["ram_total_mb"] = reason
	} else {
		metrics["ram_percent"] = models.Number(round(percent(float64(vm.Used), float64(vm.Total)), 2))
		metrics["ram_used_mb"] = models.Number(round(float64(vm.Used)/mebibyte, 2))
		metrics["ram_total_mb"] = models.Number(round(float64(vm.Total)/mebibyte, 2))
	}

	if usage, err := s.diskUsage(ctx, s.diskPath); err != nil {
		reason := models.Unavailable(err.Error())
		metrics["disk_percent"] = reason
		metrics["disk_used_gb"] = reason
		metrics["disk_total_gb"] = reason
	} else {
		metrics["disk_percent"] = models.Number(round(percent(float64(usage.Used), float64(usage.Total)), 2))
		metrics["disk_used_gb"] = models.Number(round(float64(usage.Used)/gibibyte, 2))
		metrics["disk_total_gb"] = models.Number(round(float64(usage.Total)/gibibyte, 2))
	}

	if up, err := s.uptime(ctx); err != nil {
		metrics["uptime_seconds"] = models.Unavailable(err.Error())
	} else {
		metrics["uptime_seconds"] = models.Number(float64(up))
	}

	// Absolute boot timestamp, so the collector can compute uptime itself
	if boot, err := s.bootTime(ctx); err != nil {
		metrics["boot_time_seconds"] = models.Unavailable(err.Error())
	} else {
		metrics["boot_time_seconds"] = models.Number(float64(boot))
	}

	return models.NewMetricSet(models.Performance, metrics)
}
