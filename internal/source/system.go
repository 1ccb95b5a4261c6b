package source

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

// SystemSource reports static facts about the host and the installation.
type SystemSource struct {
	env      hostenv.Environment
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
	cpuInfo  func(ctx context.Context) ([]cpu.InfoStat, error)
}

func NewSystemSource(env hostenv.Environment) *SystemSource {
	return &SystemSource{
		env:      env,
		hostInfo: host.InfoWithContext,
		cpuInfo:  cpu.InfoWithContext,
	}
}

func (s *SystemSource) Category() models.Category {
	return models.System
}

func (s *SystemSource) Sample(ctx context.Context) models.MetricSet {
	metrics := map[string]models.Value{
		"go_version": models.String(runtime.Version()),
	}

	switch {
	case s.env == nil:
		metrics["core_version"] = models.Unavailable(errNoEnvironment.Error())
	default:
		if cfg, err := s.env.Config(ctx); err != nil {
			metrics["core_version"] = models.Unavailable(err.Error())
		} else {
			metrics["core_version"] = models.String(cfg.Version)
		}
	}

	machine := ""
	if info, err := s.hostInfo(ctx); err != nil {
		reason := models.Unavailable(err.Error())
		metrics["platform"] = reason
		metrics["machine"] = reason
		metrics["hostname"] = reason
	} else {
		machine = info.KernelArch
		metrics["platform"] = models.String(info.OS)
		metrics["machine"] = models.String(info.KernelArch)
		metrics["hostname"] = models.String(info.Hostname)
	}

	// Fall back to the architecture when the CPU model is not exposed,
	// as on most ARM boards.
	infos, err := s.cpuInfo(ctx)
	switch {
	case err == nil && len(infos) > 0 && infos[0].ModelName != "":
		metrics["cpu_model"] = models.String(infos[0].ModelName)
	case machine != "":
		metrics["cpu_model"] = models.String(machine)
	case err != nil:
		metrics["cpu_model"] = models.Unavailable(err.Error())
	default:
		metrics["cpu_model"] = models.Unavailable("cpu model not reported")
	}

	return models.NewMetricSet(models.System, metrics)
}
