// Package source samples the metric categories of one installation.
//
// Every category has one Source. Collect runs all of them concurrently,
// each under its own timeout, and never fails as a whole: a source that
// errors, panics or times out contributes a MetricSet marked unavailable.
package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

// Source produces the metrics of one category.
type Source interface {
	Category() models.Category
	Sample(ctx context.Context) models.MetricSet
}

// Collect samples every source concurrently and returns their sets in the
// order of sources.
func Collect(ctx context.Context, sources []Source, timeout time.Duration, logger *zap.SugaredLogger) []models.MetricSet {
	sets := make([]models.MetricSet, len(sources))

	// The group only bounds the fan-out; sources never return an error.
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			sets[i] = sampleOne(ctx, src, timeout, logger)
			return nil
		})
	}
	_ = g.Wait()
	return sets
}

func sampleOne(ctx context.Context, src Source, timeout time.Duration, logger *zap.SugaredLogger) models.MetricSet {
	category := src.Category()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan models.MetricSet, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("metric source panicked", "category", category, "panic", r)
				done <- models.UnavailableSet(category, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- src.Sample(sctx)
	}()

	select {
	case set := <-done:
		if set.Category() != category {
			set = models.UnavailableSet(category, "source returned wrong category")
		}
		if set.Err() != "" {
			logger.Warnw("metric source unavailable", "category", category, "reason", set.Err())
		}
		return set
	case <-sctx.Done():
		reason := "timeout"
		if ctx.Err() != nil {
			reason = "canceled"
		}
		logger.Warnw("metric source did not finish", "category", category, "reason", reason, "timeout", timeout)
		return models.UnavailableSet(category, reason)
	}
}

var errNoEnvironment = fmt.Errorf("home assistant not configured")

func requireEnv(env hostenv.Environment, category models.Category) (models.MetricSet, bool) {
	if env == nil {
		return models.UnavailableSet(category, errNoEnvironment.Error()), false
	}
	return models.MetricSet{}, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// percent returns part/whole*100 clamped to [0, 100], or 0 when whole is 0.
func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return clampPercent(part / whole * 100)
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

const (
	mebibyte = 1024 * 1024
	gibibyte = 1024 * 1024 * 1024
)
