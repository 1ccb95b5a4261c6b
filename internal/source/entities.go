package source

import (
	"context"
	"strings"
	"time"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

var unavailableStates = map[string]bool{
	"unavailable": true,
	"unknown":     true,
}

// EntitySource counts entities and describes the ones that are currently
// unavailable.
type EntitySource struct {
	env hostenv.Environment
	now func() time.Time
}

func NewEntitySource(env hostenv.Environment) *EntitySource {
	return &EntitySource{env: env, now: time.Now}
}

func (s *EntitySource) Category() models.Category {
	return models.Entities
}

func (s *EntitySource) Sample(ctx context.Context) models.MetricSet {
	if set, ok := requireEnv(s.env, models.Entities); !ok {
		return set
	}
	states, err := s.env.States(ctx)
	if err != nil {
		return models.UnavailableSet(models.Entities, err.Error())
	}

	now := s.now().UTC()
	total := len(states)
	automations := 0
	var details []models.EntityDetail
	for _, st := range states {
		if st.Domain() == "automation" {
			automations++
		}
		if unavailableStates[st.State] {
			details = append(details, describe(st, now))
		}
	}

	metrics := map[string]models.Value{
		"total_entities":       models.Int(int64(total)),
		"unavailable_entities": models.Int(int64(len(details))),
		"unavailable_percent":  models.Number(round(percent(float64(len(details)), float64(total)), 2)),
		"automation_count":     models.Int(int64(automations)),
	}

	if cfg, err := s.env.Config(ctx); err != nil {
		metrics["integration_count"] = models.Unavailable(err.Error())
	} else {
		metrics["integration_count"] = models.Int(int64(countIntegrations(cfg.Components, states)))
	}

	return models.NewMetricSet(models.Entities, metrics).WithDetails(details)
}

// countIntegrations counts top level components. Platform entries such as
// "sensor.template" belong to their integration and are not counted twice.
func countIntegrations(components []string, states []hostenv.State) int {
	seen := make(map[string]struct{})
	for _, c := range components {
		if c == "" || strings.Contains(c, ".") {
			continue
		}
		seen[c] = struct{}{}
	}
	if len(seen) > 0 {
		return len(seen)
	}
	for _, st := range states {
		if integration := st.Attribute("integration"); integration != "" {
			seen[integration] = struct{}{}
		}
	}
	return len(seen)
}

func describe(st hostenv.State, now time.Time) models.EntityDetail {
	detail := models.EntityDetail{
		EntityID:     st.EntityID,
		FriendlyName: st.Attribute("friendly_name"),
		Domain:       st.Domain(),
		Platform:     platformOf(st),
		State:        st.State,
	}
	if detail.FriendlyName == "" {
		detail.FriendlyName = st.EntityID
	}
	if !st.LastChanged.IsZero() {
		changed := st.LastChanged.UTC()
		detail.LastChanged = &changed
		if d := now.Sub(changed); d > 0 {
			detail.DurationSeconds = int64(d / time.Second)
		}
	}
	return detail
}

func platformOf(st hostenv.State) string {
	if st.Platform != "" {
		return st.Platform
	}
	if p := st.Attribute("integration"); p != "" {
		return p
	}
	if p := st.Attribute("platform"); p != "" {
		return p
	}
	return "unknown"
}
