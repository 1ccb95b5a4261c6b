// Package hostenv reads the state of the monitored Home Assistant
// installation: entity states, core configuration and Supervisor backups.
package hostenv

import (
	"context"
	"strings"
	"time"
)

// State is the current state of one entity.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`

	// Platform is the integration that owns the entity, when an entity
	// registry was consulted. Empty otherwise.
	Platform string `json:"-"`
}

// Domain returns the part of the entity id before the first dot.
func (s State) Domain() string {
	domain, _, found := strings.Cut(s.EntityID, ".")
	if !found {
		return ""
	}
	return domain
}

// Attribute returns a string attribute, or "" when absent.
func (s State) Attribute(name string) string {
	v, ok := s.Attributes[name].(string)
	if !ok {
		return ""
	}
	return v
}

// Config is the core configuration of the installation.
type Config struct {
	Version     string   `json:"version"`
	ConfigDir   string   `json:"config_dir"`
	ExternalURL string   `json:"external_url"`
	Components  []string `json:"components"`
}

// HasComponent reports whether the named component is loaded.
func (c Config) HasComponent(name string) bool {
	for _, component := range c.Components {
		if component == name {
			return true
		}
	}
	return false
}

// Environment is the read-only view of the installation the metric
// sources depend on.
type Environment interface {
	States(ctx context.Context) ([]State, error)
	Config(ctx context.Context) (Config, error)
}

// Backup is one entry of the Supervisor backup list.
type Backup struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Date string `json:"date"`
	// Size as reported by the Supervisor
	Size float64 `json:"size"`
}

// BackupLister lists the backups of the installation.
type BackupLister interface {
	Backups(ctx context.Context) ([]Backup, error)
}

// Static is an Environment with fixed content.
type Static struct {
	StateList  []State
	CoreConfig Config
	Err        error
}

func (s *Static) States(ctx context.Context) ([]State, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]State(nil), s.StateList...), nil
}

func (s *Static) Config(ctx context.Context) (Config, error) {
	if s.Err != nil {
		return Config{}, s.Err
	}
	return s.CoreConfig, nil
}
