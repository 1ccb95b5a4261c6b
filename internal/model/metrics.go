// Package models defines the data structures exchanged between the agent
// and the collector.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Category names one family of metrics. Each category is produced by
// exactly one metric source.
type Category string

const (
	System      Category = "system"
	Performance Category = "performance"
	Entities    Category = "entities"
	Security    Category = "security"
	Database    Category = "database"
	Backups     Category = "backups"
)

// Categories lists every category in payload order.
var Categories = []Category{System, Performance, Entities, Security, Database, Backups}

// Rank returns the position of c in payload order. Unknown categories
// sort last.
func (c Category) Rank() int {
	for i, known := range Categories {
		if known == c {
			return i
		}
	}
	return len(Categories)
}

var (
	// PerformanceFields are the metrics reported by the performance source.
	PerformanceFields = []string{
		"cpu_percent",
		"ram_percent",
		"ram_used_mb",
		"ram_total_mb",
		"disk_percent",
		"disk_used_gb",
		"disk_total_gb",
		"uptime_seconds",
		"boot_time_seconds",
	}

	// EntityFields are the metrics reported by the entity source.
	EntityFields = []string{
		"total_entities",
		"unavailable_entities",
		"unavailable_percent",
		"automation_count",
		"integration_count",
	}

	// SecurityFields are the metrics reported by the security source.
	SecurityFields = []string{
		"ssl_enabled",
		"cert_expiry_days",
		"cert_issuer",
		"self_signed",
	}

	// DatabaseFields are the metrics reported by the database source.
	DatabaseFields = []string{
		"db_size_mb",
		"recorder_table_size_mb",
		"last_purge_date",
	}

	// SystemFields are the metrics reported by the system source.
	SystemFields = []string{
		"core_version",
		"platform",
		"machine",
		"cpu_model",
		"go_version",
		"hostname",
	}

	// BackupFields are the metrics reported by the backup source.
	BackupFields = []string{
		"backup_count",
		"last_backup_date",
		"last_backup_age_hours",
		"last_backup_age_days",
		"oldest_backup_date",
		"total_backup_size_mb",
	}
)

// Fields returns the metric names a category always reports.
func (c Category) Fields() []string {
	switch c {
	case System:
		return SystemFields
	case Performance:
		return PerformanceFields
	case Entities:
		return EntityFields
	case Security:
		return SecurityFields
	case Database:
		return DatabaseFields
	case Backups:
		return BackupFields
	default:
		return nil
	}
}

// MetricSet is the immutable output of one metric source.
type MetricSet struct {
	category Category
	metrics  map[string]Value
	err      string
	details  []EntityDetail
}

// NewMetricSet copies metrics into a new set.
func NewMetricSet(category Category, metrics map[string]Value) MetricSet {
	copied := make(map[string]Value, len(metrics))
	for name, value := range metrics {
		copied[name] = value
	}
	return MetricSet{category: category, metrics: copied}
}

// UnavailableSet reports every field of category as unavailable for the
// same reason. Used when a whole source cannot run.
func UnavailableSet(category Category, reason string) MetricSet {
	metrics := make(map[string]Value, len(category.Fields()))
	for _, name := range category.Fields() {
		metrics[name] = Unavailable(reason)
	}
	return MetricSet{category: category, metrics: metrics, err: reason}
}

// WithDetails returns a copy of s carrying entity details.
func (s MetricSet) WithDetails(details []EntityDetail) MetricSet {
	out := NewMetricSet(s.category, s.metrics)
	out.err = s.err
	if len(details) > 0 {
		out.details = append([]EntityDetail(nil), details...)
	}
	return out
}

func (s MetricSet) Category() Category {
	return s.category
}

// Err is the reason the whole category failed, empty when the source ran.
func (s MetricSet) Err() string {
	return s.err
}

// Get returns the value stored under name.
func (s MetricSet) Get(name string) (Value, bool) {
	v, ok := s.metrics[name]
	return v, ok
}

// Len returns the number of metrics in the set.
func (s MetricSet) Len() int {
	return len(s.metrics)
}

// Names returns metric names in sorted order.
func (s MetricSet) Names() []string {
	names := make([]string, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics returns a copy of the metric map.
func (s MetricSet) Metrics() map[string]Value {
	out := make(map[string]Value, len(s.metrics))
	for name, value := range s.metrics {
		out[name] = value
	}
	return out
}

// Details returns a copy of the attached entity details.
func (s MetricSet) Details() []EntityDetail {
	if len(s.details) == 0 {
		return nil
	}
	return append([]EntityDetail(nil), s.details...)
}

// UnavailableCount returns how many metrics in the set are unavailable.
func (s MetricSet) UnavailableCount() int {
	n := 0
	for _, v := range s.metrics {
		if !v.Available() {
			n++
		}
	}
	return n
}

type metricSetWire struct {
	Category Category         `json:"category" cbor:"category"`
	Metrics  map[string]Value `json:"metrics" cbor:"metrics"`
	Error    string           `json:"error,omitempty" cbor:"error,omitempty"`
	Details  []EntityDetail   `json:"details,omitempty" cbor:"details,omitempty"`
}

func (s MetricSet) wire() metricSetWire {
	metrics := s.metrics
	if metrics == nil {
		metrics = map[string]Value{}
	}
	return metricSetWire{Category: s.category, Metrics: metrics, Error: s.err, Details: s.details}
}

func (s *MetricSet) fromWire(w metricSetWire) error {
	if w.Category == "" {
		return fmt.Errorf("metric set without category")
	}
	*s = NewMetricSet(w.Category, w.Metrics)
	s.err = w.Error
	if len(w.Details) > 0 {
		s.details = w.Details
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s MetricSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *MetricSet) UnmarshalJSON(data []byte) error {
	var w metricSetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return s.fromWire(w)
}

// MarshalCBOR implements cbor.Marshaler.
func (s MetricSet) MarshalCBOR() ([]byte, error) {
	enc, err := cborEncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(s.wire())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *MetricSet) UnmarshalCBOR(data []byte) error {
	dec, err := cborDecMode()
	if err != nil {
		return err
	}
	var w metricSetWire
	if err := dec.Unmarshal(data, &w); err != nil {
		return err
	}
	return s.fromWire(w)
}
