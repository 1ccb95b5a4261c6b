package logs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const StateUnavailable = "unavailable"

// SensorState is the latest reading of the log sensor.
type SensorState struct {
	State         string    `json:"state"`
	TotalLines    int       `json:"total_lines"`
	ReturnedLines int       `json:"returned_lines"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Sensor polls the log service and keeps the latest result.
type Sensor struct {
	service  *Service
	interval time.Duration
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	state SensorState
}

func NewSensor(service *Service, interval time.Duration, logger *zap.SugaredLogger) *Sensor {
	return &Sensor{
		service:  service,
		interval: interval,
		logger:   logger,
		state:    SensorState{State: StateUnavailable},
	}
}

// Refresh reads the log once and stores the result.
func (s *Sensor) Refresh() SensorState {
	next := SensorState{UpdatedAt: time.Now().UTC()}
	result, err := s.service.GetLogs(s.service.DefaultLines())
	if err != nil {
		next.State = StateUnavailable
		next.Error = err.Error()
		s.logger.Debugw("log sensor unavailable", "error", err)
	} else {
		next.State = strconv.Itoa(result.ReturnedLines)
		next.TotalLines = result.TotalLines
		next.ReturnedLines = result.ReturnedLines
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return next
}

// Run refreshes immediately and then every interval until ctx is done.
func (s *Sensor) Run(ctx context.Context) error {
	s.Refresh()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Refresh()
		}
	}
}

func (s *Sensor) State() SensorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
