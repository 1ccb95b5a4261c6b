// Package logs serves the tail of the Home Assistant log file on demand.
package logs

import (
	"bufio"
	"errors"
	"io"
	"os"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

// Service reads the last lines of one log file. It never writes.
type Service struct {
	path         string
	maxLines     int
	defaultLines int
}

func NewService(path string, maxLines, defaultLines int) *Service {
	return &Service{path: path, maxLines: maxLines, defaultLines: defaultLines}
}

// DefaultLines is the line count used when a caller does not ask for one.
func (s *Service) DefaultLines() int {
	return s.defaultLines
}

// Clamp bounds lines to [1, max].
func (s *Service) Clamp(lines int) int {
	switch {
	case lines < 1:
		return 1
	case lines > s.maxLines:
		return s.maxLines
	default:
		return lines
	}
}

// GetLogs returns the last lines of the file, clamped to [1, max], with
// line endings preserved. A missing or unreadable file yields a
// *LogAccessError.
func (s *Service) GetLogs(lines int) (models.LogResult, error) {
	if s.path == "" {
		return models.LogResult{}, &agenterrors.LogAccessError{Path: s.path, Err: errors.New("no log file configured")}
	}
	f, err := os.Open(s.path)
	if err != nil {
		return models.LogResult{}, &agenterrors.LogAccessError{Path: s.path, Err: err}
	}
	defer f.Close()

	n := s.Clamp(lines)
	ring := make([]string, n)
	total := 0

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			ring[total%n] = line
			total++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.LogResult{}, &agenterrors.LogAccessError{Path: s.path, Err: err}
		}
	}

	returned := min(total, n)
	buf := make([]byte, 0, returned*80)
	for i := total - returned; i < total; i++ {
		buf = append(buf, ring[i%n]...)
	}
	return models.LogResult{
		Logs:          string(buf),
		TotalLines:    total,
		ReturnedLines: returned,
	}, nil
}
