// Package audit records payloads accepted by the collector.
//
// Events fan out from one source channel to file and HTTP subscribers.
// Publishing never blocks the request path: events are dropped when a
// channel is full.
package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/fleetagent/internal/config"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

const bufferSize = 64

// AuditLogger is an interface for logging audit events.
type AuditLogger interface {
	Log(event models.AuditEvent)
}

type auditLogger struct {
	eventChan chan<- models.AuditEvent
	logger    *zap.SugaredLogger
}

// NewAuditLogger creates a new AuditLogger that sends events to the provided channel.
func NewAuditLogger(eventChan chan<- models.AuditEvent, logger *zap.SugaredLogger) AuditLogger {
	return &auditLogger{eventChan: eventChan, logger: logger}
}

func (a *auditLogger) Log(event models.AuditEvent) {
	select {
	case a.eventChan <- event:
	default:
		a.logger.Warnw("audit event dropped, channel is full", "instance_id", event.InstanceID)
	}
}

// Broadcaster copies every event from source to all subscriber channels,
// dropping it for subscribers that are not ready. Subscriber channels are
// closed once source is closed and drained.
func Broadcaster(source <-chan models.AuditEvent, logger *zap.SugaredLogger, subs ...chan<- models.AuditEvent) {
	defer func() {
		for _, sub := range subs {
			close(sub)
		}
	}()
	for evt := range source {
		for _, subChan := range subs {
			select {
			case subChan <- evt:
			default:
				logger.Warnw("audit event dropped for blocked subscriber", "instance_id", evt.InstanceID)
			}
		}
	}
}

// FileSubscriber appends events to path as JSON lines until events is closed.
func FileSubscriber(events <-chan models.AuditEvent, path string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorw("audit event encoding failed", "error", err)
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Errorw("audit file not writable", "path", path, "error", err)
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			logger.Errorw("audit file write failed", "path", path, "error", err)
		}
		f.Close()
	}
}

// URLSubscriber posts events to url until events is closed.
func URLSubscriber(events <-chan models.AuditEvent, client *http.Client, url string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorw("audit event encoding failed", "error", err)
			continue
		}
		resp, err := client.Post(url, "application/json", bytes.NewReader(data))
		if err != nil {
			logger.Errorw("audit event not sent", "url", url, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			logger.Warnw("audit endpoint rejected event", "url", url, "status", resp.StatusCode)
		}
	}
}

// Start wires the subscribers configured in cfg. It returns a nil logger
// when no destination is configured. stop flushes pending events and
// waits for the subscribers to exit.
func Start(cfg config.ServerConfig, logger *zap.SugaredLogger) (auditor AuditLogger, stop func()) {
	var (
		subs    []chan<- models.AuditEvent
		wg      sync.WaitGroup
		subFunc []func()
	)
	if cfg.AuditFile != "" {
		ch := make(chan models.AuditEvent, bufferSize)
		subs = append(subs, ch)
		subFunc = append(subFunc, func() { FileSubscriber(ch, cfg.AuditFile, logger) })
	}
	if cfg.AuditURL != "" {
		ch := make(chan models.AuditEvent, bufferSize)
		subs = append(subs, ch)
		client := &http.Client{Timeout: 5 * time.Second}
		subFunc = append(subFunc, func() { URLSubscriber(ch, client, cfg.AuditURL, logger) })
	}
	if len(subs) == 0 {
		return nil, func() {}
	}

	source := make(chan models.AuditEvent, bufferSize)
	go Broadcaster(source, logger, subs...)
	for _, run := range subFunc {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}

	var once sync.Once
	return NewAuditLogger(source, logger), func() {
		once.Do(func() {
			close(source)
			wg.Wait()
		})
	}
}
