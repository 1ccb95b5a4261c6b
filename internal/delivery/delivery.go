// Package delivery sends payloads to the collector.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/payload"
)

const (
	MetricsPath = "/api/metrics"
	HealthPath  = "/health"

	HeaderSignature   = "HashSHA256"
	HeaderIdempotency = "Idempotency-Key"

	maxResponseBody = 64 << 10
)

// Config controls how payloads are sent.
type Config struct {
	BackendURL  string
	Token       string
	SigningKey  string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Compress    bool
	Codec       payload.Codec
	UserAgent   string
}

// Attempt records one HTTP request of a delivery.
type Attempt struct {
	Number     int
	StatusCode int
	Kind       agenterrors.DeliveryKind
	Err        error
	// Wait is the backoff slept before this attempt
	Wait     time.Duration
	Duration time.Duration
}

// Outcome is the terminal result of Deliver.
type Outcome struct {
	Delivered bool
	Ack       string
	Attempts  []Attempt
	Err       error
}

// Retries returns the number of attempts after the first.
func (o Outcome) Retries() int {
	if len(o.Attempts) == 0 {
		return 0
	}
	return len(o.Attempts) - 1
}

// Kind returns the failure kind, or "" when the payload was delivered.
func (o Outcome) Kind() agenterrors.DeliveryKind {
	return agenterrors.KindOf(o.Err)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.SugaredLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Codec == nil {
		cfg.Codec = payload.JSONCodec{}
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger,
		sleep:  sleepContext,
	}
}

// Backoff returns the wait before the given retry (1-based): base doubled
// per retry, capped at limit.
func Backoff(retry int, base, limit time.Duration) time.Duration {
	if retry < 1 {
		return 0
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

type request struct {
	body           []byte
	signature      string
	idempotencyKey string
}

func (c *Client) prepare(p models.Payload) (request, error) {
	encoded, err := c.cfg.Codec.Marshal(p)
	if err != nil {
		return request{}, fmt.Errorf("encode payload: %w", err)
	}
	sum := blake3.Sum256(encoded)
	req := request{body: encoded, idempotencyKey: hex.EncodeToString(sum[:])}

	if c.cfg.Compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(encoded); err != nil {
			return request{}, fmt.Errorf("compress payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return request{}, fmt.Errorf("compress payload: %w", err)
		}
		req.body = buf.Bytes()
	}
	if c.cfg.SigningKey != "" {
		req.signature = Sign(req.body, c.cfg.SigningKey)
	}
	return req, nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Deliver sends p, retrying transient failures with exponential backoff.
// Auth and validation failures are never retried. The returned outcome is
// terminal.
func (c *Client) Deliver(ctx context.Context, p models.Payload) Outcome {
	req, err := c.prepare(p)
	if err != nil {
		return Outcome{Err: &agenterrors.DeliveryError{Kind: agenterrors.KindMalformed, Err: err}}
	}

	var out Outcome
	for number := 1; ; number++ {
		var wait time.Duration
		if number > 1 {
			wait = Backoff(number-1, c.cfg.BackoffBase, c.cfg.BackoffMax)
			if err := c.sleep(ctx, wait); err != nil {
				out.Err = &agenterrors.DeliveryError{Kind: agenterrors.KindCanceled, Err: err}
				return out
			}
		}

		attempt, ack := c.send(ctx, req)
		attempt.Number = number
		attempt.Wait = wait
		out.Attempts = append(out.Attempts, attempt)

		if attempt.Err == nil {
			out.Delivered = true
			out.Ack = ack
			return out
		}

		c.logger.Warnw("delivery attempt failed",
			"attempt", number,
			"kind", attempt.Kind,
			"status", attempt.StatusCode,
			"error", attempt.Err,
		)
		if !attempt.Kind.Retryable() || number > c.cfg.MaxRetries {
			out.Err = &agenterrors.DeliveryError{Kind: attempt.Kind, StatusCode: attempt.StatusCode, Err: attempt.Err}
			return out
		}
	}
}

type ackResponse struct {
	Ack string `json:"ack"`
}

func (c *Client) send(ctx context.Context, req request) (Attempt, string) {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(actx, http.MethodPost, c.cfg.BackendURL+MetricsPath, bytes.NewReader(req.body))
	if err != nil {
		return Attempt{Kind: agenterrors.KindMalformed, Err: err}, ""
	}
	httpReq.Header.Set("Content-Type", c.cfg.Codec.ContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	httpReq.Header.Set(HeaderIdempotency, req.idempotencyKey)
	if c.cfg.Compress {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if req.signature != "" {
		httpReq.Header.Set(HeaderSignature, req.signature)
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Attempt{Kind: classifyTransport(ctx, err), Err: err, Duration: time.Since(start)}, ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	attempt := Attempt{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if err != nil {
		attempt.Kind = classifyTransport(ctx, err)
		attempt.Err = fmt.Errorf("read response: %w", err)
		return attempt, ""
	}

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		attempt.Kind = kind
		attempt.Err = fmt.Errorf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return attempt, ""
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return attempt, ""
	}
	var ack ackResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		attempt.Kind = agenterrors.KindMalformedResponse
		attempt.Err = fmt.Errorf("decode response: %w", err)
		return attempt, ""
	}
	return attempt, ack.Ack
}

// classifyStatus returns "" for success.
func classifyStatus(code int) agenterrors.DeliveryKind {
	switch {
	case code >= 200 && code < 300:
		return ""
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return agenterrors.KindAuth
	case code >= 500:
		return agenterrors.KindServer
	default:
		return agenterrors.KindMalformed
	}
}

func classifyTransport(parent context.Context, err error) agenterrors.DeliveryKind {
	if parent.Err() != nil {
		return agenterrors.KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agenterrors.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return agenterrors.KindTimeout
	}
	return agenterrors.KindNetwork
}

// Ping checks that the collector answers on its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BackendURL+HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &agenterrors.DeliveryError{Kind: classifyTransport(context.Background(), err), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		return &agenterrors.DeliveryError{Kind: kind, StatusCode: resp.StatusCode, Err: errors.New("health check failed")}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
