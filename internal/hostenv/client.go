package hostenv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

// Client reads the Home Assistant REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the API at baseURL authenticating with a
// long lived access token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) States(ctx context.Context) ([]State, error) {
	var states []State
	if err := getJSON(ctx, c.http, c.baseURL+"/api/states", c.token, &states); err != nil {
		return nil, fmt.Errorf("get states: %w", err)
	}
	return states, nil
}

func (c *Client) Config(ctx context.Context) (Config, error) {
	var cfg Config
	if err := getJSON(ctx, c.http, c.baseURL+"/api/config", c.token, &cfg); err != nil {
		return Config{}, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

// SupervisorClient lists backups through the Supervisor API.
type SupervisorClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewSupervisorClient(baseURL, token string, timeout time.Duration) *SupervisorClient {
	return &SupervisorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type backupsResponse struct {
	Result string `json:"result"`
	Data   struct {
		Backups []Backup `json:"backups"`
	} `json:"data"`
}

func (c *SupervisorClient) Backups(ctx context.Context) ([]Backup, error) {
	var resp backupsResponse
	if err := getJSON(ctx, c.http, c.baseURL+"/backups", c.token, &resp); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return resp.Data.Backups, nil
}

func getJSON(ctx context.Context, client *http.Client, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
