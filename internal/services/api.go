// Status client for querying a running agent over HTTP
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

const DefaultStatusURL = "http://127.0.0.1:7878"

// StatusClient reads the status endpoint of a running agent.
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStatusClient creates a status client for the agent at baseURL.
func NewStatusClient(baseURL string, client *http.Client) *StatusClient {
	if baseURL == "" {
		baseURL = DefaultStatusURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &StatusClient{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *StatusClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path)
}

// Post performs an empty-bodied POST request to the specified path.
func (a *StatusClient) Post(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path)
}

func (a *StatusClient) do(ctx context.Context, method, path string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Status fetches and decodes /status.
func (a *StatusClient) Status(ctx context.Context) (*models.StatusSnapshot, error) {
	resp, err := a.Get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var snap models.StatusSnapshot
	if err := json.Unmarshal(resp.Body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &snap, nil
}

// SyncActions are the control requests a running agent accepts.
var SyncActions = []string{"pause", "resume", "now"}

// Control asks the agent to pause, resume or start a sync cycle now.
func (a *StatusClient) Control(ctx context.Context, action string) error {
	if !slices.Contains(SyncActions, action) {
		return fmt.Errorf("%w: sync action %q", shared.ErrInvalidArgument, action)
	}

	resp, err := a.Post(ctx, "/sync/"+action)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sync %s returned %d", action, resp.StatusCode)
	}
	return nil
}
