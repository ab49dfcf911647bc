package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

const DefaultVoteURL = "https://v3d0.sheepserver.net/cgi/vote.cgi"

// VoteClient submits votes to the voting endpoint.
type VoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewVoteClient creates a vote client. A nil client gets [VoteTimeout].
func NewVoteClient(baseURL string, client *http.Client) *VoteClient {
	if baseURL == "" {
		baseURL = DefaultVoteURL
	}
	if client == nil {
		client = NewHTTPClient(VoteTimeout)
	}
	return &VoteClient{baseURL: baseURL, httpClient: client}
}

// Submit sends one vote. Only an HTTP 200 response counts as success.
func (v *VoteClient) Submit(ctx context.Context, sheepID string, d models.Direction, clientID string) error {
	u, err := url.Parse(v.baseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid vote url: %v", shared.ErrVoteSubmissionFailed, err)
	}
	q := u.Query()
	q.Set("id", sheepID)
	q.Set("vote", strconv.Itoa(d.Value()))
	q.Set("u", clientID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrVoteSubmissionFailed, err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrVoteSubmissionFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", shared.ErrVoteSubmissionFailed, resp.StatusCode)
	}
	return nil
}
