// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// MockCatalog is a test double for [services.Catalog]
type MockCatalog struct {
	mu    sync.Mutex
	items []models.ContentItem
	err   error
	calls int
}

func NewMockCatalog(items ...models.ContentItem) *MockCatalog {
	return &MockCatalog{items: items}
}

func (m *MockCatalog) Fetch(ctx context.Context, clientID string) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.ContentItem(nil), m.items...), nil
}

func (m *MockCatalog) SetItems(items ...models.ContentItem) {
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
}

func (m *MockCatalog) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockCatalog) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockFetcher is a test double for [services.Fetcher] serving content from memory.
//
// When Block is set, downloads wait for it to close or for ctx to end.
type MockFetcher struct {
	Block   chan struct{}
	Started chan string // receives each url as its download begins, if non-nil

	mu      sync.Mutex
	content map[string][]byte
	errs    map[string]error
	calls   []string
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{content: make(map[string][]byte), errs: make(map[string]error)}
}

func (m *MockFetcher) Serve(url string, body []byte) {
	m.mu.Lock()
	m.content[url] = body
	m.mu.Unlock()
}

func (m *MockFetcher) Fail(url string, err error) {
	m.mu.Lock()
	m.errs[url] = err
	m.mu.Unlock()
}

func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockFetcher) DownloadFile(ctx context.Context, url, path string) (int64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	body, ok := m.content[url]
	err := m.errs[url]
	block := m.Block
	m.mu.Unlock()

	if m.Started != nil {
		select {
		case m.Started <- url:
		default:
		}
	}

	if err := os.WriteFile(path, nil, 0644); err != nil {
		return 0, err
	}

	if block != nil {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("download interrupted: %w", ctx.Err())
		case <-block:
		}
	}

	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: status 404", shared.ErrDownloadFailed)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

// MockVoter is a test double for [services.Voter]
type MockVoter struct {
	mu        sync.Mutex
	reject    map[string]bool
	failAll   bool
	submitted []string
	attempts  int
}

func NewMockVoter() *MockVoter {
	return &MockVoter{reject: make(map[string]bool)}
}

// Reject makes submissions for sheepID fail.
func (m *MockVoter) Reject(sheepID string) {
	m.mu.Lock()
	m.reject[sheepID] = true
	m.mu.Unlock()
}

// SetOffline makes every submission fail when offline is true.
func (m *MockVoter) SetOffline(offline bool) {
	m.mu.Lock()
	m.failAll = offline
	m.mu.Unlock()
}

func (m *MockVoter) Submit(ctx context.Context, sheepID string, d models.Direction, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failAll || m.reject[sheepID] {
		return fmt.Errorf("%w: status 503", shared.ErrVoteSubmissionFailed)
	}
	m.submitted = append(m.submitted, fmt.Sprintf("%s:%d", sheepID, d.Value()))
	return nil
}

// Submitted returns "id:vote" for every accepted submission.
func (m *MockVoter) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

func (m *MockVoter) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
