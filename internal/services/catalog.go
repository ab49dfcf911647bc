package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

const (
	DefaultRedirectURL   = "http://community.sheepserver.net/query.php?q=redir&u="
	DefaultClientVersion = "GO_C_1.0.0"

	catalogPath = "/cgi/list"

	// maxCatalogBytes bounds how much of a catalog response is read.
	maxCatalogBytes = 64 << 20
)

// CatalogOptions configures a [CatalogClient].
type CatalogOptions struct {
	RedirectURL   string       // Installation id is appended verbatim
	ClientVersion string       // Sent as the v query parameter
	HTTPClient    *http.Client // Defaults to [NewHTTPClient] with [CatalogTimeout]
	Logger        *log.Logger

	// SaveList, when set, receives every raw catalog document before decoding.
	SaveList func(name string, data []byte) error
}

// CatalogClient resolves the active catalog host and fetches the item catalog.
type CatalogClient struct {
	redirectURL   string
	clientVersion string
	httpClient    *http.Client
	logger        *log.Logger
	saveList      func(string, []byte) error
}

// NewCatalogClient creates a catalog client, filling in defaults.
func NewCatalogClient(opts CatalogOptions) *CatalogClient {
	if opts.RedirectURL == "" {
		opts.RedirectURL = DefaultRedirectURL
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = DefaultClientVersion
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(CatalogTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &CatalogClient{
		redirectURL:   opts.RedirectURL,
		clientVersion: opts.ClientVersion,
		httpClient:    opts.HTTPClient,
		logger:        shared.WithLogger(opts.Logger, "component", "catalog"),
		saveList:      opts.SaveList,
	}
}

// ResolveEndpoint asks the redirect service for the active catalog host and returns the catalog URL.
func (c *CatalogClient) ResolveEndpoint(ctx context.Context, clientID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.redirectURL+clientID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", shared.ErrCatalogUnreachable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: redirect request failed: %w", shared.ErrCatalogUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: redirect returned status %d", shared.ErrCatalogUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read redirect: %w", shared.ErrCatalogUnreachable, err)
	}

	endpoint, err := c.catalogURL(strings.TrimSpace(string(body)), clientID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrCatalogUnreachable, err)
	}

	c.logger.Debug("resolved catalog", "endpoint", endpoint)
	return endpoint, nil
}

// catalogURL builds the catalog list URL from a redirect body naming a host or a full URL.
func (c *CatalogClient) catalogURL(target, clientID string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty redirect response")
	}
	if strings.ContainsAny(target, " \t\r\n") {
		return "", fmt.Errorf("unparseable redirect response %q", target)
	}

	raw := target
	if !strings.Contains(target, "://") {
		raw = "http://" + target
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable redirect response %q: %w", target, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("unparseable redirect response %q", target)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = catalogPath
	}
	q := u.Query()
	q.Set("v", c.clientVersion)
	q.Set("u", clientID)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// FetchCatalog downloads the catalog document at endpoint, decompressing gzip bodies.
func (c *CatalogClient) FetchCatalog(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrCatalogUnreachable, err)
	}
	// Setting the header disables the transport's transparent decompression.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog request failed: %w", shared.ErrCatalogUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: catalog returned status %d", shared.ErrCatalogUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read catalog: %w", shared.ErrCatalogUnreachable, err)
	}

	if c.saveList != nil && len(body) > 0 {
		if err := c.saveList(listName(body), body); err != nil {
			c.logger.Warn("failed to save catalog list", "err", err)
		}
	}

	if IsGzip(body) {
		body, err = Gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrCatalogCorrupt, err)
		}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", shared.ErrCatalogCorrupt)
	}
	return body, nil
}

func listName(body []byte) string {
	if IsGzip(body) {
		return "list.xml.gz"
	}
	return "list.xml"
}

// Fetch resolves the endpoint, downloads the catalog and parses it.
func (c *CatalogClient) Fetch(ctx context.Context, clientID string) ([]models.ContentItem, error) {
	endpoint, err := c.ResolveEndpoint(ctx, clientID)
	if err != nil {
		return nil, err
	}

	data, err := c.FetchCatalog(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	items, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}

	c.logger.Info("fetched catalog", "items", len(items))
	return items, nil
}
