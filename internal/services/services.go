// package services implements the HTTP clients for the catalog, content and voting endpoints
package services

import (
	"context"

	"github.com/desertthunder/sheepd/internal/models"
)

// Catalog fetches the remote item catalog.
type Catalog interface {
	Fetch(ctx context.Context, clientID string) ([]models.ContentItem, error)
}

// Fetcher downloads one content file to a local path.
type Fetcher interface {
	DownloadFile(ctx context.Context, rawURL, path string) (int64, error)
}

// Voter submits a single vote.
type Voter interface {
	Submit(ctx context.Context, sheepID string, d models.Direction, clientID string) error
}

var (
	_ Catalog = (*CatalogClient)(nil)
	_ Fetcher = (*Downloader)(nil)
	_ Voter   = (*VoteClient)(nil)
)
