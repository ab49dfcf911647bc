package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/shared"
)

// Downloader streams content files to disk.
type Downloader struct {
	httpClient *http.Client
	logger     *log.Logger
}

// NewDownloader creates a downloader. A nil client gets [DownloadTimeout].
func NewDownloader(client *http.Client, logger *log.Logger) *Downloader {
	if client == nil {
		client = NewHTTPClient(DownloadTimeout)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Downloader{httpClient: client, logger: shared.WithLogger(logger, "component", "downloader")}
}

// Download streams the body at rawURL into dst and returns the bytes written.
//
// Cancelling ctx aborts the transfer; the returned error then wraps ctx.Err().
// Other failures wrap [shared.ErrDownloadFailed].
func (d *Downloader) Download(ctx context.Context, rawURL string, dst io.Writer) (int64, error) {
	if rawURL == "" {
		return 0, fmt.Errorf("%w: missing url", shared.ErrDownloadFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", shared.ErrDownloadFailed, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, d.wrap(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: status %d", shared.ErrDownloadFailed, resp.StatusCode)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, d.wrap(ctx, err)
	}
	return n, nil
}

// DownloadFile downloads rawURL into a newly created file at path.
//
// The file is left in place on failure; callers discard it.
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create %s: %v", shared.ErrDownloadFailed, path, err)
	}

	n, err := d.Download(ctx, rawURL, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: failed to close %s: %v", shared.ErrDownloadFailed, path, cerr)
	}
	if err != nil {
		return n, err
	}

	d.logger.Debug("downloaded", "url", rawURL, "bytes", n)
	return n, nil
}

func (d *Downloader) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("download interrupted: %w", ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrDownloadFailed, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
}
