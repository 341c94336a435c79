package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

// LocalFile is a downloaded file. Close removes it.
type LocalFile struct {
	Path string
}

func (f *LocalFile) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Path), "."))
}

func (f *LocalFile) Close() error {
	return os.Remove(f.Path)
}

// HTTPDownloader stores downloads under its own temporary directory.
type HTTPDownloader struct {
	client    *retryablehttp.Client
	dir       string
	userAgent string
}

func NewHTTPDownloader(client *retryablehttp.Client, userAgent string) (*HTTPDownloader, error) {
	dir, err := os.MkdirTemp("", "tgreddit-media-")
	if err != nil {
		return nil, fmt.Errorf("error creating download dir: %w", err)
	}

	return &HTTPDownloader{
		client:    client,
		dir:       dir,
		userAgent: userAgent,
	}, nil
}

func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (*LocalFile, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s downloading %s", resp.Status, rawURL)
	}

	file, err := os.CreateTemp(d.dir, "*-"+fileName(rawURL))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("error writing %s: %w", rawURL, err)
	}

	log.WithFields(log.Fields{"url": rawURL, "path": file.Name(), "bytes": n}).Debug("downloaded file")

	return &LocalFile{Path: file.Name()}, nil
}

// Close removes the download directory with everything left in it.
func (d *HTTPDownloader) Close() error {
	return os.RemoveAll(d.dir)
}

// fileName returns the last path segment of the url without the query.
func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "download"
	}

	return strings.ReplaceAll(path.Base(u.Path), "*", "")
}
