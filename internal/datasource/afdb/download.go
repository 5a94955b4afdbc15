package afdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// Download streams the resource at url into dir, named after the last path
// element of url. An existing file is left alone. The path of the file is
// returned in both cases.
func (c *Client) Download(ctx context.Context, url, dir string) (string, error) {
	if !ValidURL(url) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	destPath := filepath.Join(dir, path.Base(url))

	if info, err := os.Stat(destPath); err == nil {
		c.logger.Info("file already exists, skipping",
			zap.String("path", destPath),
			zap.String("size", FormatSize(info.Size())))
		return destPath, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.fileClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, Status: resp.StatusCode}
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename file: %w", err)
	}

	c.logger.Info("downloaded",
		zap.String("path", destPath),
		zap.String("size", FormatSize(n)))
	return destPath, nil
}

// FormatSize formats bytes as human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
