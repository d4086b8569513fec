package gcs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

var _ storage.Uploader = (*Client)(nil)

// Upload stores file under its content address. An object that already
// exists under that address is treated as stored.
func (c *Client) Upload(ctx context.Context, file *storage.File, onProgress storage.ProgressFunc) (storage.Result, error) {
	if c == nil || c.tokenSource == nil {
		return storage.Result{}, storage.Transient("upload", fmt.Errorf("gcs client not initialized"))
	}
	report := func(pct int) {
		if onProgress != nil {
			onProgress(pct)
		}
	}

	addr, err := storage.ContentAddress(file)
	if err != nil {
		return storage.Result{}, err
	}
	key := storage.ObjectKey(addr)
	result := storage.Result{ContentAddress: addr, Key: key, Size: file.Size, ContentType: file.ContentType}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return storage.Result{}, storage.Transient("token", err)
	}

	body, err := file.Open()
	if err != nil {
		return storage.Result{}, storage.Transient("open", err)
	}
	defer body.Close()

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", key)
	q.Set("ifGenerationMatch", "0")
	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?%s", c.endpoint, url.PathEscape(c.bucket), q.Encode())

	report(0)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, storage.NewProgressReader(body, file.Size, report))
	if err != nil {
		return storage.Result{}, storage.Transient("upload", err)
	}
	req.ContentLength = file.Size
	req.Header.Set("Authorization", "Bearer "+token)
	if file.ContentType != "" {
		req.Header.Set("Content-Type", file.ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return storage.Result{}, storage.Transient("upload", err)
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing upload body failed")

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusPreconditionFailed:
		report(100)
		return result, nil
	case resp.StatusCode == http.StatusRequestEntityTooLarge, resp.StatusCode == http.StatusBadRequest:
		return storage.Result{}, storage.Validation("upload", statusError("gcs rejected object", resp))
	default:
		return storage.Result{}, storage.Transient("upload", statusError("gcs upload failed", resp))
	}
}
