package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const imageFetchTimeout = 30 * time.Second

// validImageURL accepts absolute http(s) URLs only.
func validImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid satelliteUrl: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("satelliteUrl must be an absolute http or https URL")
	}
	return nil
}

// downloadImage fetches the image at rawURL, capped at maxUpload bytes.
func (h *Handler) downloadImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxUpload {
		return nil, fmt.Errorf("image exceeds %d bytes", maxUpload)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image host returned an empty body")
	}
	return data, nil
}
