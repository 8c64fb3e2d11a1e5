package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RemoteBackend sends the image file to an HTTP inference service that hosts
// the detector, e.g. a DeepForest process behind a small web wrapper.
type RemoteBackend struct {
	serviceURL string
	client     *http.Client
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// remoteDetection is a box as the service sends it. A missing score counts as 1.
type remoteDetection struct {
	XMin  float64  `json:"xmin"`
	YMin  float64  `json:"ymin"`
	XMax  float64  `json:"xmax"`
	YMax  float64  `json:"ymax"`
	Score *float64 `json:"score"`
	Label string   `json:"label"`
}

func NewRemoteBackend(serviceURL string, timeout time.Duration) *RemoteBackend {
	if serviceURL == "" {
		serviceURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &RemoteBackend{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (m *RemoteBackend) Name() string { return "remote" }

// Load verifies the inference service is reachable.
func (m *RemoteBackend) Load() error {
	resp, err := m.client.Get(m.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("inference service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (m *RemoteBackend) PredictFile(ctx context.Context, path string, width, height int) ([]BoundingBox, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serviceURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	boxes := make([]BoundingBox, 0, len(result.Detections))
	for _, d := range result.Detections {
		score := 1.0
		if d.Score != nil {
			score = *d.Score
		}
		boxes = append(boxes, BoundingBox{
			XMin:  d.XMin,
			YMin:  d.YMin,
			XMax:  d.XMax,
			YMax:  d.YMax,
			Score: score,
			Label: d.Label,
		})
	}
	return boxes, nil
}

func (m *RemoteBackend) Close() {
	m.client.CloseIdleConnections()
}
