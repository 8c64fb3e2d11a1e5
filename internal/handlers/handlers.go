// Package handlers exposes the analyzer over HTTP.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Brownie44l1/canopy-aq/internal/analysis"
	"github.com/Brownie44l1/canopy-aq/internal/geo"
)

// maxUpload caps request bodies; base64 adds a third on top of the image.
const maxUpload = 50 << 20

type Analyzer interface {
	Analyze(ctx context.Context, payload string, coord geo.Coordinate) analysis.Result
}

type ModelStatus interface {
	EnsureInitialized() error
}

type Handler struct {
	analyzer Analyzer
	model    ModelStatus
	client   *http.Client
	log      *zap.SugaredLogger
}

// AnalyzeRequest accepts the field names used by both the web front end
// ("image", "lat", "lon") and older clients ("imageBase64", "long").
// Instead of inline data a client may send "satelliteUrl", which is
// downloaded first. Coordinates may be JSON numbers or strings.
type AnalyzeRequest struct {
	Image        string          `json:"image"`
	ImageBase64  string          `json:"imageBase64"`
	SatelliteURL string          `json:"satelliteUrl"`
	Lat          json.RawMessage `json:"lat"`
	Lon          json.RawMessage `json:"lon"`
	Long         json.RawMessage `json:"long"`
}

func NewHandler(analyzer Analyzer, model ModelStatus, log *zap.SugaredLogger) *Handler {
	return &Handler{
		analyzer: analyzer,
		model:    model,
		client:   &http.Client{Timeout: imageFetchTimeout},
		log:      log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.model.EnsureInitialized(); err != nil {
		respondJSON(w, map[string]string{"status": "degraded", "error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// Analyze handles POST /analyze with a JSON body.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		respondError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	payload := req.Image
	if payload == "" {
		payload = req.ImageBase64
	}
	if payload == "" && req.SatelliteURL == "" {
		respondError(w, "image or satelliteUrl is required", http.StatusBadRequest)
		return
	}

	lon := req.Lon
	if len(lon) == 0 {
		lon = req.Long
	}
	coord, err := geo.Parse(rawString(req.Lat), rawString(lon))
	if err != nil {
		respondError(w, fmt.Sprintf("Invalid coordinates: %v", err), http.StatusBadRequest)
		return
	}

	if payload == "" {
		if err := validImageURL(req.SatelliteURL); err != nil {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := h.downloadImage(r.Context(), req.SatelliteURL)
		if err != nil {
			h.log.Warnw("satellite image download failed", "url", req.SatelliteURL, "error", err)
			respondError(w, fmt.Sprintf("Failed to fetch satellite image: %v", err), http.StatusBadGateway)
			return
		}
		h.log.Infow("downloaded satellite image", "url", req.SatelliteURL, "size", len(data))
		payload = base64.StdEncoding.EncodeToString(data)
	}

	h.respondResult(w, h.analyzer.Analyze(r.Context(), payload, coord))
}

// AnalyzeUpload handles POST /analyze/image with a multipart "image" file
// and "lat"/"lon" form fields.
func (h *Handler) AnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	coord, err := geo.Parse(r.FormValue("lat"), r.FormValue("lon"))
	if err != nil {
		respondError(w, fmt.Sprintf("Invalid coordinates: %v", err), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read file", http.StatusBadRequest)
		return
	}
	h.log.Infow("received upload", "filename", header.Filename, "size", header.Size)

	h.respondResult(w, h.analyzer.Analyze(r.Context(), base64.StdEncoding.EncodeToString(data), coord))
}

func (h *Handler) respondResult(w http.ResponseWriter, res analysis.Result) {
	status := http.StatusOK
	switch res.Kind() {
	case analysis.FailureNone:
	case analysis.FailureDecode:
		status = http.StatusUnprocessableEntity
	case analysis.FailureModelUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	respondJSON(w, res, status)
}

// rawString unwraps a JSON string or returns a JSON number's literal text.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
