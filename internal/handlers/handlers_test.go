package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Brownie44l1/canopy-aq/internal/analysis"
	"github.com/Brownie44l1/canopy-aq/internal/geo"
)

type fakeAnalyzer struct {
	result  analysis.Result
	payload string
	coord   geo.Coordinate
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, payload string, coord geo.Coordinate) analysis.Result {
	f.calls++
	f.payload = payload
	f.coord = coord
	return f.result
}

type fakeModel struct{ err error }

func (f fakeModel) EnsureInitialized() error { return f.err }

func newTestRouter(a *fakeAnalyzer, m fakeModel) http.Handler {
	return NewHandler(a, m, zap.NewNop().Sugar()).Router()
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"healthy", nil, http.StatusOK},
		{"model missing", errors.New("model unavailable: no weights"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(&fakeAnalyzer{}, fakeModel{err: tt.err}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAnalyzeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     analysis.Result
		wantStatus int
		wantCalls  int
		wantLat    float64
		wantLon    float64
	}{
		{
			name:       "numbers",
			body:       `{"image":"aGVsbG8","lat":37.8,"lon":-122.27}`,
			result:     analysis.Success(12.5, 3, nil),
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantLat:    37.8,
			wantLon:    -122.27,
		},
		{
			name:       "legacy field names as strings",
			body:       `{"imageBase64":"aGVsbG8","lat":"10.5","long":"20.25"}`,
			result:     analysis.Success(0, 0, nil),
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantLat:    10.5,
			wantLon:    20.25,
		},
		{
			name:       "decode failure",
			body:       `{"image":"aGVsbG8","lat":1,"lon":2}`,
			result:     analysis.Failure(analysis.FailureDecode, "image is too small"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCalls:  1,
			wantLat:    1,
			wantLon:    2,
		},
		{
			name:       "model unavailable",
			body:       `{"image":"aGVsbG8","lat":1,"lon":2}`,
			result:     analysis.Failure(analysis.FailureModelUnavailable, "model unavailable"),
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
			wantLat:    1,
			wantLon:    2,
		},
		{name: "missing image", body: `{"lat":1,"lon":2}`, wantStatus: http.StatusBadRequest},
		{name: "missing coordinates", body: `{"image":"aGVsbG8"}`, wantStatus: http.StatusBadRequest},
		{name: "latitude out of range", body: `{"image":"aGVsbG8","lat":95,"lon":2}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{"image":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{result: tt.result}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			newTestRouter(a, fakeModel{}).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if a.calls != tt.wantCalls {
				t.Fatalf("analyzer called %d times, want %d", a.calls, tt.wantCalls)
			}

			var m map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			_, hasErr := m["error"]
			_, hasCover := m["tree_cover_percent"]
			if hasErr == hasCover {
				t.Errorf("response must carry either error or results: %v", m)
			}

			if tt.wantCalls > 0 {
				if a.payload != "aGVsbG8" {
					t.Errorf("payload = %q", a.payload)
				}
				if a.coord.Lat != tt.wantLat || a.coord.Lon != tt.wantLon {
					t.Errorf("coord = %+v, want %v,%v", a.coord, tt.wantLat, tt.wantLon)
				}
			}
		})
	}
}

func TestAnalyzeWrongMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeAnalyzer{}, fakeModel{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeAnalyzer{}, fakeModel{}).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/analyze", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestAnalyzeUpload(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "trees.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("raw image bytes"))
	writer.WriteField("lat", "45.5")
	writer.WriteField("lon", "-73.6")
	writer.Close()

	a := &fakeAnalyzer{result: analysis.Success(5, 1, nil)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	newTestRouter(a, fakeModel{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if a.payload != base64.StdEncoding.EncodeToString([]byte("raw image bytes")) {
		t.Errorf("payload = %q", a.payload)
	}
	if a.coord.Lat != 45.5 || a.coord.Lon != -73.6 {
		t.Errorf("coord = %+v", a.coord)
	}
}

func TestAnalyzeUploadMissingFile(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("lat", "45.5")
	writer.WriteField("lon", "-73.6")
	writer.Close()

	a := &fakeAnalyzer{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	newTestRouter(a, fakeModel{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if a.calls != 0 {
		t.Error("analyzer must not run without an image")
	}
}

func TestAnalyzeSatelliteURL(t *testing.T) {
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tiles/oakland.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("satellite bytes"))
	}))
	defer host.Close()

	a := &fakeAnalyzer{result: analysis.Success(30, 4, nil)}
	body := `{"lat":"37.8","long":"-122.27","satelliteUrl":"` + host.URL + `/tiles/oakland.png"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	newTestRouter(a, fakeModel{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if a.payload != base64.StdEncoding.EncodeToString([]byte("satellite bytes")) {
		t.Errorf("payload = %q", a.payload)
	}
	if a.coord.Lat != 37.8 || a.coord.Lon != -122.27 {
		t.Errorf("coord = %+v", a.coord)
	}
}

func TestAnalyzeSatelliteURLFailures(t *testing.T) {
	host := httptest.NewServer(http.NotFoundHandler())
	defer host.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	tests := []struct {
		name       string
		url        string
		wantStatus int
	}{
		{"not found", host.URL + "/missing.png", http.StatusBadGateway},
		{"host unreachable", downURL + "/tile.png", http.StatusBadGateway},
		{"unsupported scheme", "ftp://example.com/tile.png", http.StatusBadRequest},
		{"relative url", "/tile.png", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{}
			body := `{"lat":1,"lon":2,"satelliteUrl":"` + tt.url + `"}`
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			newTestRouter(a, fakeModel{}).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if a.calls != 0 {
				t.Error("analyzer must not run without an image")
			}
			var m map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil || m["error"] == nil {
				t.Errorf("body = %s, want an error object", rec.Body.String())
			}
		})
	}
}
