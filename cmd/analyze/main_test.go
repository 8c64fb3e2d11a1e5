package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// setupEnv points the CLI at fake inference and air quality services.
func setupEnv(t *testing.T, healthy bool) string {
	t.Helper()

	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		case "/predict":
			w.Write([]byte(`{"detections":[{"xmin":0,"ymin":0,"xmax":100,"ymax":50,"score":0.9,"label":"Tree"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(inference.Close)

	air := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","data":{"message":"call_limit_reached"}}`))
	}))
	t.Cleanup(air.Close)

	scratch := t.TempDir()
	t.Setenv("DETECTOR_BACKEND", "remote")
	t.Setenv("INFERENCE_URL", inference.URL)
	t.Setenv("AIRVISUAL_BASE_URL", air.URL)
	t.Setenv("AIRVISUAL_API_KEY", "test-key")
	t.Setenv("SCRATCH_DIR", scratch)
	return scratch
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"missing longitude", []string{"aGVsbG8", "10"}},
		{"bad latitude", []string{"aGVsbG8", "north", "10"}},
		{"latitude out of range", []string{"aGVsbG8", "91", "10"}},
		{"unknown flag", []string{"-nope", "aGVsbG8", "1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, strings.NewReader(""), &stdout, &stderr)

			if code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout must stay empty on usage errors, got %q", stdout.String())
			}
		})
	}
}

func TestRunSuccess(t *testing.T) {
	scratch := setupEnv(t, true)

	var stdout, stderr bytes.Buffer
	code := run([]string{pngBase64(t, 200, 100), "37.8", "-122.27"}, strings.NewReader(""), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code = %d, stdout=%s stderr=%s", code, stdout.String(), stderr.String())
	}

	var m map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &m); err != nil {
		t.Fatalf("stdout is not a single JSON object: %v (%q)", err, stdout.String())
	}
	if m["tree_cover_percent"] != 25.0 || m["num_trees"] != 1.0 {
		t.Errorf("result = %v", m)
	}
	if v, ok := m["air_quality"]; !ok || v != nil {
		t.Errorf("air_quality = %v, want null", v)
	}

	entries, _ := os.ReadDir(scratch)
	if len(entries) != 0 {
		t.Errorf("%d scratch files left behind", len(entries))
	}
}

func TestRunReadsStdin(t *testing.T) {
	setupEnv(t, true)

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(pngBase64(t, 200, 100) + "\n")
	if code := run([]string{"-", "37.8", "-122.27"}, stdin, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stdout=%s", code, stdout.String())
	}
}

func TestRunDecodeFailure(t *testing.T) {
	setupEnv(t, true)

	var stdout, stderr bytes.Buffer
	code := run([]string{pngBase64(t, 50, 50), "0", "0"}, strings.NewReader(""), &stdout, &stderr)
	if code != exitAnalysisFailed {
		t.Errorf("exit code = %d, want %d", code, exitAnalysisFailed)
	}

	var m map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["error"]; !ok || len(m) != 1 {
		t.Errorf("result = %v, want only an error field", m)
	}
}

func TestRunModelUnavailable(t *testing.T) {
	setupEnv(t, false)

	var stdout, stderr bytes.Buffer
	code := run([]string{pngBase64(t, 200, 100), "0", "0"}, strings.NewReader(""), &stdout, &stderr)
	if code != exitModelUnavailable {
		t.Errorf("exit code = %d, want %d", code, exitModelUnavailable)
	}
	if !strings.Contains(stdout.String(), `"error"`) {
		t.Errorf("stdout = %q, want an error object", stdout.String())
	}
}
