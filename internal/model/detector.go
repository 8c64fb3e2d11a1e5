// Package model runs the tree detection model behind a load-once Detector.
package model

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Backend runs a pretrained tree detection model against an image file.
type Backend interface {
	Name() string
	Load() error
	PredictFile(ctx context.Context, path string, width, height int) ([]BoundingBox, error)
	Close()
}

// Detector owns the process-wide model. The backend is loaded at most once and
// is read-only afterwards, so a Detector may be shared between goroutines.
type Detector struct {
	backend  Backend
	minScore float64
	log      *zap.SugaredLogger

	once    sync.Once
	initErr error
}

func NewDetector(backend Backend, minScore float64, log *zap.SugaredLogger) *Detector {
	return &Detector{
		backend:  backend,
		minScore: minScore,
		log:      log,
	}
}

// EnsureInitialized loads the model on first use. A load failure is sticky:
// every later call reports the same ModelUnavailable error without retrying.
func (d *Detector) EnsureInitialized() error {
	d.once.Do(func() {
		d.log.Infow("loading tree detection model", "backend", d.backend.Name())
		if err := d.backend.Load(); err != nil {
			d.initErr = err
			d.log.Errorw("tree detection model failed to load", "backend", d.backend.Name(), "error", err)
			return
		}
		d.log.Infow("tree detection model ready", "backend", d.backend.Name())
	})

	if d.initErr != nil {
		return &DetectionError{Kind: ModelUnavailable, Err: d.initErr}
	}
	return nil
}

// Detect runs the model on the image stored at path, whose pixel size is
// width x height. Returned boxes are clamped to the raster.
func (d *Detector) Detect(ctx context.Context, path string, width, height int) (DetectionSet, error) {
	if err := d.EnsureInitialized(); err != nil {
		return nil, err
	}

	boxes, err := d.backend.PredictFile(ctx, path, width, height)
	if err != nil {
		return nil, &DetectionError{Kind: InferenceFailed, Err: err}
	}

	return sanitize(boxes, width, height, d.minScore), nil
}

func (d *Detector) Close() {
	d.backend.Close()
}

// sanitize drops low-confidence and degenerate boxes and clamps the rest so
// that 0 <= min < max <= size holds on both axes.
func sanitize(boxes []BoundingBox, width, height int, minScore float64) DetectionSet {
	out := make(DetectionSet, 0, len(boxes))
	w, h := float64(width), float64(height)

	for _, b := range boxes {
		if b.Score < minScore {
			continue
		}
		if anyNaN(b.XMin, b.YMin, b.XMax, b.YMax) {
			continue
		}

		b.XMin = clamp(b.XMin, 0, w)
		b.XMax = clamp(b.XMax, 0, w)
		b.YMin = clamp(b.YMin, 0, h)
		b.YMax = clamp(b.YMax, 0, h)

		if b.XMin >= b.XMax || b.YMin >= b.YMax {
			continue
		}
		out = append(out, b)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// NewBackend creates the backend named by variant.
func NewBackend(variant string, opts BackendOptions) (Backend, error) {
	switch variant {
	case "onnx", "":
		return NewONNXBackend(opts.ModelPath, opts.MetadataPath, opts.LibraryPath), nil
	case "remote":
		return NewRemoteBackend(opts.InferenceURL, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown detector backend: %s", variant)
	}
}
