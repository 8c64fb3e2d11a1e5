// Package analysis runs the canopy pipeline: decode, detect, measure, enrich.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/canopy-aq/internal/airquality"
	"github.com/Brownie44l1/canopy-aq/internal/coverage"
	"github.com/Brownie44l1/canopy-aq/internal/geo"
	"github.com/Brownie44l1/canopy-aq/internal/imagecodec"
	"github.com/Brownie44l1/canopy-aq/internal/model"
)

// Detector finds tree boxes in the image file at path.
type Detector interface {
	Detect(ctx context.Context, path string, width, height int) (model.DetectionSet, error)
}

// AirQuality returns a reading near coord, or nil when none is available.
type AirQuality interface {
	Fetch(ctx context.Context, coord geo.Coordinate) *airquality.Reading
}

type Options struct {
	Limits     imagecodec.Limits
	ScratchDir string
}

type Analyzer struct {
	detector Detector
	air      AirQuality
	opts     Options
	log      *zap.SugaredLogger
}

// New builds an Analyzer. air may be nil, in which case every result carries
// a null air quality reading. Unset limits take the codec defaults.
func New(detector Detector, air AirQuality, opts Options, log *zap.SugaredLogger) *Analyzer {
	defaults := imagecodec.DefaultLimits()
	if opts.Limits.MinWidth <= 0 {
		opts.Limits.MinWidth = defaults.MinWidth
	}
	if opts.Limits.MinHeight <= 0 {
		opts.Limits.MinHeight = defaults.MinHeight
	}
	if opts.Limits.MaxPixels <= 0 {
		opts.Limits.MaxPixels = defaults.MaxPixels
	}

	return &Analyzer{
		detector: detector,
		air:      air,
		opts:     opts,
		log:      log,
	}
}

// Analyze never fails: every error, panics included, comes back as a
// failure Result.
func (a *Analyzer) Analyze(ctx context.Context, payload string, coord geo.Coordinate) (res Result) {
	id := uuid.NewString()
	log := a.log.With("request_id", id)

	defer func() {
		if rec := recover(); rec != nil {
			err := xerrors.New(fmt.Sprintf("unexpected failure: %v", rec))
			log.Errorw("analysis aborted", "error", err.Error(), "detail", fmt.Sprintf("%+v", err))
			res = Failure(FailureInternal, err.Error())
		}
	}()

	log.Infow("decoding image", "payload_bytes", len(payload))
	raster, err := imagecodec.Decode(payload, a.opts.Limits)
	if err != nil {
		log.Warnw("image rejected", "error", err)
		return Failure(FailureDecode, err.Error())
	}
	log.Infow("image decoded", "width", raster.Width, "height", raster.Height, "format", raster.Format)

	var boxes model.DetectionSet
	err = withScratchImage(a.opts.ScratchDir, id, raster, func(path string) error {
		log.Infow("running tree detector")
		var derr error
		boxes, derr = a.detector.Detect(ctx, path, raster.Width, raster.Height)
		return derr
	})
	if err != nil {
		return a.detectionFailure(log, err)
	}
	log.Infow("detection finished", "num_trees", len(boxes))

	treeCover := coverage.Percent(boxes, raster.Width, raster.Height)

	var aq *airquality.Reading
	if a.air != nil {
		log.Infow("fetching air quality", "coord", coord.String())
		aq = a.air.Fetch(ctx, coord)
	}

	log.Infow("analysis complete", "tree_cover_percent", treeCover, "num_trees", len(boxes), "air_quality", aq != nil)
	return Success(treeCover, len(boxes), aq)
}

func (a *Analyzer) detectionFailure(log *zap.SugaredLogger, err error) Result {
	var detErr *model.DetectionError
	if errors.As(err, &detErr) {
		switch detErr.Kind {
		case model.ModelUnavailable:
			log.Errorw("tree detection model unavailable, deployment is broken", "error", err)
			return Failure(FailureModelUnavailable, err.Error())
		case model.InferenceFailed:
			log.Errorw("tree detection failed", "error", err)
			return Failure(FailureInference, err.Error())
		}
	}

	log.Errorw("detection step failed", "error", err)
	return Failure(FailureInternal, err.Error())
}
