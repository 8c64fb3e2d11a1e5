// Package app wires configuration into a ready-to-use analyzer.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Brownie44l1/canopy-aq/internal/airquality"
	"github.com/Brownie44l1/canopy-aq/internal/analysis"
	"github.com/Brownie44l1/canopy-aq/internal/config"
	"github.com/Brownie44l1/canopy-aq/internal/imagecodec"
	"github.com/Brownie44l1/canopy-aq/internal/model"
)

type App struct {
	Analyzer *analysis.Analyzer
	Detector *model.Detector
}

func Build(cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	backend, err := model.NewBackend(cfg.Detector.Backend, model.BackendOptions{
		ModelPath:    cfg.Detector.ModelPath,
		MetadataPath: cfg.Detector.MetadataPath,
		LibraryPath:  cfg.Detector.LibraryPath,
		InferenceURL: cfg.Detector.InferenceURL,
		Timeout:      cfg.Detector.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create detector backend: %w", err)
	}

	detector := model.NewDetector(backend, cfg.Detector.ScoreThreshold, log.Named("detector"))
	air := airquality.NewClient(cfg.AirQuality.BaseURL, cfg.AirQuality.APIKey, cfg.AirQuality.Timeout, log.Named("airquality"))

	analyzer := analysis.New(detector, air, analysis.Options{
		Limits: imagecodec.Limits{
			MinWidth:  cfg.Image.MinWidth,
			MinHeight: cfg.Image.MinHeight,
			MaxPixels: cfg.Image.MaxPixels,
		},
		ScratchDir: cfg.ScratchDir,
	}, log.Named("analysis"))

	return &App{Analyzer: analyzer, Detector: detector}, nil
}

func (a *App) Close() {
	a.Detector.Close()
}
