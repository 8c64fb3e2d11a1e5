// Package logging builds the zap logger used for diagnostics.
// Output always goes to stderr so stdout stays reserved for results.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	return logger.Sugar(), nil
}
