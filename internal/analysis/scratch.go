package analysis

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/canopy-aq/internal/imagecodec"
)

// withScratchImage writes r to a call-local PNG file, runs fn with its path and
// removes the file on every exit path, panics included.
func withScratchImage(dir, id string, r *imagecodec.Raster, fn func(path string) error) error {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "canopy-"+id+".png")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(path)

	if err := png.Encode(f, r.Image()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write scratch file: %w", err)
	}

	return fn(path)
}
