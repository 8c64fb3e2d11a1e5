package model

import "time"

// Metadata describes an exported detection model. Output tensors are padded to
// a fixed number of detections; unused slots carry a score of zero.
type Metadata struct {
	InputName      string   `json:"input_name"`
	BoxesName      string   `json:"boxes_name"`
	ScoresName     string   `json:"scores_name"`
	InputShape     []int64  `json:"input_shape"`
	BoxesShape     []int64  `json:"boxes_shape"`
	ScoresShape    []int64  `json:"scores_shape"`
	ScoreThreshold float32  `json:"score_threshold"`
	Classes        []string `json:"classes"`
}

// BoundingBox is one detected canopy region in raster pixel coordinates.
type BoundingBox struct {
	XMin  float64 `json:"xmin"`
	YMin  float64 `json:"ymin"`
	XMax  float64 `json:"xmax"`
	YMax  float64 `json:"ymax"`
	Score float64 `json:"score"`
	Label string  `json:"label,omitempty"`
}

func (b BoundingBox) Area() float64 {
	return (b.XMax - b.XMin) * (b.YMax - b.YMin)
}

// DetectionSet holds every box found in one raster. Order carries no meaning.
type DetectionSet []BoundingBox

type BackendOptions struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
	InferenceURL string
	Timeout      time.Duration
}
