package analysis

import (
	"encoding/json"

	"github.com/Brownie44l1/canopy-aq/internal/airquality"
)

// FailureKind classifies a failed analysis for exit codes and HTTP statuses.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureDecode           FailureKind = "decode"
	FailureModelUnavailable FailureKind = "model_unavailable"
	FailureInference        FailureKind = "inference"
	FailureInternal         FailureKind = "internal"
)

// Result is either a success (coverage, tree count, air quality) or an error
// message, never both. Build one with Success or Failure.
type Result struct {
	treeCover  float64
	numTrees   int
	airQuality *airquality.Reading

	errMsg string
	kind   FailureKind
}

type successJSON struct {
	TreeCoverPercent float64             `json:"tree_cover_percent"`
	NumTrees         int                 `json:"num_trees"`
	AirQuality       *airquality.Reading `json:"air_quality"`
}

type failureJSON struct {
	Error string `json:"error"`
}

func Success(treeCover float64, numTrees int, aq *airquality.Reading) Result {
	return Result{treeCover: treeCover, numTrees: numTrees, airQuality: aq}
}

func Failure(kind FailureKind, msg string) Result {
	if kind == FailureNone {
		kind = FailureInternal
	}
	if msg == "" {
		msg = "analysis failed"
	}
	return Result{errMsg: msg, kind: kind}
}

func (r Result) OK() bool { return r.kind == FailureNone }

func (r Result) Kind() FailureKind { return r.kind }

func (r Result) Error() string { return r.errMsg }

func (r Result) TreeCoverPercent() float64 { return r.treeCover }

func (r Result) NumTrees() int { return r.numTrees }

func (r Result) AirQuality() *airquality.Reading { return r.airQuality }

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return json.Marshal(failureJSON{Error: r.errMsg})
	}
	return json.Marshal(successJSON{
		TreeCoverPercent: r.treeCover,
		NumTrees:         r.numTrees,
		AirQuality:       r.airQuality,
	})
}
