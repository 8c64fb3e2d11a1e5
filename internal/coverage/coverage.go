// Package coverage computes canopy coverage from detected boxes.
package coverage

import "github.com/Brownie44l1/canopy-aq/internal/model"

// TreeArea sums the area of every box. Overlapping boxes are not merged, so
// shared pixels are counted once per box.
func TreeArea(boxes model.DetectionSet) float64 {
	var area float64
	for _, b := range boxes {
		area += b.Area()
	}
	return area
}

// Percent returns 100 * TreeArea / (width * height). The result can exceed
// 100 when boxes overlap.
func Percent(boxes model.DetectionSet, width, height int) float64 {
	total := float64(width) * float64(height)
	if total <= 0 {
		return 0
	}
	return TreeArea(boxes) / total * 100
}
