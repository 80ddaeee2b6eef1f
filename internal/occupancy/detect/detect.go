// Package detect defines the input contract between the external person
// detector and the occupancy core: per-frame detections with bounding boxes,
// confidences and optional pose keypoints, plus the ingestion filters that
// reject spurious boxes before they reach track association.
package detect

import (
	"github.com/banshee-data/occupancy.report/internal/geom"
)

// Keypoint is an optional pose landmark attached to a detection. The core
// only consumes ankle keypoints (standing-posture hint for the role
// classifier); everything else passes through untouched.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Detection is a single person detection in one frame.
type Detection struct {
	Rect       geom.Rect  `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Keypoints  []Keypoint `json:"keypoints,omitempty"`
}

// Frame is one frame's worth of detector output.
type Frame struct {
	Index      int64       `json:"frame_index"`
	Timestamp  float64     `json:"timestamp"`
	Detections []Detection `json:"detections"`
}

// FeetVisible reports whether the detection carries confident ankle
// keypoints near the bottom of its box. Used as a standing-person hint.
func (d Detection) FeetVisible(minConfidence float64) bool {
	h := d.Rect.Height()
	if h <= 0 {
		return false
	}
	for _, kp := range d.Keypoints {
		if kp.Name != "left_ankle" && kp.Name != "right_ankle" {
			continue
		}
		if kp.Confidence < minConfidence {
			continue
		}
		// Ankles sit in the lower fifth of a standing person's box.
		if kp.Y >= d.Rect.Y2-0.2*h {
			return true
		}
	}
	return false
}
