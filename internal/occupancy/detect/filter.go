package detect

import (
	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// FilterConfig holds the ingestion thresholds applied to raw detections
// before association. Fractions are relative to the frame area.
type FilterConfig struct {
	FrameWidth  int
	FrameHeight int

	ConfidenceThreshold float64 // Detections below this confidence are dropped
	MinBBoxFrac         float64 // Minimum box area as fraction of frame area
	MaxBBoxFrac         float64 // Maximum box area as fraction of frame area
	MinAspectRatio      float64 // Minimum height/width for a plausible person
	MaxAspectRatio      float64 // Maximum height/width for a plausible person
	BorderMarginPx      float64 // Boxes touching the frame border are rejected
}

// DefaultFilterConfig returns the tuned ingestion thresholds for a
// 1280x720 stream.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		FrameWidth:          1280,
		FrameHeight:         720,
		ConfidenceThreshold: 0.5,
		MinBBoxFrac:         0.001,
		MaxBBoxFrac:         0.09,
		MinAspectRatio:      0.35,
		MaxAspectRatio:      2.9,
		BorderMarginPx:      5,
	}
}

// Filter rejects detections that cannot plausibly be a person at a table:
// low-confidence hits, degenerate or out-of-frame boxes, boxes that are a
// tiny or huge fraction of the frame, and implausible aspect ratios.
type Filter struct {
	cfg       FilterConfig
	frameArea float64

	// Running counters for diagnostics.
	Seen    int64
	Dropped int64
}

// NewFilter builds a Filter for the configured frame geometry.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		cfg:       cfg,
		frameArea: float64(cfg.FrameWidth) * float64(cfg.FrameHeight),
	}
}

// Apply returns the detections that survive ingestion filtering. Rejected
// detections are logged as recoverable skips, never as errors.
func (f *Filter) Apply(dets []Detection) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		f.Seen++
		if f.accept(d) {
			kept = append(kept, d)
		} else {
			f.Dropped++
		}
	}
	if len(kept) < len(dets) {
		monitoring.Debugf("ingestion: dropped %d of %d detections", len(dets)-len(kept), len(dets))
	}
	return kept
}

func (f *Filter) accept(d Detection) bool {
	if d.Confidence < f.cfg.ConfidenceThreshold {
		return false
	}
	r := d.Rect
	if !r.Valid() {
		return false
	}

	// Out-of-frame or border-hugging boxes are usually truncated people or
	// detector artefacts.
	m := f.cfg.BorderMarginPx
	w, h := float64(f.cfg.FrameWidth), float64(f.cfg.FrameHeight)
	if r.X1 <= m || r.Y1 <= m || r.X2 >= w-m || r.Y2 >= h-m {
		return false
	}

	if f.frameArea > 0 {
		frac := r.Area() / f.frameArea
		if frac < f.cfg.MinBBoxFrac || frac > f.cfg.MaxBBoxFrac {
			return false
		}
	}

	ar := r.AspectRatio()
	if ar < f.cfg.MinAspectRatio || ar > f.cfg.MaxAspectRatio {
		return false
	}

	return true
}
