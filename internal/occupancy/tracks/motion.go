package tracks

import "github.com/banshee-data/occupancy.report/internal/geom"

// MotionConfig holds the stillness thresholds for seat detection.
type MotionConfig struct {
	// StillnessThresholdPxS is the windowed velocity at or below which a
	// track counts as still.
	StillnessThresholdPxS float64
	// SitSeconds is the continuous stillness required before a track is
	// trusted as seated.
	SitSeconds float64
	// MaxDisplacementPx is how far a seated track's centroid may drift from
	// its seating anchor before it reverts to active.
	MaxDisplacementPx float64
}

// DefaultMotionConfig returns the tuned stillness parameters.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		StillnessThresholdPxS: 32.0,
		SitSeconds:            2.0,
		MaxDisplacementPx:     75.0,
	}
}

// classifyMotion transitions a visible track among active, settling and
// seated from its windowed velocity. Settling exists so a single transient
// pause does not instantaneously mark a table occupied: the track must stay
// below the stillness threshold for SitSeconds continuously.
func classifyMotion(tr *Track, cfg MotionConfig, now float64) {
	if tr.State == TrackNew || tr.State == TrackLost {
		return
	}

	still := tr.Velocity <= cfg.StillnessThresholdPxS

	switch tr.State {
	case TrackActive:
		if still {
			tr.State = TrackSettling
			tr.SeatedSince = now
		}

	case TrackSettling:
		if !still {
			tr.State = TrackActive
			tr.SeatedSince = unsetTime
			return
		}
		if now-tr.SeatedSince >= cfg.SitSeconds {
			tr.State = TrackSeated
			tr.SeatAnchor = tr.Centroid()
		}

	case TrackSeated:
		if !still {
			tr.State = TrackActive
			tr.SeatedSince = unsetTime
			return
		}
		// A seated person shifting in place stays seated; one that stood up
		// and stepped away has left the anchor even if each step was slow.
		if geom.Dist(tr.Centroid(), tr.SeatAnchor) > cfg.MaxDisplacementPx {
			tr.State = TrackActive
			tr.SeatedSince = unsetTime
		}
	}
}
