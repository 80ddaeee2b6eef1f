// Package tracks owns the set of person tracks and performs frame-to-frame
// association between detector output and existing tracks. It is the only
// package that mutates Track objects; everything downstream (role
// classification, table assignment) reads them.
package tracks

import (
	"sort"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"gonum.org/v1/gonum/stat"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	// TrackNew is a freshly spawned track awaiting its first re-match.
	TrackNew TrackState = "new"
	// TrackActive is a confirmed, moving track.
	TrackActive TrackState = "active"
	// TrackSettling is the provisional state between the first low-velocity
	// sample and the confirmed seated state.
	TrackSettling TrackState = "settling"
	// TrackSeated is sustained stillness long enough to be trusted as sitting.
	TrackSeated TrackState = "seated"
	// TrackLost has stopped receiving matching detections but is retained
	// for possible reacquisition.
	TrackLost TrackState = "lost"
)

// Role labels assigned by the role classifier. Stored on the track as plain
// strings so the classifier package can write them back without a cycle.
const (
	RoleUnknown  = "unknown"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

const (
	// maxHistoryLength bounds the centroid history ring.
	maxHistoryLength = 600
	// maxSpeedHistoryLength bounds the speed samples kept for percentiles.
	maxSpeedHistoryLength = 100
	// unsetTime marks SeatedSince/LostSince as not meaningful.
	unsetTime = -1
)

// TrackPoint is a single entry in a track's centroid history.
type TrackPoint struct {
	Timestamp float64 // Video time, seconds
	Pos       geom.Point
}

// Track is a person followed across frames. Exactly one of SeatedSince and
// LostSince is meaningful at a time; a track is never both seated and lost.
type Track struct {
	ID    int64
	State TrackState

	Rect geom.Rect // Current bounding box

	Hits   int // Total successful associations
	Misses int // Consecutive missed frames

	FirstSeen float64
	LastSeen  float64

	// History of observed centroids, oldest first, bounded.
	History []TrackPoint

	// Velocity is pixels/second averaged over the sliding speed window.
	Velocity float64

	SeatedSince float64    // Start of continuous low-velocity behaviour; unsetTime if none
	SeatAnchor  geom.Point // Centroid at the moment the track was confirmed seated
	LostSince   float64    // When matching detections stopped; unsetTime if visible

	// Role classification, written back by the roles package.
	Role           string
	RoleConfidence float64

	// FeetVisible is the standing-posture hint from the most recent matched
	// detection's pose keypoints, when the detector supplies them.
	FeetVisible bool

	// PathLength is the cumulative centroid travel in pixels.
	PathLength float64

	// stateBeforeLost is restored when a lost track is reacquired.
	stateBeforeLost TrackState

	// speedWindow holds recent instantaneous speeds for the windowed
	// velocity estimate; cleared on reacquisition so occlusion gaps do not
	// register as motion spikes.
	speedWindow []float64

	// speedHistory holds bounded lifetime speed samples for percentiles.
	speedHistory []float64
}

// Centroid returns the centre of the current bounding box.
func (tr *Track) Centroid() geom.Point { return tr.Rect.Center() }

// Visible reports whether the track matched a detection in the most recent
// observed frame.
func (tr *Track) Visible() bool { return tr.State != TrackLost }

// Seated reports whether the track counts as seated for occupancy purposes.
// A seated track that is briefly lost keeps counting until its TTL expires
// (the registry removes lost tracks past the TTL, so lost implies within).
func (tr *Track) Seated() bool {
	if tr.State == TrackSeated {
		return true
	}
	return tr.State == TrackLost && tr.stateBeforeLost == TrackSeated
}

// Duration returns how long the track has existed, in seconds.
func (tr *Track) Duration() float64 { return tr.LastSeen - tr.FirstSeen }

// SpeedPercentiles returns the p50/p85/p95 of the track's lifetime speed
// samples.
func (tr *Track) SpeedPercentiles() (p50, p85, p95 float64) {
	if len(tr.speedHistory) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(tr.speedHistory))
	copy(sorted, tr.speedHistory)
	sort.Float64s(sorted)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return
}

// PathLengthSince returns the centroid travel accumulated after the given
// timestamp, used by the role classifier's trailing window.
func (tr *Track) PathLengthSince(since float64) float64 {
	var sum float64
	for i := 1; i < len(tr.History); i++ {
		if tr.History[i].Timestamp <= since {
			continue
		}
		sum += geom.Dist(tr.History[i-1].Pos, tr.History[i].Pos)
	}
	return sum
}

// recordObservation appends a matched detection to the track's history and
// refreshes the windowed velocity estimate.
func (tr *Track) recordObservation(r geom.Rect, ts float64, window int) {
	prev := tr.Centroid()
	prevTS := tr.LastSeen

	tr.Rect = r
	tr.LastSeen = ts
	tr.Hits++
	tr.Misses = 0

	c := r.Center()
	dt := ts - prevTS
	if dt > 0 {
		step := geom.Dist(prev, c)
		tr.PathLength += step
		speed := step / dt

		tr.speedWindow = append(tr.speedWindow, speed)
		if len(tr.speedWindow) > window {
			tr.speedWindow = tr.speedWindow[len(tr.speedWindow)-window:]
		}
		tr.speedHistory = append(tr.speedHistory, speed)
		if len(tr.speedHistory) > maxSpeedHistoryLength {
			tr.speedHistory = tr.speedHistory[1:]
		}
	}
	tr.Velocity = meanSpeed(tr.speedWindow)

	tr.History = append(tr.History, TrackPoint{Timestamp: ts, Pos: c})
	if len(tr.History) > maxHistoryLength {
		tr.History = tr.History[len(tr.History)-maxHistoryLength:]
	}
}

func meanSpeed(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
