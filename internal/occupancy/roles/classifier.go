// Package roles labels tracks as staff or customer from their accumulated
// movement pattern. Customers enter, settle near one table and stay put;
// staff traverse the floor repeatedly. Classification is an accumulating
// evidence counter per track with hysteresis, not a per-frame re-evaluation,
// so a waiter pausing at a table does not flip to customer and back.
package roles

import (
	"math"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tracks"
)

// Region is a named table polygon used for crossing counts.
type Region struct {
	ID      string
	Polygon geom.Polygon
}

// Config holds the role classification thresholds.
type Config struct {
	// WindowSeconds is the trailing window over which traversal features
	// (path length, region crossings) are measured.
	WindowSeconds float64
	// PathDiagonalFactor: cumulative path in the window exceeding this
	// multiple of the largest table diagonal reads as staff traversal.
	PathDiagonalFactor float64
	// MinRegionCrossings: distinct table regions visited inside the window
	// at or above this count reads as staff.
	MinRegionCrossings int
	// WalkSpeedPxS: windowed velocity at or above this is walking, which is
	// neutral evidence (customers walk in too).
	WalkSpeedPxS float64
	// MaxSpeedPxS: velocities above this are association glitches, not
	// people; such frames contribute no evidence at all.
	MaxSpeedPxS float64
	// SustainedWalkSeconds: minimum track age before the median-speed
	// locomotion signal is trusted. Short tracks have too few speed
	// samples for the median to mean anything.
	SustainedWalkSeconds float64
	// StandingAspectRatio: boxes taller than this while still suggest a
	// standing person (staff posted at a table).
	StandingAspectRatio float64
	// EvidenceThreshold is the counter magnitude required to assign a role.
	EvidenceThreshold int
	// MinWindowSeconds is the minimum track age before the first
	// assignment, and the minimum time between role flips.
	MinWindowSeconds float64
	// StaleSeconds: per-track evidence state is forgotten after this long
	// without an update.
	StaleSeconds float64
}

// DefaultConfig returns the tuned role classification parameters.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:        20.0,
		PathDiagonalFactor:   3.0,
		MinRegionCrossings:   3,
		WalkSpeedPxS:         12.0,
		MaxSpeedPxS:          80.0,
		SustainedWalkSeconds: 5.0,
		StandingAspectRatio:  2.6,
		EvidenceThreshold:    15,
		MinWindowSeconds:     1.0,
		StaleSeconds:         30.0,
	}
}

// evidence is the per-track accumulator. Positive leans staff, negative
// leans customer.
type evidence struct {
	counter    int
	lastFlip   float64
	lastUpdate float64
	// regionSeen maps region id to the last time the track's centroid was
	// inside it, for windowed crossing counts.
	regionSeen map[string]float64
}

// Classifier assigns roles to tracks. Not safe for concurrent use; the
// pipeline drives it from its single consuming goroutine.
type Classifier struct {
	cfg         Config
	regions     []Region
	largestDiag float64
	state       map[int64]*evidence
}

// NewClassifier builds a classifier over the configured table regions.
func NewClassifier(cfg Config, regions []Region) *Classifier {
	var largest float64
	for _, r := range regions {
		largest = math.Max(largest, r.Polygon.Diagonal())
	}
	return &Classifier{
		cfg:         cfg,
		regions:     regions,
		largestDiag: largest,
		state:       make(map[int64]*evidence),
	}
}

// Update accumulates one frame of evidence for a track and writes the role
// back onto it. Tracks stay RoleUnknown until the evidence threshold and
// minimum window are both met; a set role flips only under sustained
// contradicting evidence.
func (c *Classifier) Update(tr *tracks.Track, now float64) {
	ev := c.state[tr.ID]
	if ev == nil {
		ev = &evidence{regionSeen: make(map[string]float64), lastFlip: tr.FirstSeen}
		c.state[tr.ID] = ev
	}
	ev.lastUpdate = now

	// Implausible speed means the tracker glued two people together for a
	// frame; nothing measured here is about this person.
	if tr.Velocity > c.cfg.MaxSpeedPxS {
		return
	}

	c.recordRegions(tr, ev, now)

	limit := 2 * c.cfg.EvidenceThreshold
	switch {
	case c.staffSignal(tr, ev, now):
		if ev.counter < limit {
			ev.counter++
		}
	case c.customerSignal(tr):
		if ev.counter > -limit {
			ev.counter--
		}
	}

	c.applyRole(tr, ev, now)
}

// Prune forgets evidence for tracks not updated recently (removed from the
// registry or long lost).
func (c *Classifier) Prune(now float64) {
	for id, ev := range c.state {
		if now-ev.lastUpdate > c.cfg.StaleSeconds {
			delete(c.state, id)
		}
	}
}

// recordRegions notes which table region, if any, contains the centroid.
func (c *Classifier) recordRegions(tr *tracks.Track, ev *evidence, now float64) {
	pos := tr.Centroid()
	for _, r := range c.regions {
		if r.Polygon.Contains(pos) {
			ev.regionSeen[r.ID] = now
		}
	}
}

// staffSignal reports whether this frame's features read as staff:
// sustained traversal, repeated table crossings, or standing posted at a
// table while everyone seated around them is half their box height.
func (c *Classifier) staffSignal(tr *tracks.Track, ev *evidence, now float64) bool {
	if c.largestDiag > 0 {
		path := tr.PathLengthSince(now - c.cfg.WindowSeconds)
		if path > c.cfg.PathDiagonalFactor*c.largestDiag {
			return true
		}
	}

	crossings := 0
	for _, seen := range ev.regionSeen {
		if now-seen <= c.cfg.WindowSeconds {
			crossings++
		}
	}
	if crossings >= c.cfg.MinRegionCrossings {
		return true
	}

	// Sustained locomotion: a median lifetime speed above walking pace
	// means the track has spent most of its existence on the move, which
	// no customer does. The median (not a high percentile) keeps a
	// customer's brief walk to their seat from counting.
	if tr.Duration() >= c.cfg.SustainedWalkSeconds {
		if p50, _, _ := tr.SpeedPercentiles(); p50 > c.cfg.WalkSpeedPxS {
			return true
		}
	}

	// Standing still: tall box or detector-confirmed visible feet, while
	// not moving like someone walking to a seat.
	if tr.Velocity < c.cfg.WalkSpeedPxS && tr.State != tracks.TrackSeated {
		if tr.FeetVisible || tr.Rect.AspectRatio() > c.cfg.StandingAspectRatio {
			return true
		}
	}

	return false
}

// customerSignal reports whether this frame reads as customer: settled (or
// settling) at low velocity without a standing posture. Plain walking is
// deliberately neutral.
func (c *Classifier) customerSignal(tr *tracks.Track) bool {
	if tr.Velocity >= c.cfg.WalkSpeedPxS {
		return false
	}
	if tr.FeetVisible || tr.Rect.AspectRatio() > c.cfg.StandingAspectRatio {
		return false
	}
	return tr.State == tracks.TrackSeated || tr.State == tracks.TrackSettling
}

// applyRole converts the evidence counter into a role, with hysteresis.
func (c *Classifier) applyRole(tr *tracks.Track, ev *evidence, now float64) {
	thr := c.cfg.EvidenceThreshold
	target := tr.Role
	switch {
	case ev.counter >= thr:
		target = tracks.RoleStaff
	case ev.counter <= -thr:
		target = tracks.RoleCustomer
	}

	if target == tr.Role {
		tr.RoleConfidence = c.confidence(ev)
		return
	}

	// First assignment needs the minimum track age; a flip of an already
	// set role needs the minimum window since the last change.
	if tr.Role == tracks.RoleUnknown {
		if tr.Duration() < c.cfg.MinWindowSeconds {
			return
		}
	} else if now-ev.lastFlip < c.cfg.MinWindowSeconds {
		return
	}

	monitoring.Debugf("roles: track %d %s -> %s (evidence %d)", tr.ID, tr.Role, target, ev.counter)
	tr.Role = target
	tr.RoleConfidence = c.confidence(ev)
	ev.lastFlip = now
	// Flipping resets the runway so the new role is sticky too.
	ev.counter = 0
}

func (c *Classifier) confidence(ev *evidence) float64 {
	conf := float64(abs(ev.counter)) / float64(2*c.cfg.EvidenceThreshold)
	if conf > 1 {
		conf = 1
	}
	return conf
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
