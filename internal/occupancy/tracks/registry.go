package tracks

import (
	"sort"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy/detect"
)

// RegistryConfig holds the association and lifecycle parameters.
type RegistryConfig struct {
	MaxTracks          int     // Cap on concurrent tracks
	MaxMatchDistPx     float64 // Gating radius for visible tracks (pixels)
	LostMatchFactor    float64 // Gate multiplier when matching against lost tracks
	TTLLostSeconds     float64 // How long a lost track is retained before removal
	HitsToActivate     int     // Matches needed to promote a new track
	VelocityWindow     int     // Speed samples in the sliding velocity window
	KeypointConfidence float64 // Minimum pose keypoint confidence for posture hints

	Motion MotionConfig
}

// DefaultRegistryConfig returns the tuned registry parameters.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxTracks:       100,
		MaxMatchDistPx:  80.0,
		LostMatchFactor: 2.0,
		TTLLostSeconds:  11.0,
		HitsToActivate:  2,
		// Three samples smooth single-frame jitter without making the
		// velocity estimate lag a genuine stop by more than a frame or two.
		VelocityWindow:     3,
		KeypointConfidence: 0.5,
		Motion:             DefaultMotionConfig(),
	}
}

// Registry owns all Track objects and their mutation. It is not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Registry struct {
	cfg    RegistryConfig
	tracks map[int64]*Track
	nextID int64
}

// NewRegistry creates an empty track registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Observe ingests one frame's filtered detections and returns the
// authoritative set of tracks valid for this frame, sorted by id.
//
// Association resolves detection-to-track pairings optimally over a gated
// centroid-distance cost matrix. Lost tracks participate with a widened
// gate so short occlusions do not cost a track its identity.
func (g *Registry) Observe(dets []detect.Detection, ts float64) []*Track {
	g.expireLost(ts)

	// Candidate tracks in ascending id order: the solver resolves equal-cost
	// ties by scan order, so this ordering is what makes association
	// reproducible run to run.
	candidates := g.sortedTracks()

	assigned := g.associate(dets, candidates)

	matched := make(map[int64]bool, len(dets))
	for di, ci := range assigned {
		if ci < 0 {
			continue
		}
		tr := candidates[ci]
		matched[tr.ID] = true
		g.applyMatch(tr, dets[di], ts)
	}

	// Unmatched visible tracks stop being trusted immediately.
	for _, tr := range candidates {
		if matched[tr.ID] || tr.State == TrackLost {
			continue
		}
		tr.Misses++
		g.markLost(tr, ts)
	}

	// Unmatched detections spawn new tracks.
	for di, ci := range assigned {
		if ci >= 0 {
			continue
		}
		if len(g.tracks) >= g.cfg.MaxTracks {
			monitoring.Logf("tracks: registry at capacity (%d), dropping detection", g.cfg.MaxTracks)
			continue
		}
		g.spawn(dets[di], ts)
	}

	return g.Visible()
}

// AdvanceGap ages every track across an announced frame gap ending at ts.
// No observations are applied; visible tracks transition to lost as of
// their last sighting so TTL and seating comparisons stay correct.
func (g *Registry) AdvanceGap(ts float64) {
	for _, tr := range g.tracks {
		if tr.State != TrackLost {
			tr.Misses++
			g.markLost(tr, tr.LastSeen)
		}
	}
	g.expireLost(ts)
}

// Visible returns non-lost tracks sorted by id.
func (g *Registry) Visible() []*Track {
	out := make([]*Track, 0, len(g.tracks))
	for _, tr := range g.tracks {
		if tr.State != TrackLost {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every retained track, lost included, sorted by id.
func (g *Registry) All() []*Track {
	out := make([]*Track, 0, len(g.tracks))
	for _, tr := range g.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a track by id, or nil.
func (g *Registry) Get(id int64) *Track { return g.tracks[id] }

// Counts returns the number of tracks per lifecycle state.
func (g *Registry) Counts() map[TrackState]int {
	counts := make(map[TrackState]int)
	for _, tr := range g.tracks {
		counts[tr.State]++
	}
	return counts
}

// associate builds the gated cost matrix and solves it. Returns, per
// detection index, the candidate index it matched or -1.
func (g *Registry) associate(dets []detect.Detection, candidates []*Track) []int {
	if len(dets) == 0 {
		return nil
	}
	if len(candidates) == 0 {
		assigned := make([]int, len(dets))
		for i := range assigned {
			assigned[i] = -1
		}
		return assigned
	}

	cost := make([][]float64, len(dets))
	for di, d := range dets {
		row := make([]float64, len(candidates))
		dc := d.Rect.Center()
		for ci, tr := range candidates {
			gate := g.cfg.MaxMatchDistPx
			if tr.State == TrackLost {
				gate *= g.cfg.LostMatchFactor
			}
			dist := geom.Dist(dc, tr.Centroid())
			if dist > gate {
				row[ci] = ForbiddenCost
			} else {
				row[ci] = dist
			}
		}
		cost[di] = row
	}
	return SolveAssignment(cost)
}

// applyMatch updates a track with its matched detection and runs the motion
// classifier.
func (g *Registry) applyMatch(tr *Track, d detect.Detection, ts float64) {
	if tr.State == TrackLost {
		g.reacquire(tr, ts)
	}

	tr.recordObservation(d.Rect, ts, g.cfg.VelocityWindow)
	tr.FeetVisible = d.FeetVisible(g.cfg.KeypointConfidence)

	if tr.State == TrackNew && tr.Hits >= g.cfg.HitsToActivate {
		tr.State = TrackActive
	}

	classifyMotion(tr, g.cfg.Motion, ts)
}

// reacquire restores a lost track to its pre-occlusion state.
func (g *Registry) reacquire(tr *Track, ts float64) {
	restored := tr.stateBeforeLost
	if restored == "" || restored == TrackNew {
		restored = TrackActive
	}
	// A settling track lost mid-countdown restarts stillness from scratch;
	// its SeatedSince was cleared when it went lost.
	if restored == TrackSettling {
		restored = TrackActive
	}
	tr.State = restored
	tr.LostSince = unsetTime
	tr.Misses = 0
	// The occlusion gap must not register as a motion spike.
	tr.speedWindow = nil
	tr.Velocity = 0
	monitoring.Debugf("tracks: reacquired track %d as %s", tr.ID, restored)
}

// markLost records that a track stopped matching as of ts.
func (g *Registry) markLost(tr *Track, ts float64) {
	tr.stateBeforeLost = tr.State
	tr.State = TrackLost
	tr.LostSince = ts
	if tr.stateBeforeLost != TrackSeated {
		// Seated tracks keep their seating timer through short occlusions;
		// everything else restarts stillness from scratch on reacquire.
		tr.SeatedSince = unsetTime
	}
}

// expireLost permanently removes lost tracks past the TTL. Track ids are
// never reassigned.
func (g *Registry) expireLost(now float64) {
	for id, tr := range g.tracks {
		if tr.State == TrackLost && now-tr.LostSince > g.cfg.TTLLostSeconds {
			delete(g.tracks, id)
			monitoring.Debugf("tracks: removed track %d (lost %.1fs)", id, now-tr.LostSince)
		}
	}
}

// spawn creates a new track from an unassociated detection.
func (g *Registry) spawn(d detect.Detection, ts float64) *Track {
	tr := &Track{
		ID:          g.nextID,
		State:       TrackNew,
		Rect:        d.Rect,
		Hits:        1,
		FirstSeen:   ts,
		LastSeen:    ts,
		SeatedSince: unsetTime,
		LostSince:   unsetTime,
		Role:        RoleUnknown,
		History:     []TrackPoint{{Timestamp: ts, Pos: d.Rect.Center()}},
	}
	g.nextID++
	g.tracks[tr.ID] = tr
	return tr
}

func (g *Registry) sortedTracks() []*Track {
	out := make([]*Track, 0, len(g.tracks))
	for _, tr := range g.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
