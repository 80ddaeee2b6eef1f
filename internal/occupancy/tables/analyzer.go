// Package tables computes per-frame table occupancy from seated customer
// tracks and the static table geometry. The analyzer is pure: it holds no
// state across frames, so all temporal smoothing lives upstream in the
// motion classifier and downstream in the engine's vote window.
package tables

import (
	"sort"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tracks"
)

// Table is a static configured region. Capacity is informational only.
type Table struct {
	ID       string
	Capacity int
	Polygon  geom.Polygon

	// OccupancyThreshold is the fraction of a detection box that must
	// intersect the polygon to count as at this table. Zero means use the
	// analyzer default.
	OccupancyThreshold float64

	// YBand optionally restricts assignment to tracks whose centroid lies
	// inside a vertical band [min, max], for cameras where a far table
	// overlaps a near walkway in image space.
	YBand *[2]float64
}

// Threshold returns the table's effective occupancy threshold.
func (t Table) Threshold(fallback float64) float64 {
	if t.OccupancyThreshold > 0 {
		return t.OccupancyThreshold
	}
	return fallback
}

// TableStatus is the per-frame derived occupancy of one table. Computed and
// discarded each frame; no history is retained on the table itself.
type TableStatus struct {
	TableID        string
	AssignedTracks []int64
	Occupied       bool
	PeopleSeated   int
}

// DefaultOccupancyThreshold is the intersection-over-person fraction used
// when a table does not configure its own.
const DefaultOccupancyThreshold = 0.12

// Analyzer assigns seated customer tracks to tables.
type Analyzer struct {
	tables           []Table
	defaultThreshold float64
}

// NewAnalyzer builds an analyzer over the configured tables. Tables are
// evaluated in ascending id order, which is what makes equal-ratio
// assignment ties deterministic.
func NewAnalyzer(tbls []Table, defaultThreshold float64) *Analyzer {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultOccupancyThreshold
	}
	sorted := make([]Table, len(tbls))
	copy(sorted, tbls)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Analyzer{tables: sorted, defaultThreshold: defaultThreshold}
}

// Analyze computes the occupancy of every table for one frame. Only seated,
// customer-role tracks count; a track assigns to at most one table (the one
// with the highest intersection-over-person ratio above threshold, ties to
// the smallest table id), so one person can never occupy two adjacent ROIs.
func (a *Analyzer) Analyze(trs []*tracks.Track) []TableStatus {
	statuses := make([]TableStatus, len(a.tables))
	for i, tbl := range a.tables {
		statuses[i] = TableStatus{TableID: tbl.ID}
	}

	for _, tr := range trs {
		if !tr.Seated() || tr.Role != tracks.RoleCustomer {
			continue
		}

		best := -1
		bestRatio := 0.0
		for i, tbl := range a.tables {
			if tbl.YBand != nil {
				cy := tr.Centroid().Y
				if cy < tbl.YBand[0] || cy > tbl.YBand[1] {
					continue
				}
			}
			// The overlap must strictly exceed the threshold; a box sitting
			// exactly at it does not count.
			ratio := tbl.Polygon.IntersectionOverRect(tr.Rect)
			if ratio <= tbl.Threshold(a.defaultThreshold) {
				continue
			}
			// Strict comparison: the first (smallest-id) table wins ties.
			if ratio > bestRatio {
				bestRatio = ratio
				best = i
			}
		}

		if best >= 0 {
			statuses[best].AssignedTracks = append(statuses[best].AssignedTracks, tr.ID)
		}
	}

	for i := range statuses {
		statuses[i].PeopleSeated = len(statuses[i].AssignedTracks)
		statuses[i].Occupied = statuses[i].PeopleSeated > 0
	}
	return statuses
}

// Tables returns the analyzer's tables in evaluation (ascending id) order.
func (a *Analyzer) Tables() []Table { return a.tables }
