package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tracks"
)

func seatedCustomer(id int64, r geom.Rect) *tracks.Track {
	return &tracks.Track{
		ID:    id,
		State: tracks.TrackSeated,
		Rect:  r,
		Role:  tracks.RoleCustomer,
	}
}

func twoTables() []Table {
	return []Table{
		{ID: "01", Capacity: 4, Polygon: geom.Polygon{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 300, Y: 300}, {X: 100, Y: 300}}},
		{ID: "02", Capacity: 4, Polygon: geom.Polygon{{X: 320, Y: 100}, {X: 520, Y: 100}, {X: 520, Y: 300}, {X: 320, Y: 300}}},
	}
}

func TestAnalyzeAssignsSeatedCustomer(t *testing.T) {
	a := NewAnalyzer(twoTables(), 0.12)

	// Box fully inside table 01.
	tr := seatedCustomer(1, geom.Rect{X1: 150, Y1: 150, X2: 210, Y2: 280})
	statuses := a.Analyze([]*tracks.Track{tr})

	require.Len(t, statuses, 2)
	assert.Equal(t, "01", statuses[0].TableID)
	assert.True(t, statuses[0].Occupied)
	assert.Equal(t, 1, statuses[0].PeopleSeated)
	assert.Equal(t, []int64{1}, statuses[0].AssignedTracks)
	assert.False(t, statuses[1].Occupied)
}

func TestAnalyzeExcludesNonSeatedAndNonCustomer(t *testing.T) {
	a := NewAnalyzer(twoTables(), 0.12)
	inside := geom.Rect{X1: 150, Y1: 150, X2: 210, Y2: 280}

	moving := seatedCustomer(1, inside)
	moving.State = tracks.TrackActive

	staff := seatedCustomer(2, inside)
	staff.Role = tracks.RoleStaff

	unknown := seatedCustomer(3, inside)
	unknown.Role = tracks.RoleUnknown

	statuses := a.Analyze([]*tracks.Track{moving, staff, unknown})
	assert.False(t, statuses[0].Occupied, "moving, staff and unclassified tracks must not count")
	assert.Equal(t, 0, statuses[0].PeopleSeated)
}

func TestAnalyzeMutualExclusivity(t *testing.T) {
	a := NewAnalyzer(twoTables(), 0.12)

	// Box straddling the boundary between the two tables; more of it over
	// table 02.
	tr := seatedCustomer(1, geom.Rect{X1: 280, Y1: 150, X2: 400, Y2: 280})
	statuses := a.Analyze([]*tracks.Track{tr})

	total := statuses[0].PeopleSeated + statuses[1].PeopleSeated
	assert.Equal(t, 1, total, "a track assigns to at most one table")
	assert.True(t, statuses[1].Occupied, "the higher-overlap table wins")
	assert.False(t, statuses[0].Occupied)
}

func TestAnalyzeEqualRatioTieBreaksToSmallestID(t *testing.T) {
	// Two identical tables equidistant from the detection: the overlap
	// ratios are exactly equal, so table 01 must win every time.
	tbls := []Table{
		{ID: "02", Polygon: geom.Polygon{{X: 200, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 200}, {X: 200, Y: 200}}},
		{ID: "01", Polygon: geom.Polygon{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 200}, {X: 0, Y: 200}}},
	}
	a := NewAnalyzer(tbls, 0.12)

	tr := seatedCustomer(7, geom.Rect{X1: 50, Y1: 50, X2: 250, Y2: 150})
	for i := 0; i < 20; i++ {
		statuses := a.Analyze([]*tracks.Track{tr})
		require.Equal(t, "01", statuses[0].TableID)
		assert.True(t, statuses[0].Occupied, "equal-ratio tie must deterministically go to the smallest table id")
		assert.False(t, statuses[1].Occupied)
	}
}

func TestAnalyzeBelowThresholdNotAssigned(t *testing.T) {
	a := NewAnalyzer(twoTables(), 0.12)

	// Only a sliver of the box overlaps table 01 (about 9% of its area).
	tr := seatedCustomer(1, geom.Rect{X1: 0, Y1: 150, X2: 110, Y2: 280})
	statuses := a.Analyze([]*tracks.Track{tr})
	assert.False(t, statuses[0].Occupied)
}

func TestAnalyzeExactThresholdNotAssigned(t *testing.T) {
	tbls := twoTables()
	tbls[0].OccupancyThreshold = 0.25
	a := NewAnalyzer(tbls, 0.12)

	// Exactly a quarter of the 100x100 box overlaps table 01 (the 50x50
	// corner at (100,100)). The overlap must exceed the threshold, so a
	// ratio equal to it does not assign.
	at := seatedCustomer(1, geom.Rect{X1: 50, Y1: 50, X2: 150, Y2: 150})
	statuses := a.Analyze([]*tracks.Track{at})
	assert.False(t, statuses[0].Occupied, "ratio equal to the threshold must not count as occupied")

	// One pixel deeper and the ratio crosses the threshold.
	over := seatedCustomer(2, geom.Rect{X1: 51, Y1: 50, X2: 151, Y2: 150})
	statuses = a.Analyze([]*tracks.Track{over})
	assert.True(t, statuses[0].Occupied)
}

func TestAnalyzePerTableThresholdOverride(t *testing.T) {
	tbls := twoTables()
	tbls[0].OccupancyThreshold = 0.9 // Nearly full containment required.
	a := NewAnalyzer(tbls, 0.12)

	// Half the box overlaps table 01: passes the default but not 0.9.
	tr := seatedCustomer(1, geom.Rect{X1: 250, Y1: 150, X2: 350, Y2: 250})
	statuses := a.Analyze([]*tracks.Track{tr})
	assert.False(t, statuses[0].Occupied)
}

func TestAnalyzeYBandFilter(t *testing.T) {
	tbls := twoTables()
	band := [2]float64{100, 200}
	tbls[0].YBand = &band
	a := NewAnalyzer(tbls, 0.12)

	// Inside the polygon but centroid below the band.
	tr := seatedCustomer(1, geom.Rect{X1: 150, Y1: 220, X2: 210, Y2: 290})
	statuses := a.Analyze([]*tracks.Track{tr})
	assert.False(t, statuses[0].Occupied, "tracks outside the vertical band must not assign")
}

func TestAnalyzeCountBoundedBySeatedCustomers(t *testing.T) {
	a := NewAnalyzer(twoTables(), 0.12)

	trs := []*tracks.Track{
		seatedCustomer(1, geom.Rect{X1: 120, Y1: 150, X2: 180, Y2: 280}),
		seatedCustomer(2, geom.Rect{X1: 220, Y1: 150, X2: 280, Y2: 280}),
		seatedCustomer(3, geom.Rect{X1: 360, Y1: 150, X2: 420, Y2: 280}),
	}
	statuses := a.Analyze(trs)

	var total int
	for _, s := range statuses {
		total += s.PeopleSeated
	}
	assert.LessOrEqual(t, total, len(trs))
	assert.Equal(t, 2, statuses[0].PeopleSeated)
	assert.Equal(t, 1, statuses[1].PeopleSeated)
}
