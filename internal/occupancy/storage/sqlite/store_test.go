package sqlite

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/occupancy.report/internal/occupancy/config"
	"github.com/banshee-data/occupancy.report/internal/occupancy/pipeline"
)

func openTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "occupancy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents(frame int64, ts float64) []pipeline.Event {
	return []pipeline.Event{
		{FrameIndex: frame, Timestamp: ts, TableID: "01", Occupied: true, PeopleSeated: 2},
		{FrameIndex: frame, Timestamp: ts, TableID: "02", Occupied: false, PeopleSeated: 0},
	}
}

func TestOpenMigratesSchema(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// Reopening an already-migrated database is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestMigrateDownAndUp(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, s.MigrateUp())
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)

	params := config.DefaultParams()
	runID, err := s.BeginRun("tables.yaml", params)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, s.InsertEvents(runID, sampleEvents(0, 0.0)))
	require.NoError(t, s.InsertEvents(runID, sampleEvents(1, 0.1)))
	require.NoError(t, s.InsertEvents(runID, nil), "empty frames are a no-op")

	require.NoError(t, s.FinishRun(runID, pipeline.Stats{Frames: 2, Events: 4}))

	events, err := s.EventsForRun(runID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "01", events[0].TableID)
	assert.True(t, events[0].Occupied)
	assert.Equal(t, 2, events[0].PeopleSeated)
	assert.Equal(t, int64(1), events[2].FrameIndex)

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
	assert.Equal(t, "tables.yaml", runs[0].TablesFile)
	assert.Equal(t, int64(2), runs[0].Frames)
	assert.NotEmpty(t, runs[0].FinishedAt)

	got, err := s.RunParams(runID)
	require.NoError(t, err)
	assert.Equal(t, params, got)

	ids, err := s.TableIDs(runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, ids)
}

func TestRunsAreIsolated(t *testing.T) {
	s := openTestStore(t)

	first, err := s.BeginRun("a.yaml", config.DefaultParams())
	require.NoError(t, err)
	second, err := s.BeginRun("b.yaml", config.DefaultParams())
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.NoError(t, s.InsertEvents(first, sampleEvents(0, 0.0)))

	events, err := s.EventsForRun(second)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDuplicateEventRejected(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("tables.yaml", config.DefaultParams())
	require.NoError(t, err)

	require.NoError(t, s.InsertEvents(runID, sampleEvents(0, 0.0)))
	err = s.InsertEvents(runID, sampleEvents(0, 0.0))
	assert.Error(t, err, "one event per run, frame and table")
}

func TestExportCSV(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("tables.yaml", config.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, s.InsertEvents(runID, sampleEvents(30, 3.0)))

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf, runID))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "frame,time,table_id,occupied,people_seated", lines[0])
	assert.Equal(t, "30,3.000,01,1,2", lines[1])
	assert.Equal(t, "30,3.000,02,0,0", lines[2])
}

func TestStoreSink(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("tables.yaml", config.DefaultParams())
	require.NoError(t, err)

	var sink pipeline.EventSink = NewStoreSink(s, runID)
	require.NoError(t, sink.Emit(sampleEvents(0, 0.0)))

	events, err := s.EventsForRun(runID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
