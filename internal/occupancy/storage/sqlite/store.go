// Package sqlite persists occupancy runs and their per-frame events, and
// exports them as CSV for downstream analysis.
package sqlite

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy/config"
	"github.com/banshee-data/occupancy.report/internal/occupancy/pipeline"
)

// EventStore wraps the sqlite database holding runs and events.
type EventStore struct {
	*sql.DB
}

// Open opens (or creates) the database at path and brings the schema up to
// date.
func Open(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; the busy timeout covers readers polling mid-run.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &EventStore{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID      string
	StartedAt  string
	FinishedAt string
	TablesFile string
	Frames     int64
	Events     int64
}

// BeginRun records a new analysis run and returns its id.
func (s *EventStore) BeginRun(tablesFile string, params config.Params) (string, error) {
	runID := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	_, err = s.Exec(
		`INSERT INTO occupancy_runs (run_id, started_at, tables_file, params_json) VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), tablesFile, string(paramsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	monitoring.Logf("storage: started run %s", runID)
	return runID, nil
}

// FinishRun stamps a run's end time and final counters.
func (s *EventStore) FinishRun(runID string, stats pipeline.Stats) error {
	_, err := s.Exec(
		`UPDATE occupancy_runs SET finished_at = ?, frames = ?, events = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), stats.Frames, stats.Events, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// InsertEvents writes one frame's events in a single transaction.
func (s *EventStore) InsertEvents(runID string, events []pipeline.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin event insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO occupancy_events (run_id, frame_index, event_time, table_id, occupied, people_seated)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		occupied := 0
		if ev.Occupied {
			occupied = 1
		}
		if _, err := stmt.Exec(runID, ev.FrameIndex, ev.Timestamp, ev.TableID, occupied, ev.PeopleSeated); err != nil {
			return fmt.Errorf("insert event frame %d table %s: %w", ev.FrameIndex, ev.TableID, err)
		}
	}
	return tx.Commit()
}

// EventsForRun returns a run's events ordered by frame then table id.
func (s *EventStore) EventsForRun(runID string) ([]pipeline.Event, error) {
	rows, err := s.Query(
		`SELECT frame_index, event_time, table_id, occupied, people_seated
		 FROM occupancy_events WHERE run_id = ? ORDER BY frame_index, table_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []pipeline.Event
	for rows.Next() {
		var ev pipeline.Event
		var occupied int
		if err := rows.Scan(&ev.FrameIndex, &ev.Timestamp, &ev.TableID, &occupied, &ev.PeopleSeated); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Occupied = occupied != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *EventStore) Runs() ([]RunSummary, error) {
	rows, err := s.Query(
		`SELECT run_id, started_at, COALESCE(finished_at, ''), COALESCE(tables_file, ''), frames, events
		 FROM occupancy_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.TablesFile, &r.Frames, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunParams returns the parameter set a run was recorded with.
func (s *EventStore) RunParams(runID string) (config.Params, error) {
	var raw string
	err := s.QueryRow(`SELECT COALESCE(params_json, '{}') FROM occupancy_runs WHERE run_id = ?`, runID).Scan(&raw)
	if err != nil {
		return config.Params{}, fmt.Errorf("query params for run %s: %w", runID, err)
	}
	var params config.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return config.Params{}, fmt.Errorf("decode params for run %s: %w", runID, err)
	}
	return params, nil
}

// TableIDs returns the distinct table ids a run emitted events for.
func (s *EventStore) TableIDs(runID string) ([]string, error) {
	rows, err := s.Query(
		`SELECT DISTINCT table_id FROM occupancy_events WHERE run_id = ? ORDER BY table_id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query table ids for run %s: %w", runID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExportCSV streams a run's events as CSV in the stable column layout
// frame,time,table_id,occupied,people_seated.
func (s *EventStore) ExportCSV(w io.Writer, runID string) error {
	events, err := s.EventsForRun(runID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"frame", "time", "table_id", "occupied", "people_seated"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		occupied := "0"
		if ev.Occupied {
			occupied = "1"
		}
		record := []string{
			strconv.FormatInt(ev.FrameIndex, 10),
			strconv.FormatFloat(ev.Timestamp, 'f', 3, 64),
			ev.TableID,
			occupied,
			strconv.Itoa(ev.PeopleSeated),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
