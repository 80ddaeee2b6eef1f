// Package pipeline wires ingestion filtering, tracking, role classification
// and table analysis into a frame-ordered engine, and provides a bounded
// runtime for driving it from a detection stream.
package pipeline

import (
	"fmt"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy/config"
	"github.com/banshee-data/occupancy.report/internal/occupancy/detect"
	"github.com/banshee-data/occupancy.report/internal/occupancy/roles"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tables"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tracks"
)

// Event is one table's occupancy verdict for one frame. The engine emits
// exactly one event per configured table per processed frame, in ascending
// table id order.
type Event struct {
	FrameIndex   int64   `json:"frame"`
	Timestamp    float64 `json:"time"`
	TableID      string  `json:"table_id"`
	Occupied     bool    `json:"occupied"`
	PeopleSeated int     `json:"people_seated"`
}

// EventSink receives each frame's events as they are produced. Emit is
// called from the engine's goroutine; a sink error aborts the run.
type EventSink interface {
	Emit(events []Event) error
}

// SequenceError reports a frame arriving out of order. Frame ordering is a
// contract with the caller, not a recoverable condition: track velocities
// and seat timers are meaningless over a reordered stream.
type SequenceError struct {
	FrameIndex int64
	LastIndex  int64
	Reason     string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("frame %d after frame %d: %s", e.FrameIndex, e.LastIndex, e.Reason)
}

// Config assembles an engine. Zero-valued Params fields fall back to
// defaults; Tables must be non-empty and valid.
type Config struct {
	Params config.Params
	Tables []tables.Table

	// Roles overrides the role classifier thresholds. Zero value means
	// defaults.
	Roles roles.Config

	// Sink, if set, receives every frame's events in addition to the
	// ProcessFrame return value.
	Sink EventSink
}

// Stats are cumulative engine counters.
type Stats struct {
	Frames            int64
	Events            int64
	DetectionsSeen    int64
	DetectionsDropped int64
}

// Engine turns an ordered stream of detection frames into table occupancy
// events. Not safe for concurrent use; Runtime serialises access.
type Engine struct {
	cfg      Config
	params   config.Params
	filter   *detect.Filter
	registry *tracks.Registry
	roles    *roles.Classifier
	analyzer *tables.Analyzer

	// votes holds each table's trailing occupancy verdicts for the
	// majority-vote window. Keyed by table id, capped at HistFrames.
	votes map[string][]bool

	lastIndex int64
	lastTS    float64
	started   bool
	finalized bool
	frames    int64
	events    int64
}

// NewEngine validates the configuration and assembles the pipeline stages.
func NewEngine(cfg Config) (*Engine, error) {
	params, err := cfg.Params.Normalize()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateTables(cfg.Tables); err != nil {
		return nil, err
	}

	roleCfg := cfg.Roles
	if roleCfg == (roles.Config{}) {
		roleCfg = roles.DefaultConfig()
		roleCfg.WalkSpeedPxS = params.WalkSpeedPxS
		roleCfg.MaxSpeedPxS = params.MaxSpeedPxS
	}
	regions := make([]roles.Region, 0, len(cfg.Tables))
	for _, t := range cfg.Tables {
		regions = append(regions, roles.Region{ID: t.ID, Polygon: t.Polygon})
	}

	e := &Engine{
		cfg:      cfg,
		params:   params,
		filter:   detect.NewFilter(filterConfig(params)),
		registry: tracks.NewRegistry(registryConfig(params)),
		roles:    roles.NewClassifier(roleCfg, regions),
		analyzer: tables.NewAnalyzer(cfg.Tables, params.OccupancyThreshold),
		votes:    make(map[string][]bool, len(cfg.Tables)),
	}
	return e, nil
}

func filterConfig(p config.Params) detect.FilterConfig {
	cfg := detect.DefaultFilterConfig()
	cfg.FrameWidth = p.FrameWidth
	cfg.FrameHeight = p.FrameHeight
	cfg.ConfidenceThreshold = p.ConfThr
	cfg.MinBBoxFrac = p.MinBBoxFrac
	cfg.MaxBBoxFrac = p.MaxBBoxFrac
	cfg.MinAspectRatio = p.MinAspectRatio
	cfg.MaxAspectRatio = p.MaxAspectRatio
	return cfg
}

func registryConfig(p config.Params) tracks.RegistryConfig {
	cfg := tracks.DefaultRegistryConfig()
	cfg.TTLLostSeconds = p.TTLLost
	cfg.Motion.StillnessThresholdPxS = p.VThrPxS
	cfg.Motion.SitSeconds = p.SitSeconds
	cfg.Motion.MaxDisplacementPx = p.MaxDisplacementPx
	return cfg
}

// ProcessFrame ingests one frame and returns its events, one per table in
// ascending table id order. Frames must arrive with strictly increasing
// indexes and non-decreasing timestamps or the engine refuses the frame
// with a SequenceError.
func (e *Engine) ProcessFrame(frame detect.Frame) ([]Event, error) {
	if e.finalized {
		return nil, fmt.Errorf("engine is finalized")
	}
	if err := e.checkSequence(frame.Index, frame.Timestamp); err != nil {
		return nil, err
	}

	kept := e.filter.Apply(frame.Detections)
	visible := e.registry.Observe(kept, frame.Timestamp)
	for _, tr := range visible {
		e.roles.Update(tr, frame.Timestamp)
	}
	e.roles.Prune(frame.Timestamp)

	statuses := e.analyzer.Analyze(e.registry.All())
	events := e.vote(frame, statuses)

	e.frames++
	e.events += int64(len(events))

	if e.cfg.Sink != nil {
		if err := e.cfg.Sink.Emit(events); err != nil {
			return nil, fmt.Errorf("emit frame %d events: %w", frame.Index, err)
		}
	}
	return events, nil
}

// MarkGap announces that frames through throughIndex were skipped, with ts
// the timestamp the stream resumes at. Tracks age across the gap exactly as
// if the frames had arrived empty, so lost-track TTLs and seating timers
// stay honest.
func (e *Engine) MarkGap(throughIndex int64, ts float64) error {
	if e.finalized {
		return fmt.Errorf("engine is finalized")
	}
	if err := e.checkSequence(throughIndex, ts); err != nil {
		return err
	}
	e.registry.AdvanceGap(ts)
	// The vote window spans consecutive frames only.
	e.votes = make(map[string][]bool, len(e.cfg.Tables))
	e.lastIndex = throughIndex
	e.lastTS = ts
	monitoring.Logf("pipeline: gap through frame %d (t=%.2f)", throughIndex, ts)
	return nil
}

// Finalize ends the run. The engine accepts no further frames.
func (e *Engine) Finalize() error {
	if e.finalized {
		return nil
	}
	e.finalized = true
	counts := e.registry.Counts()
	monitoring.Logf("pipeline: finalized after %d frames, %d events (tracks: %v)", e.frames, e.events, counts)
	return nil
}

// Stats returns the engine's cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:            e.frames,
		Events:            e.events,
		DetectionsSeen:    e.filter.Seen,
		DetectionsDropped: e.filter.Dropped,
	}
}

// Tracks returns the current track set, lost included, sorted by id.
func (e *Engine) Tracks() []*tracks.Track { return e.registry.All() }

func (e *Engine) checkSequence(index int64, ts float64) error {
	if e.started {
		if index <= e.lastIndex {
			return &SequenceError{FrameIndex: index, LastIndex: e.lastIndex, Reason: "index not increasing"}
		}
		if ts < e.lastTS {
			return &SequenceError{FrameIndex: index, LastIndex: e.lastIndex, Reason: "timestamp regressed"}
		}
	}
	e.started = true
	e.lastIndex = index
	e.lastTS = ts
	return nil
}

// vote applies the majority window to each table's raw status and builds the
// frame's events. With HistFrames 1 the raw verdict passes through.
func (e *Engine) vote(frame detect.Frame, statuses []tables.TableStatus) []Event {
	events := make([]Event, 0, len(statuses))
	for _, s := range statuses {
		window := append(e.votes[s.TableID], s.Occupied)
		if len(window) > e.params.HistFrames {
			window = window[len(window)-e.params.HistFrames:]
		}
		e.votes[s.TableID] = window

		yes := 0
		for _, v := range window {
			if v {
				yes++
			}
		}
		occupied := yes*2 > len(window)

		seated := s.PeopleSeated
		if !occupied {
			seated = 0
		}
		events = append(events, Event{
			FrameIndex:   frame.Index,
			Timestamp:    frame.Timestamp,
			TableID:      s.TableID,
			Occupied:     occupied,
			PeopleSeated: seated,
		})
	}
	return events
}
