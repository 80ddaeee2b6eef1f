// Command occupancy runs the table occupancy pipeline over a stream of
// person detections (JSON lines on stdin or from a file), persisting the
// per-frame events to sqlite and optionally exporting them as CSV.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/occupancy.report/internal/occupancy/config"
	"github.com/banshee-data/occupancy.report/internal/occupancy/detect"
	"github.com/banshee-data/occupancy.report/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.report/internal/occupancy/storage/sqlite"
)

var (
	tablesPath = flag.String("tables", "", "Table geometry YAML (required)")
	input      = flag.String("detections", "-", "Detections JSONL file, or - for stdin")
	dbPath     = flag.String("db", "occupancy.db", "Event database path; empty disables persistence")
	csvPath    = flag.String("csv", "", "Write the run's events as CSV to this path, or - for stdout")
	queueSize  = flag.Int("queue", pipeline.DefaultQueueSize, "Frame queue depth before ingestion blocks")
	confThr    = flag.Float64("conf", 0, "Override the detection confidence threshold")
)

// inputLine is one line of detector output. A line with gap set announces
// skipped frames instead of carrying detections.
type inputLine struct {
	detect.Frame
	Gap bool `json:"gap,omitempty"`
}

func main() {
	flag.Parse()

	if *tablesPath == "" {
		log.Fatal("the -tables flag is required")
	}

	if err := run(); err != nil {
		log.Fatalf("occupancy: %v", err)
	}
}

func run() error {
	tbls, params, err := config.LoadTables(*tablesPath)
	if err != nil {
		return err
	}
	if *confThr > 0 {
		params.ConfThr = *confThr
		if params, err = params.Normalize(); err != nil {
			return err
		}
	}

	var store *sqlite.EventStore
	var runID string
	var sink pipeline.EventSink
	if *dbPath != "" {
		store, err = sqlite.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runID, err = store.BeginRun(*tablesPath, params)
		if err != nil {
			return err
		}
		sink = sqlite.NewStoreSink(store, runID)
	}

	engine, err := pipeline.NewEngine(pipeline.Config{
		Params: params,
		Tables: tbls,
		Sink:   sink,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := pipeline.NewRuntime(engine, *queueSize)
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	if err := feed(ctx, rt); err != nil {
		// The consumer error, if any, is the more useful one.
		select {
		case consumeErr := <-runDone:
			if consumeErr != nil {
				return consumeErr
			}
		default:
		}
		return err
	}
	rt.Close()
	if err := <-runDone; err != nil {
		return err
	}

	stats := engine.Stats()
	log.Printf("processed %d frames, %d events (%d/%d detections dropped)",
		stats.Frames, stats.Events, stats.DetectionsDropped, stats.DetectionsSeen)

	if store != nil {
		if err := store.FinishRun(runID, stats); err != nil {
			return err
		}
		log.Printf("run %s recorded in %s", runID, *dbPath)
		if *csvPath != "" {
			if err := exportCSV(store, runID, *csvPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// feed reads detection lines and submits them to the runtime until EOF or
// cancellation.
func feed(ctx context.Context, rt *pipeline.Runtime) error {
	var r io.Reader
	if *input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("open detections: %w", err)
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	// Crowded frames with keypoints run long; give the scanner headroom.
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line inputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("detections line %d: %w", lineNo, err)
		}
		var err error
		if line.Gap {
			err = rt.SubmitGap(ctx, line.Index, line.Timestamp)
		} else {
			err = rt.Submit(ctx, line.Frame)
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func exportCSV(store *sqlite.EventStore, runID, path string) error {
	var w io.Writer
	if path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer f.Close()
		w = f
	}
	return store.ExportCSV(w, runID)
}
