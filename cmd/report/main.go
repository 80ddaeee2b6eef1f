// Command report renders a recorded occupancy run as an HTML chart: one
// line per table showing people seated over video time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/occupancy.report/internal/occupancy/pipeline"
	"github.com/banshee-data/occupancy.report/internal/occupancy/storage/sqlite"
)

var (
	dbPath  = flag.String("db", "occupancy.db", "Event database path")
	runID   = flag.String("run", "", "Run id to render; empty means the most recent run")
	outPath = flag.String("out", "occupancy.html", "Output HTML path")
	list    = flag.Bool("list", false, "List recorded runs and exit")
)

func main() {
	flag.Parse()

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("report: %v", err)
	}
	defer store.Close()

	if *list {
		if err := listRuns(store); err != nil {
			log.Fatalf("report: %v", err)
		}
		return
	}

	if err := render(store); err != nil {
		log.Fatalf("report: %v", err)
	}
}

func listRuns(store *sqlite.EventStore) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  started=%s  frames=%d  events=%d  tables=%s\n",
			r.RunID, r.StartedAt, r.Frames, r.Events, r.TablesFile)
	}
	return nil
}

func render(store *sqlite.EventStore) error {
	id := *runID
	if id == "" {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s", *dbPath)
		}
		id = runs[0].RunID
	}

	events, err := store.EventsForRun(id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("run %s has no events", id)
	}

	line := buildChart(id, events)

	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	log.Printf("wrote %s (%d events, run %s)", *outPath, len(events), id)
	return nil
}

// buildChart groups events by table and plots people seated against video
// time. Events arrive ordered by frame then table id, so each series stays
// time-ordered.
func buildChart(runID string, events []pipeline.Event) *charts.Line {
	var timeAxis []string
	seriesData := make(map[string][]opts.LineData)
	var tableIDs []string
	seenTable := make(map[string]bool)
	seenFrame := make(map[int64]bool)

	for _, ev := range events {
		if !seenFrame[ev.FrameIndex] {
			seenFrame[ev.FrameIndex] = true
			timeAxis = append(timeAxis, fmt.Sprintf("%.1f", ev.Timestamp))
		}
		if !seenTable[ev.TableID] {
			seenTable[ev.TableID] = true
			tableIDs = append(tableIDs, ev.TableID)
		}
		seriesData[ev.TableID] = append(seriesData[ev.TableID], opts.LineData{Value: ev.PeopleSeated})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Table Occupancy",
			Theme:     "dark",
			Width:     "1200px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "People seated per table",
			Subtitle: fmt.Sprintf("run %s", runID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "people seated"}),
	)

	line.SetXAxis(timeAxis)
	for _, id := range tableIDs {
		line.AddSeries("table "+id, seriesData[id])
	}
	return line
}
