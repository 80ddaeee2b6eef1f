// Package config loads the table geometry file and holds the tunable
// parameters of the occupancy pipeline. Everything here is immutable after
// load; invalid configuration fails fast with a ConfigurationError before
// the engine starts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/occupancy.report/internal/geom"
	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy/tables"
)

// ConfigurationError reports invalid configuration detected at
// initialisation. The engine never starts on one of these.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Params are the injected tunables of the analysis core. Zero values are
// replaced by DefaultParams values when loaded through Normalize.
type Params struct {
	FrameWidth  int `yaml:"frame_width" json:"frame_width"`
	FrameHeight int `yaml:"frame_height" json:"frame_height"`

	ConfThr     float64 `yaml:"conf_thr" json:"conf_thr"`
	MinBBoxFrac float64 `yaml:"min_bbox_frac" json:"min_bbox_frac"`
	MaxBBoxFrac float64 `yaml:"max_bbox_frac" json:"max_bbox_frac"`

	VThrPxS           float64 `yaml:"v_thr_px_s" json:"v_thr_px_s"`
	SitSeconds        float64 `yaml:"sit_seconds" json:"sit_seconds"`
	TTLLost           float64 `yaml:"ttl_lost" json:"ttl_lost"`
	MaxDisplacementPx float64 `yaml:"max_displacement_px" json:"max_displacement_px"`
	WalkSpeedPxS      float64 `yaml:"walk_speed_px_s" json:"walk_speed_px_s"`
	MaxSpeedPxS       float64 `yaml:"max_speed_px_s" json:"max_speed_px_s"`

	OccupancyThreshold float64 `yaml:"occupancy_threshold" json:"occupancy_threshold"`
	HistFrames         int     `yaml:"hist_frames" json:"hist_frames"`

	MinAspectRatio float64 `yaml:"min_aspect_ratio" json:"min_aspect_ratio"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio"`
}

// DefaultParams returns the tuned defaults for a 1280x720 stream.
func DefaultParams() Params {
	return Params{
		FrameWidth:         1280,
		FrameHeight:        720,
		ConfThr:            0.5,
		MinBBoxFrac:        0.001,
		MaxBBoxFrac:        0.09,
		VThrPxS:            32.0,
		SitSeconds:         2.0,
		TTLLost:            11.0,
		MaxDisplacementPx:  75.0,
		WalkSpeedPxS:       12.0,
		MaxSpeedPxS:        80.0,
		OccupancyThreshold: tables.DefaultOccupancyThreshold,
		HistFrames:         1,
		MinAspectRatio:     0.35,
		MaxAspectRatio:     2.9,
	}
}

// Normalize fills unset fields from the defaults and validates the result.
func (p Params) Normalize() (Params, error) {
	d := DefaultParams()
	if p.FrameWidth == 0 {
		p.FrameWidth = d.FrameWidth
	}
	if p.FrameHeight == 0 {
		p.FrameHeight = d.FrameHeight
	}
	if p.ConfThr == 0 {
		p.ConfThr = d.ConfThr
	}
	if p.MinBBoxFrac == 0 {
		p.MinBBoxFrac = d.MinBBoxFrac
	}
	if p.MaxBBoxFrac == 0 {
		p.MaxBBoxFrac = d.MaxBBoxFrac
	}
	if p.VThrPxS == 0 {
		p.VThrPxS = d.VThrPxS
	}
	if p.SitSeconds == 0 {
		p.SitSeconds = d.SitSeconds
	}
	if p.TTLLost == 0 {
		p.TTLLost = d.TTLLost
	}
	if p.MaxDisplacementPx == 0 {
		p.MaxDisplacementPx = d.MaxDisplacementPx
	}
	if p.WalkSpeedPxS == 0 {
		p.WalkSpeedPxS = d.WalkSpeedPxS
	}
	if p.MaxSpeedPxS == 0 {
		p.MaxSpeedPxS = d.MaxSpeedPxS
	}
	if p.OccupancyThreshold == 0 {
		p.OccupancyThreshold = d.OccupancyThreshold
	}
	if p.HistFrames == 0 {
		p.HistFrames = d.HistFrames
	}
	if p.MinAspectRatio == 0 {
		p.MinAspectRatio = d.MinAspectRatio
	}
	if p.MaxAspectRatio == 0 {
		p.MaxAspectRatio = d.MaxAspectRatio
	}
	return p, p.validate()
}

func (p Params) validate() error {
	switch {
	case p.FrameWidth < 1 || p.FrameHeight < 1:
		return &ConfigurationError{Field: "frame size", Reason: "must be positive"}
	case p.ConfThr < 0 || p.ConfThr > 1:
		return &ConfigurationError{Field: "conf_thr", Reason: "must be in [0, 1]"}
	case p.VThrPxS <= 0:
		return &ConfigurationError{Field: "v_thr_px_s", Reason: "must be positive"}
	case p.SitSeconds <= 0:
		return &ConfigurationError{Field: "sit_seconds", Reason: "must be positive"}
	case p.TTLLost <= 0:
		return &ConfigurationError{Field: "ttl_lost", Reason: "must be positive"}
	case p.MaxSpeedPxS <= p.WalkSpeedPxS:
		return &ConfigurationError{Field: "max_speed_px_s", Reason: "must exceed walk_speed_px_s"}
	case p.OccupancyThreshold <= 0 || p.OccupancyThreshold > 1:
		return &ConfigurationError{Field: "occupancy_threshold", Reason: "must be in (0, 1]"}
	case p.HistFrames < 1:
		return &ConfigurationError{Field: "hist_frames", Reason: "must be at least 1"}
	}
	return nil
}

// tableSpec is the YAML shape of one table entry. The key names match the
// ROI tagger output format.
type tableSpec struct {
	ID       string       `yaml:"id"`
	Capacity int          `yaml:"capacity"`
	Polygon  [][2]float64 `yaml:"polygon"`
	IoPThr   float64      `yaml:"iop_thr"`
	YBand    *[2]float64  `yaml:"y_band"`
}

type tablesFile struct {
	Tables []tableSpec `yaml:"tables"`
	Params *Params     `yaml:"params"`
}

// LoadTables reads the table geometry YAML. The file's optional params
// block overrides defaults; the second return value is the normalized
// parameter set.
func LoadTables(path string) ([]tables.Table, Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Params{}, fmt.Errorf("read tables file: %w", err)
	}
	return ParseTables(raw)
}

// ParseTables parses and validates table configuration YAML.
func ParseTables(raw []byte) ([]tables.Table, Params, error) {
	var f tablesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, Params{}, fmt.Errorf("parse tables file: %w", err)
	}

	params := Params{}
	if f.Params != nil {
		params = *f.Params
	}
	params, err := params.Normalize()
	if err != nil {
		return nil, Params{}, err
	}

	tbls := make([]tables.Table, 0, len(f.Tables))
	for _, spec := range f.Tables {
		poly := make(geom.Polygon, 0, len(spec.Polygon))
		for _, v := range spec.Polygon {
			poly = append(poly, geom.Point{X: v[0], Y: v[1]})
		}
		tbls = append(tbls, tables.Table{
			ID:                 spec.ID,
			Capacity:           spec.Capacity,
			Polygon:            poly,
			OccupancyThreshold: spec.IoPThr,
			YBand:              spec.YBand,
		})
	}

	if err := ValidateTables(tbls); err != nil {
		return nil, Params{}, err
	}
	return tbls, params, nil
}

// ValidateTables enforces the fatal configuration rules: at least one
// table, simple polygons with at least three vertices, unique ids, and
// positive thresholds. Non-convex polygons are tolerated with a warning
// because the clipping used for IoP is exact only for convex rings.
func ValidateTables(tbls []tables.Table) error {
	if len(tbls) == 0 {
		return &ConfigurationError{Field: "tables", Reason: "no tables configured"}
	}
	seen := make(map[string]bool, len(tbls))
	for _, t := range tbls {
		if t.ID == "" {
			return &ConfigurationError{Field: "table id", Reason: "empty"}
		}
		if seen[t.ID] {
			return &ConfigurationError{Field: "table " + t.ID, Reason: "duplicate id"}
		}
		seen[t.ID] = true
		if len(t.Polygon) < 3 {
			return &ConfigurationError{Field: "table " + t.ID, Reason: "polygon needs at least 3 vertices"}
		}
		if t.Polygon.Area() <= 0 {
			return &ConfigurationError{Field: "table " + t.ID, Reason: "polygon has zero area"}
		}
		if t.OccupancyThreshold < 0 || t.OccupancyThreshold > 1 {
			return &ConfigurationError{Field: "table " + t.ID, Reason: "occupancy threshold must be in [0, 1]"}
		}
		if !t.Polygon.IsConvex() {
			monitoring.Logf("config: table %s polygon is not convex; intersection ratios will be approximate", t.ID)
		}
	}
	return nil
}
