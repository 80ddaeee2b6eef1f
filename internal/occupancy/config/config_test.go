package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tables:
  - id: "01"
    capacity: 4
    polygon: [[100, 100], [300, 100], [300, 300], [100, 300]]
  - id: "02"
    capacity: 2
    polygon: [[320, 100], [520, 100], [520, 300], [320, 300]]
    iop_thr: 0.25
    y_band: [100, 250]
params:
  conf_thr: 0.6
  hist_frames: 6
`

func TestParseTables(t *testing.T) {
	tbls, params, err := ParseTables([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, tbls, 2)

	assert.Equal(t, "01", tbls[0].ID)
	assert.Equal(t, 4, tbls[0].Capacity)
	assert.Len(t, tbls[0].Polygon, 4)
	assert.Zero(t, tbls[0].OccupancyThreshold, "unset per-table threshold stays zero so the analyzer default applies")

	assert.Equal(t, 0.25, tbls[1].OccupancyThreshold)
	require.NotNil(t, tbls[1].YBand)
	assert.Equal(t, [2]float64{100, 250}, *tbls[1].YBand)

	// File params override defaults; everything else falls through.
	assert.Equal(t, 0.6, params.ConfThr)
	assert.Equal(t, 6, params.HistFrames)
	assert.Equal(t, 32.0, params.VThrPxS)
	assert.Equal(t, 1280, params.FrameWidth)
}

func TestLoadTablesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	tbls, _, err := LoadTables(path)
	require.NoError(t, err)
	assert.Len(t, tbls, 2)

	_, _, err = LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseTablesRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no tables", `tables: []`},
		{"duplicate id", `
tables:
  - id: "01"
    polygon: [[0, 0], [10, 0], [10, 10]]
  - id: "01"
    polygon: [[20, 0], [30, 0], [30, 10]]
`},
		{"too few vertices", `
tables:
  - id: "01"
    polygon: [[0, 0], [10, 0]]
`},
		{"zero area", `
tables:
  - id: "01"
    polygon: [[0, 0], [10, 0], [20, 0]]
`},
		{"threshold out of range", `
tables:
  - id: "01"
    polygon: [[0, 0], [10, 0], [10, 10]]
    iop_thr: 1.5
`},
		{"not yaml", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseTables([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParamsNormalize(t *testing.T) {
	p, err := Params{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), p)

	p, err = Params{SitSeconds: 3.5}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 3.5, p.SitSeconds)
	assert.Equal(t, 11.0, p.TTLLost)

	_, err = Params{ConfThr: 2.0}.Normalize()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "conf_thr", cfgErr.Field)

	_, err = Params{HistFrames: -3}.Normalize()
	assert.Error(t, err)
}
