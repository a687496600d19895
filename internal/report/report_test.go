package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/sim"
)

func testRun(t *testing.T) Run {
	t.Helper()
	p := sim.Params{InitialSpeedKph: 80, TotalDistanceM: 100, Zone: physics.Urban, Weather: physics.Snowy}
	res, err := engine.Simulate(p, engine.SimulateOptions{
		FrameInterval: 50 * time.Millisecond,
		Brake:         true,
		BrakeAtS:      0.5,
	})
	require.NoError(t, err)
	return Run{RunID: res.RunID, Params: p, Verdict: res.Verdict, Samples: res.State.History}
}

func TestDashboard(t *testing.T) {
	run := testRun(t)

	var buf bytes.Buffer
	require.NoError(t, Dashboard(&buf, run, Options{AssetsHost: "/static/echarts/"}))
	html := buf.String()

	for _, want := range []string{"Position", "Speed", "Friction force", "Acceleration", run.RunID, "/static/echarts/", "weather=snowy"} {
		assert.Contains(t, html, want)
	}
	assert.Equal(t, 4, strings.Count(html, "echarts.init("), "expected one chart per telemetry series")
}

func TestDashboard_Units(t *testing.T) {
	run := testRun(t)

	var buf bytes.Buffer
	require.NoError(t, Dashboard(&buf, run, Options{Units: "mph"}))
	assert.Contains(t, buf.String(), `"name":"mph"`)
	assert.Contains(t, buf.String(), DefaultAssetsHost)
}

func TestDashboard_NoSamples(t *testing.T) {
	var buf bytes.Buffer
	err := Dashboard(&buf, Run{RunID: "empty"}, Options{})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestWritePNG(t *testing.T) {
	run := testRun(t)

	for _, kind := range []PlotKind{PlotSpeed, PlotPosition} {
		t.Run(string(kind), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePNG(&buf, run, kind, Options{}))
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")), "output is not a PNG")
		})
	}
}

func TestWritePNG_NoSamples(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WritePNG(&buf, Run{RunID: "empty"}, PlotSpeed, Options{}))
}

func TestParsePlotKind(t *testing.T) {
	tests := []struct {
		in      string
		want    PlotKind
		wantErr bool
	}{
		{"", PlotSpeed, false},
		{"speed", PlotSpeed, false},
		{"position", PlotPosition, false},
		{"energy", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlotKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSubtitle(t *testing.T) {
	run := Run{Params: sim.Params{InitialSpeedKph: 50, TotalDistanceM: 200, Zone: physics.Urban}}
	assert.Equal(t, "zone=urban initial=50 km/h distance=200 m", subtitle(run))

	run.Verdict = &sim.Verdict{ExceededLimit: true}
	assert.True(t, strings.HasSuffix(subtitle(run), "SPEEDING"))
}
