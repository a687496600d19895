package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/sim"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "speedtrap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func simulatedResult(t *testing.T, p sim.Params, brakeAt float64, at time.Time) engine.Result {
	t.Helper()
	res, err := engine.Simulate(p, engine.SimulateOptions{
		FrameInterval: 50 * time.Millisecond,
		Brake:         brakeAt >= 0,
		BrakeAtS:      brakeAt,
		Now:           func() time.Time { return at },
	})
	require.NoError(t, err)
	return res
}

func TestRecordResult_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	started := time.Date(2026, 4, 2, 9, 15, 30, 0, time.UTC)
	p := sim.Params{InitialSpeedKph: 100, TotalDistanceM: 120, Zone: physics.Urban, Weather: physics.Rainy}
	res := simulatedResult(t, p, -1, started)

	require.NoError(t, db.RecordResult(res))

	got, err := db.Run(res.RunID)
	require.NoError(t, err)

	assert.Equal(t, res.RunID, got.RunID)
	assert.WithinDuration(t, started, got.StartedAt, time.Millisecond)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.BrakedAtS)
	assert.Equal(t, len(res.State.History), got.SampleCount)
	if diff := cmp.Diff(p, got.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, got.Verdict)
	if diff := cmp.Diff(*res.Verdict, *got.Verdict); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}

	samples, err := db.Samples(res.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(res.State.History, samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResult_BrakedRun(t *testing.T) {
	db := setupTestDB(t)
	p := sim.Params{InitialSpeedKph: 90, TotalDistanceM: 250, Zone: physics.Residential, Weather: physics.Dry}
	res := simulatedResult(t, p, 1.0, time.Now())
	require.True(t, res.State.StoppedShort)

	require.NoError(t, db.RecordResult(res))

	got, err := db.Run(res.RunID)
	require.NoError(t, err)
	require.NotNil(t, got.BrakedAtS)
	assert.InDelta(t, res.State.BrakedAtS, *got.BrakedAtS, 1e-9)
	assert.True(t, got.StoppedShort)
	require.NotNil(t, got.Verdict)
	assert.True(t, got.Verdict.StoppedShort)
	assert.False(t, got.Verdict.ExceededLimit)
}

func TestRecordResult_Aborted(t *testing.T) {
	db := setupTestDB(t)
	res := engine.Result{
		RunID:     "aborted-run",
		StartedAt: time.Now(),
		Params:    sim.Params{InitialSpeedKph: 40, TotalDistanceM: 500, Zone: physics.Highway},
		State: sim.State{
			Phase:     sim.Terminated,
			BrakedAtS: -1,
			History:   []sim.Sample{{TimeS: 0, SpeedKph: 40}},
		},
		Err: engine.ErrRunTimeout,
	}
	require.NoError(t, db.RecordResult(res))

	got, err := db.Run("aborted-run")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, got.Status)
	assert.Equal(t, engine.ErrRunTimeout.Error(), got.Error)
	assert.Nil(t, got.Verdict)
	assert.Equal(t, 1, got.SampleCount)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	db := setupTestDB(t)
	rec := RunRecord{RunID: "dup", StartedAt: time.Now(), Params: sim.Params{Zone: physics.Urban}, Status: StatusCompleted}

	require.NoError(t, db.RecordRun(rec, nil))
	assert.Error(t, db.RecordRun(rec, []sim.Sample{{TimeS: 0}}))

	samples, err := db.Samples("dup")
	require.NoError(t, err)
	assert.Empty(t, samples, "failed insert must not leave samples behind")
}

func TestRuns_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := sim.Params{InitialSpeedKph: 50, TotalDistanceM: 20, Zone: physics.Urban}

	var ids []string
	for i := 0; i < 3; i++ {
		res := simulatedResult(t, p, -1, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.RecordResult(res))
		ids = append(ids, res.RunID)
	}

	runs, err := db.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})

	runs, err = db.Runs(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Run("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestDeleteRun(t *testing.T) {
	db := setupTestDB(t)
	res := simulatedResult(t, sim.Params{InitialSpeedKph: 70, TotalDistanceM: 30, Zone: physics.Highway}, -1, time.Now())
	require.NoError(t, db.RecordResult(res))

	require.NoError(t, db.DeleteRun(res.RunID))

	_, err := db.Run(res.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	samples, err := db.Samples(res.RunID)
	require.NoError(t, err)
	assert.Empty(t, samples)

	assert.ErrorIs(t, db.DeleteRun(res.RunID), ErrRunNotFound)
}

func TestUnixSecondsRoundTrip(t *testing.T) {
	at := time.Date(2026, 7, 8, 1, 2, 3, 456000000, time.UTC)
	assert.WithinDuration(t, at, fromUnixSeconds(toUnixSeconds(at)), time.Microsecond)
}
