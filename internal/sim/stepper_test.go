package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedtrap/internal/physics"
)

const frame = 1.0 / 60.0

// runFixed drives a run with a fixed frame interval until it terminates.
// brakeAtS < 0 never brakes; otherwise the brake is applied before the first
// tick later than brakeAtS (brakeAtS == 0 brakes before the first tick).
func runFixed(t *testing.T, p Params, dt, brakeAtS float64) (State, []TickEvent) {
	t.Helper()
	s, err := NewState(p)
	require.NoError(t, err)

	var events []TickEvent
	for i := 0; i < 1_000_000; i++ {
		now := float64(i) * dt
		if brakeAtS >= 0 && (now > brakeAtS || brakeAtS == 0) {
			require.NoError(t, s.Brake())
		}
		var ev TickEvent
		var step Step
		s, ev, step, err = Advance(p, s, now)
		require.NoError(t, err)
		events = append(events, ev)
		if step == StepTerminated {
			return s, events
		}
	}
	t.Fatalf("run did not terminate")
	return s, events
}

func TestNewState(t *testing.T) {
	s, err := NewState(Params{InitialSpeedKph: 50, TotalDistanceM: 200, Zone: physics.Urban})
	require.NoError(t, err)
	assert.Equal(t, Running, s.Phase)
	assert.Equal(t, 50.0, s.SpeedKph)
	assert.Zero(t, s.PositionM)
	assert.Zero(t, s.ElapsedS)
	assert.False(t, s.Braking)
	assert.Empty(t, s.History)
}

func TestNewState_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		field   string
		wantErr error
	}{
		{"zero speed", Params{InitialSpeedKph: 0, TotalDistanceM: 100}, "speed", ErrInvalidSpeed},
		{"negative speed", Params{InitialSpeedKph: -10, TotalDistanceM: 100}, "speed", ErrInvalidSpeed},
		{"NaN speed", Params{InitialSpeedKph: math.NaN(), TotalDistanceM: 100}, "speed", ErrInvalidSpeed},
		{"zero distance", Params{InitialSpeedKph: 50, TotalDistanceM: 0}, "distance", ErrInvalidDistance},
		{"negative distance", Params{InitialSpeedKph: 50, TotalDistanceM: -1}, "distance", ErrInvalidDistance},
		{"NaN distance", Params{InitialSpeedKph: 50, TotalDistanceM: math.NaN()}, "distance", ErrInvalidDistance},
		{"infinite distance", Params{InitialSpeedKph: 50, TotalDistanceM: math.Inf(1)}, "distance", ErrInvalidDistance},
		{"bad zone", Params{InitialSpeedKph: 50, TotalDistanceM: 100, Zone: physics.Zone(5)}, "zone", ErrInvalidZone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewState(tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBrake(t *testing.T) {
	var idle State
	assert.ErrorIs(t, idle.Brake(), ErrInvalidState)

	s, err := NewState(Params{InitialSpeedKph: 50, TotalDistanceM: 200})
	require.NoError(t, err)
	require.NoError(t, s.Brake())
	assert.Equal(t, Braking, s.Phase)
	assert.True(t, s.Braking)

	// braking twice is harmless and there is no way back to Running
	require.NoError(t, s.Brake())
	assert.Equal(t, Braking, s.Phase)

	s.Phase = Terminated
	assert.ErrorIs(t, s.Brake(), ErrInvalidState)
}

func TestAdvance_FirstSampleAtZero(t *testing.T) {
	p := Params{InitialSpeedKph: 36, TotalDistanceM: 100}
	s, err := NewState(p)
	require.NoError(t, err)

	s, ev, step, err := Advance(p, s, 0)
	require.NoError(t, err)
	assert.Equal(t, StepContinue, step)
	require.Len(t, s.History, 1)
	first := s.History[0]
	assert.Zero(t, first.TimeS)
	assert.Zero(t, first.PositionM)
	assert.Equal(t, 36.0, first.SpeedKph)
	assert.InDelta(t, 6867.0, first.FrictionForceN, 1e-6)
	assert.Equal(t, 100.0, ev.RemainingDistanceM)

	s, _, _, err = Advance(p, s, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, s.PositionM, 1e-9)
}

func TestAdvance_NonMonotonicTime(t *testing.T) {
	p := Params{InitialSpeedKph: 36, TotalDistanceM: 100}
	s, err := NewState(p)
	require.NoError(t, err)

	_, _, _, err = Advance(p, s, -0.1)
	assert.ErrorIs(t, err, ErrNonMonotonicTime)

	s, _, _, err = Advance(p, s, 0.2)
	require.NoError(t, err)

	for _, bad := range []float64{0.2, 0.1, math.NaN()} {
		next, _, _, err := Advance(p, s, bad)
		assert.ErrorIs(t, err, ErrNonMonotonicTime)
		assert.Len(t, next.History, 1, "rejected tick must not record a sample")
	}
}

func TestAdvance_InvalidDistanceGuard(t *testing.T) {
	p := Params{InitialSpeedKph: 36, TotalDistanceM: 100}
	s, err := NewState(p)
	require.NoError(t, err)

	for _, bad := range []float64{0, -5, math.NaN()} {
		broken := p
		broken.TotalDistanceM = bad
		next, _, step, err := Advance(broken, s, 0.1)
		assert.ErrorIs(t, err, ErrInvalidDistance)
		assert.Equal(t, StepTerminated, step)
		assert.Equal(t, Terminated, next.Phase)
		assert.Empty(t, next.History)
	}
}

func TestAdvance_AfterTermination(t *testing.T) {
	p := Params{InitialSpeedKph: 100, TotalDistanceM: 10}
	s, _ := runFixed(t, p, frame, -1)
	require.Equal(t, Terminated, s.Phase)

	_, _, step, err := Advance(p, s, s.ElapsedS+1)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StepTerminated, step)
}

func TestAdvance_ConstantVelocity(t *testing.T) {
	p := Params{InitialSpeedKph: 72, TotalDistanceM: 50}
	s, err := NewState(p)
	require.NoError(t, err)

	// irregular frame spacing, as a real scheduler produces
	deltas := []float64{0, 0.016, 0.017, 0.033, 0.016, 0.1, 0.004, 0.25, 0.5}
	now := 0.0
	for _, d := range deltas {
		now += d
		var step Step
		s, _, step, err = Advance(p, s, now)
		require.NoError(t, err)
		assert.InDelta(t, 72/3.6*now, s.PositionM, 1e-9)
		assert.Equal(t, 72.0, s.SpeedKph)
		if step == StepTerminated {
			break
		}
	}
}

func TestAdvance_TerminatesWithOvershoot(t *testing.T) {
	p := Params{InitialSpeedKph: 36, TotalDistanceM: 10}
	s, err := NewState(p)
	require.NoError(t, err)

	s, _, step, err := Advance(p, s, 0)
	require.NoError(t, err)
	require.Equal(t, StepContinue, step)

	s, ev, step, err := Advance(p, s, 1.5)
	require.NoError(t, err)
	assert.Equal(t, StepTerminated, step)
	assert.Equal(t, Terminated, s.Phase)
	assert.InDelta(t, 15.0, s.PositionM, 1e-9, "overshoot is not clamped")
	assert.InDelta(t, -5.0, ev.RemainingDistanceM, 1e-9)
	assert.False(t, s.StoppedShort)
}

func TestLivenessAndOrdering(t *testing.T) {
	for _, speed := range []float64{5, 30, 50, 100, 250} {
		for _, dist := range []float64{0.5, 10, 200, 1500} {
			p := Params{InitialSpeedKph: speed, TotalDistanceM: dist, Zone: physics.Highway}
			s, _ := runFixed(t, p, frame, -1)

			require.Equal(t, Terminated, s.Phase)
			for i := 1; i < len(s.History); i++ {
				require.Less(t, s.History[i-1].TimeS, s.History[i].TimeS)
				require.LessOrEqual(t, s.History[i-1].PositionM, s.History[i].PositionM)
			}
			assert.GreaterOrEqual(t, s.PositionM, dist)
		}
	}
}

func TestBrakingMonotonicity(t *testing.T) {
	p := Params{InitialSpeedKph: 80, TotalDistanceM: 1000, Zone: physics.Urban}
	s, events := runFixed(t, p, frame, 0)

	require.Equal(t, Terminated, s.Phase)
	assert.True(t, s.StoppedShort)
	assert.Equal(t, 0.0, s.SpeedKph)
	assert.Less(t, s.PositionM, p.TotalDistanceM)
	assert.Equal(t, 0.0, s.BrakedAtS)

	for i := 1; i < len(s.History); i++ {
		require.LessOrEqual(t, s.History[i].SpeedKph, s.History[i-1].SpeedKph)
		require.GreaterOrEqual(t, s.History[i].SpeedKph, 0.0)
	}

	// 0.7 * 9.81 is taken off the km/h speed every second
	at1s := s.History[60]
	assert.InDelta(t, 1.0, at1s.TimeS, 1e-9)
	assert.InDelta(t, 80-6.867, at1s.SpeedKph, 1e-6)

	// stops after 80/6.867 s, about 129 m down the road
	assert.InDelta(t, 80/6.867, s.ElapsedS, 2*frame)
	assert.InDelta(t, 129.4, s.PositionM, 0.5)

	last := events[len(events)-1]
	assert.False(t, last.BrakeAdvice, "a stopped vehicle needs no advice")
	assert.Equal(t, "terminated", last.Phase)
}

func TestBrakedAtS_IsLastSampleBeforeBraking(t *testing.T) {
	p := Params{InitialSpeedKph: 72, TotalDistanceM: 1000}
	s, err := NewState(p)
	require.NoError(t, err)
	assert.Equal(t, -1.0, s.BrakedAtS)

	s, _, _, err = Advance(p, s, 0)
	require.NoError(t, err)
	s, _, _, err = Advance(p, s, 0.5)
	require.NoError(t, err)
	require.NoError(t, s.Brake())
	assert.Equal(t, -1.0, s.BrakedAtS, "set by the next tick")

	s, _, _, err = Advance(p, s, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.BrakedAtS)
	assert.InDelta(t, 72-6.867*0.5, s.SpeedKph, 1e-9)

	s, _, _, err = Advance(p, s, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.BrakedAtS, "only the first braking tick sets it")
}

func TestBrakingDecelerationIgnoresWeather(t *testing.T) {
	dry := Params{InitialSpeedKph: 80, TotalDistanceM: 1000, Weather: physics.Dry}
	snowy := dry
	snowy.Weather = physics.Snowy

	sd, _ := runFixed(t, dry, frame, 0)
	ss, _ := runFixed(t, snowy, frame, 0)

	require.Equal(t, len(sd.History), len(ss.History))
	for i := range sd.History {
		assert.Equal(t, sd.History[i].SpeedKph, ss.History[i].SpeedKph)
		assert.Equal(t, sd.History[i].PositionM, ss.History[i].PositionM)
	}
	// only the friction telemetry follows the weather
	assert.InDelta(t, 6867.0, sd.History[0].FrictionForceN, 1e-6)
	assert.InDelta(t, 2943.0, ss.History[0].FrictionForceN, 1e-6)
}

func TestTickEvent_BrakeAdvice(t *testing.T) {
	p := Params{InitialSpeedKph: 50, TotalDistanceM: 300}
	s, err := NewState(p)
	require.NoError(t, err)

	s, ev, _, err := Advance(p, s, 0)
	require.NoError(t, err)
	// 50 km/h reference distance is ~182 m, checkpoint is 300 m away
	assert.InDelta(t, 182.03, ev.BrakingDistanceNowM, 0.01)
	assert.False(t, ev.BrakeAdvice)

	// 9 s at 50 km/h = 125 m, leaving 175 m
	s, ev, _, err = Advance(p, s, 9)
	require.NoError(t, err)
	assert.InDelta(t, 175.0, ev.RemainingDistanceM, 1e-9)
	assert.True(t, ev.BrakeAdvice)
	assert.Equal(t, "running", ev.Phase)
}
