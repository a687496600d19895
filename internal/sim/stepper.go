package sim

import (
	"fmt"
	"math"

	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/units"
)

// Step tells the driver whether to schedule another tick.
type Step int

const (
	StepContinue Step = iota
	StepTerminated
)

func (s Step) String() string {
	if s == StepTerminated {
		return "terminated"
	}
	return "continue"
}

// TickEvent is emitted once per successful tick.
type TickEvent struct {
	Sample              Sample  `json:"sample"`
	Phase               string  `json:"phase"`
	Braking             bool    `json:"braking"`
	BrakingDistanceNowM float64 `json:"braking_distance_now_m"`
	RemainingDistanceM  float64 `json:"remaining_distance_m"`
	// BrakeAdvice is set when the checkpoint is within the reference braking
	// distance of a moving vehicle.
	BrakeAdvice bool `json:"brake_advice"`
}

// Advance moves s forward to elapsedS seconds after the run started and
// returns the new state, the tick event and whether the run continues.
//
// Δt is always measured from the previous sample (from 0 for the first
// tick), never from a nominal frame interval, so variable frame rates do not
// drift. The returned state shares its History backing array with s; the
// caller must treat s as consumed.
//
// Errors leave the state unchanged except for ErrInvalidDistance, which
// terminates the run.
func Advance(p Params, s State, elapsedS float64) (State, TickEvent, Step, error) {
	if !s.Active() {
		return s, TickEvent{}, StepTerminated, fmt.Errorf("advance in phase %s: %w", s.Phase, ErrInvalidState)
	}
	if !positive(p.TotalDistanceM) {
		s.Phase = Terminated
		return s, TickEvent{}, StepTerminated, fmt.Errorf("advance at t=%.3f: %w", elapsedS, ErrInvalidDistance)
	}

	prevS := 0.0
	if last, ok := s.LastSample(); ok {
		prevS = last.TimeS
		if !(elapsedS > prevS) {
			return s, TickEvent{}, StepContinue, fmt.Errorf("tick at t=%v after t=%v: %w", elapsedS, prevS, ErrNonMonotonicTime)
		}
	} else if !(elapsedS >= 0) {
		return s, TickEvent{}, StepContinue, fmt.Errorf("first tick at t=%v: %w", elapsedS, ErrNonMonotonicTime)
	}
	dt := elapsedS - prevS

	if s.Braking {
		if s.BrakedAtS < 0 {
			s.BrakedAtS = prevS
		}
		// Live braking always uses the dry coefficient.
		decel := physics.Deceleration(physics.DefaultFrictionCoefficient)
		s.SpeedKph = math.Max(0, s.SpeedKph-physics.BrakingSpeedLossKph(decel, dt))
	}

	frictionN := physics.FrictionForce(physics.Friction(p.Weather), physics.VehicleMassKg)

	s.PositionM += units.KphToMps(s.SpeedKph) * dt
	s.ElapsedS = elapsedS

	sample := Sample{
		TimeS:          elapsedS,
		PositionM:      s.PositionM,
		SpeedKph:       s.SpeedKph,
		FrictionForceN: frictionN,
	}
	s.History = append(s.History, sample)

	step := StepContinue
	switch {
	case s.PositionM >= p.TotalDistanceM:
		s.Phase = Terminated
		step = StepTerminated
	case s.Braking && s.SpeedKph == 0:
		s.Phase = Terminated
		s.StoppedShort = true
		step = StepTerminated
	}

	return s, newTickEvent(p, s, sample), step, nil
}

func newTickEvent(p Params, s State, sample Sample) TickEvent {
	brakingNow := physics.BrakingDistance(sample.SpeedKph)
	remaining := p.TotalDistanceM - sample.PositionM
	return TickEvent{
		Sample:              sample,
		Phase:               s.Phase.String(),
		Braking:             s.Braking,
		BrakingDistanceNowM: brakingNow,
		RemainingDistanceM:  remaining,
		BrakeAdvice:         remaining <= brakingNow && sample.SpeedKph > 0,
	}
}
