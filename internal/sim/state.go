// Package sim implements the speed camera simulation core: run parameters,
// the per-tick stepper, the final verdict and the derived telemetry.
//
// The package has no notion of wall-clock time or goroutines. A driver (see
// internal/engine) supplies increasing elapsed times and owns the State
// between ticks.
package sim

import (
	"math"

	"github.com/banshee-data/speedtrap/internal/physics"
)

// Params are the immutable inputs of one run.
type Params struct {
	InitialSpeedKph float64         `json:"initial_speed_kph"`
	TotalDistanceM  float64         `json:"total_distance_m"`
	Zone            physics.Zone    `json:"zone"`
	Weather         physics.Weather `json:"weather"`
}

// Validate checks the parameters a run can be started with.
func (p Params) Validate() error {
	if !positive(p.InitialSpeedKph) {
		return &ValidationError{Field: "speed", Value: p.InitialSpeedKph, Err: ErrInvalidSpeed}
	}
	if !positive(p.TotalDistanceM) {
		return &ValidationError{Field: "distance", Value: p.TotalDistanceM, Err: ErrInvalidDistance}
	}
	if !p.Zone.Valid() {
		return &ValidationError{Field: "zone", Value: float64(p.Zone), Err: ErrInvalidZone}
	}
	return nil
}

// positive is false for NaN, which compares false against everything.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Sample is one recorded tick.
type Sample struct {
	TimeS          float64 `json:"time_s"`
	PositionM      float64 `json:"position_m"`
	SpeedKph       float64 `json:"speed_kph"`
	FrictionForceN float64 `json:"friction_force_n"`
}

// Phase is the run state machine position.
type Phase int

const (
	Idle Phase = iota
	Running
	Braking
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Braking:
		return "braking"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// State is the mutable record of one run. The zero value is Idle.
type State struct {
	Phase     Phase
	ElapsedS  float64
	PositionM float64
	SpeedKph  float64
	Braking   bool
	// StoppedShort is set when braking brought the vehicle to rest before
	// the checkpoint.
	StoppedShort bool
	// BrakedAtS is the time of the last sample taken before braking took
	// effect, or -1 if the run never braked. Speed starts dropping from there.
	BrakedAtS float64
	History   []Sample
}

// NewState validates p and returns a freshly started run.
func NewState(p Params) (State, error) {
	if err := p.Validate(); err != nil {
		return State{}, err
	}
	return State{
		Phase:     Running,
		SpeedKph:  p.InitialSpeedKph,
		BrakedAtS: -1,
	}, nil
}

// Brake engages the brakes. Braking cannot be released; braking an already
// braking run is a no-op.
func (s *State) Brake() error {
	switch s.Phase {
	case Running:
		s.Phase = Braking
		s.Braking = true
		return nil
	case Braking:
		return nil
	default:
		return ErrInvalidState
	}
}

// Active reports whether the run still accepts ticks.
func (s State) Active() bool {
	return s.Phase == Running || s.Phase == Braking
}

// LastSample returns the most recent sample, if any.
func (s State) LastSample() (Sample, bool) {
	if len(s.History) == 0 {
		return Sample{}, false
	}
	return s.History[len(s.History)-1], true
}
