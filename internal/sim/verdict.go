package sim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/speedtrap/internal/physics"
)

// Verdict is the single terminal judgement of a completed run.
type Verdict struct {
	FinalSpeedKph float64 `json:"final_speed_kph"`
	SpeedLimitKph float64 `json:"speed_limit_kph"`
	// BrakingDistanceM is the reference distance for the initial speed, not
	// for anything the vehicle did during the run.
	BrakingDistanceM      float64 `json:"braking_distance_m"`
	ExceededLimit         bool    `json:"exceeded_limit"`
	MaxSpeedKph           float64 `json:"max_speed_kph"`
	MeanSpeedKph          float64 `json:"mean_speed_kph"`
	TotalDistanceCoveredM float64 `json:"total_distance_covered_m"`
	TotalTimeS            float64 `json:"total_time_s"`
	StoppedShort          bool    `json:"stopped_short"`
}

// ComputeVerdict judges a terminated run. Calling it on a run that is not
// terminated or has no samples is a programming error and panics.
func ComputeVerdict(p Params, s State) Verdict {
	if s.Phase != Terminated {
		panic(fmt.Errorf("%w: verdict requested in phase %s", ErrInternalInvariant, s.Phase))
	}
	last, ok := s.LastSample()
	if !ok {
		panic(fmt.Errorf("%w: verdict requested with empty history", ErrInternalInvariant))
	}
	limit, err := physics.SpeedLimit(p.Zone)
	if err != nil {
		panic(fmt.Errorf("%w: %v", ErrInternalInvariant, err))
	}

	summary := Summarize(s.History)
	return Verdict{
		FinalSpeedKph:         s.SpeedKph,
		SpeedLimitKph:         limit,
		BrakingDistanceM:      physics.BrakingDistance(p.InitialSpeedKph),
		ExceededLimit:         s.SpeedKph > limit,
		MaxSpeedKph:           summary.MaxSpeedKph,
		MeanSpeedKph:          summary.MeanSpeedKph,
		TotalDistanceCoveredM: last.PositionM,
		TotalTimeS:            last.TimeS,
		StoppedShort:          s.StoppedShort,
	}
}

// Summary holds speed statistics over a run's history.
type Summary struct {
	Samples      int     `json:"samples"`
	MaxSpeedKph  float64 `json:"max_speed_kph"`
	MinSpeedKph  float64 `json:"min_speed_kph"`
	MeanSpeedKph float64 `json:"mean_speed_kph"`
}

// Summarize computes speed statistics. An empty history yields a zero Summary.
func Summarize(history []Sample) Summary {
	if len(history) == 0 {
		return Summary{}
	}
	speeds := make([]float64, len(history))
	for i, s := range history {
		speeds[i] = s.SpeedKph
	}
	return Summary{
		Samples:      len(speeds),
		MaxSpeedKph:  floats.Max(speeds),
		MinSpeedKph:  floats.Min(speeds),
		MeanSpeedKph: stat.Mean(speeds, nil),
	}
}
