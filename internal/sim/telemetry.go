package sim

// Series holds the chartable time series of a run, all keyed by Time.
type Series struct {
	Time          []float64 `json:"time_s"`
	Position      []float64 `json:"position_m"`
	Speed         []float64 `json:"speed_kph"`
	FrictionForce []float64 `json:"friction_force_n"`
	// Acceleration is Δspeed/Δt in km/h per second.
	Acceleration []float64 `json:"acceleration_kph_s"`
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Time)
}

// Telemetry derives the chart series from a history.
func Telemetry(history []Sample) Series {
	n := len(history)
	out := Series{
		Time:          make([]float64, n),
		Position:      make([]float64, n),
		Speed:         make([]float64, n),
		FrictionForce: make([]float64, n),
		Acceleration:  make([]float64, n),
	}
	for i, s := range history {
		out.Time[i] = s.TimeS
		out.Position[i] = s.PositionM
		out.Speed[i] = s.SpeedKph
		out.FrictionForce[i] = s.FrictionForceN
		if i > 0 {
			out.Acceleration[i] = Acceleration(history[i-1], s)
		}
	}
	return out
}

// Acceleration returns the speed change between two samples per second,
// or 0 when no time passed between them.
func Acceleration(prev, cur Sample) float64 {
	dt := cur.TimeS - prev.TimeS
	if dt <= 0 {
		return 0
	}
	return (cur.SpeedKph - prev.SpeedKph) / dt
}
