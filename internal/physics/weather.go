package physics

import "strings"

// Weather selects the road surface friction.
type Weather int

const (
	Dry Weather = iota
	Rainy
	Snowy
)

func (w Weather) String() string {
	switch w {
	case Dry:
		return "dry"
	case Rainy:
		return "rainy"
	case Snowy:
		return "snowy"
	default:
		return "unknown"
	}
}

// Friction returns the tyre/road friction coefficient for w.
//
// Unrecognised values fall back to Dry rather than failing: the weather
// selector has always treated "anything else" as dry asphalt.
func Friction(w Weather) float64 {
	switch w {
	case Rainy:
		return 0.5
	case Snowy:
		return 0.3
	default:
		return DefaultFrictionCoefficient
	}
}

// ParseWeather maps a weather name to a Weather. Names are case-insensitive;
// unknown names resolve to Dry, matching Friction.
func ParseWeather(s string) Weather {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rainy":
		return Rainy
	case "snowy":
		return Snowy
	default:
		return Dry
	}
}

// MarshalText encodes w by name.
func (w Weather) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes a weather name with the same fallback as ParseWeather.
func (w *Weather) UnmarshalText(text []byte) error {
	*w = ParseWeather(string(text))
	return nil
}
