package physics

import (
	"fmt"
	"strings"
)

// Zone is the road classification that sets the legal speed limit.
type Zone int

const (
	Residential Zone = iota
	Urban
	Highway
)

// speedLimits is indexed by Zone, km/h.
var speedLimits = [...]float64{
	Residential: 30,
	Urban:       60,
	Highway:     80,
}

func (z Zone) String() string {
	switch z {
	case Residential:
		return "residential"
	case Urban:
		return "urban"
	case Highway:
		return "highway"
	default:
		return "unknown"
	}
}

// Valid reports whether z is one of the defined zones.
func (z Zone) Valid() bool {
	return z >= Residential && z <= Highway
}

// SpeedLimit returns the legal limit for z in km/h.
func SpeedLimit(z Zone) (float64, error) {
	if !z.Valid() {
		return 0, fmt.Errorf("unknown zone %d", int(z))
	}
	return speedLimits[z], nil
}

// ParseZone maps a zone name to a Zone. There is no default zone, so unknown
// names are an error.
func ParseZone(s string) (Zone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "residential":
		return Residential, nil
	case "urban":
		return Urban, nil
	case "highway":
		return Highway, nil
	default:
		return 0, fmt.Errorf("invalid zone %q: must be one of residential, urban, highway", s)
	}
}

// MarshalText encodes z by name.
func (z Zone) MarshalText() ([]byte, error) {
	if !z.Valid() {
		return nil, fmt.Errorf("unknown zone %d", int(z))
	}
	return []byte(z.String()), nil
}

// UnmarshalText decodes a zone name.
func (z *Zone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}
