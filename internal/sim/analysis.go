package sim

import (
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/units"
)

// Analysis is the physics breakdown shown alongside a verdict.
type Analysis struct {
	FrictionCoefficient float64 `json:"friction_coefficient"`
	MassKg              float64 `json:"mass_kg"`
	NormalForceN        float64 `json:"normal_force_n"`
	// FrictionForceN uses the weather coefficient.
	FrictionForceN     float64 `json:"friction_force_n"`
	InitialSpeedMs     float64 `json:"initial_speed_ms"`
	KineticEnergyJ     float64 `json:"kinetic_energy_j"`
	MomentumKgMs       float64 `json:"momentum_kg_ms"`
	StoppingAccelMs2   float64 `json:"stopping_accel_ms2"`
	BrakingWorkJ       float64 `json:"braking_work_j"`
	AverageBrakePowerW float64 `json:"average_brake_power_w"`
}

// Analyze derives the physics breakdown of a run from its parameters and
// the verdict's reference braking distance.
func Analyze(p Params, v Verdict) Analysis {
	mu := physics.Friction(p.Weather)
	mass := physics.VehicleMassKg
	speedMs := units.KphToMps(p.InitialSpeedKph)
	force := physics.FrictionForce(mu, mass)
	accel := physics.StoppingAcceleration(speedMs, v.BrakingDistanceM)
	work := physics.WorkDone(force, v.BrakingDistanceM)

	return Analysis{
		FrictionCoefficient: mu,
		MassKg:              mass,
		NormalForceN:        physics.NormalForce(mass),
		FrictionForceN:      force,
		InitialSpeedMs:      speedMs,
		KineticEnergyJ:      physics.KineticEnergy(mass, speedMs),
		MomentumKgMs:        physics.Momentum(mass, speedMs),
		StoppingAccelMs2:    accel,
		BrakingWorkJ:        work,
		AverageBrakePowerW:  physics.AveragePower(work, speedMs, accel),
	}
}

// SafetyTips returns the road safety advice for a verdict outcome.
func SafetyTips(exceeded bool) []string {
	if exceeded {
		return []string{
			"You exceeded the speed limit. Moderate your speed, especially in residential and urban zones.",
			"Slow down gradually and anticipate obstacles on the road.",
			"Keep a safe distance from other vehicles and avoid braking abruptly.",
		}
	}
	return []string{
		"You kept an appropriate speed. Always follow traffic signs and adjust your speed to road conditions.",
		"Drive carefully, especially in zones with low speed limits.",
		"Keep your eyes on the road and reduce speed in rain or snow.",
	}
}
