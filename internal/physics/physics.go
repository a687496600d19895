// Package physics holds the constants and closed-form formulas used by the
// speed camera simulation. Everything here is pure; speeds are in km/h unless
// a parameter name says otherwise.
package physics

const (
	// Gravity is standard gravitational acceleration in m/s².
	Gravity = 9.81

	// DefaultFrictionCoefficient is dry asphalt. The reference braking
	// distance and the live braking deceleration both use this value no
	// matter what the weather is; only the friction force telemetry follows
	// the weather coefficient.
	DefaultFrictionCoefficient = 0.7

	// VehicleMassKg is the mass of the simulated vehicle.
	VehicleMassKg = 1000.0
)

// Deceleration returns the braking deceleration in m/s² for a friction
// coefficient.
func Deceleration(frictionCoeff float64) float64 {
	return frictionCoeff * Gravity
}

// BrakingDistance returns the reference ("legal") braking distance in metres
// for a speed in km/h: d = v² / (2μg) with μ fixed at
// DefaultFrictionCoefficient.
//
// The speed is squared in km/h, not m/s. The result is the figure shown to
// drivers by the demonstration and is kept as-is so verdicts stay comparable.
func BrakingDistance(speedKph float64) float64 {
	return (speedKph * speedKph) / (2 * DefaultFrictionCoefficient * Gravity)
}

// FrictionForce returns F = μmg in newtons.
func FrictionForce(frictionCoeff, massKg float64) float64 {
	return frictionCoeff * massKg * Gravity
}

// NormalForce returns mg in newtons.
func NormalForce(massKg float64) float64 {
	return massKg * Gravity
}

// KineticEnergy returns ½mv² in joules.
func KineticEnergy(massKg, speedMs float64) float64 {
	return 0.5 * massKg * speedMs * speedMs
}

// Momentum returns mv in kg·m/s.
func Momentum(massKg, speedMs float64) float64 {
	return massKg * speedMs
}

// StoppingAcceleration returns the uniform deceleration v²/(2d) needed to
// stop from speedMs within distanceM. A non-positive distance yields 0.
func StoppingAcceleration(speedMs, distanceM float64) float64 {
	if distanceM <= 0 {
		return 0
	}
	return (speedMs * speedMs) / (2 * distanceM)
}

// WorkDone returns W = F·d in joules.
func WorkDone(forceN, distanceM float64) float64 {
	return forceN * distanceM
}

// AveragePower returns the mean power in watts of dissipating workJ while
// braking uniformly from speedMs at accelMs2. Zero acceleration or speed
// yields 0.
func AveragePower(workJ, speedMs, accelMs2 float64) float64 {
	if accelMs2 <= 0 || speedMs <= 0 {
		return 0
	}
	return workJ / (speedMs / accelMs2)
}

// BrakingSpeedLossKph returns the speed lost over dtS seconds of braking at
// decelMs2. The m/s² magnitude is applied to km/h as is, so dry braking sheds
// about 6.87 km/h per second.
func BrakingSpeedLossKph(decelMs2, dtS float64) float64 {
	return decelMs2 * dtS
}
