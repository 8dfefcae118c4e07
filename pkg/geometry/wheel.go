// Package geometry converts between robot units (millimetres, degrees) and
// actuator units (encoder ticks, one tick per degree of actuator rotation).
package geometry

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// Wheel describes where a driven wheel sits on the robot and how its actuator
// is geared to it. X is forward of the robot centre, Offset is to the left.
// MountingAngle is the wheel's driving direction in degrees, 0 for wheels
// that drive straight ahead. A negative GearRatio means the actuator is
// mounted reversed.
type Wheel struct {
	Diameter      float64
	Offset        float64
	X             float64
	MountingAngle float64
	GearRatio     float64
}

// NewWheel returns a longitudinal wheel at the given lateral offset.
func NewWheel(diameter, offset, gearRatio float64) Wheel {
	return Wheel{
		Diameter:  diameter,
		Offset:    offset,
		GearRatio: gearRatio,
	}
}

// PolarWheel returns an omni wheel at the given distance from the robot
// centre, placed at angle degrees counter-clockwise from straight ahead and
// driving tangentially (counter-clockwise when turning forwards).
func PolarWheel(diameter, angleDeg, radius, gearRatio float64) Wheel {
	a := angleDeg * math.Pi / 180
	return Wheel{
		Diameter:      diameter,
		X:             radius * math.Cos(a),
		Offset:        radius * math.Sin(a),
		MountingAngle: angleDeg + 90,
		GearRatio:     gearRatio,
	}
}

// CartesianWheel returns an omni wheel at (x, y) driving in direction
// heading degrees.
func CartesianWheel(diameter, x, y, heading, gearRatio float64) Wheel {
	return Wheel{
		Diameter:      diameter,
		X:             x,
		Offset:        y,
		MountingAngle: heading,
		GearRatio:     gearRatio,
	}
}

// Inverted returns a copy of the wheel with the actuator direction reversed.
func (w Wheel) Inverted() Wheel {
	w.GearRatio = -w.GearRatio
	return w
}

func (w Wheel) Validate() error {
	if !(w.Diameter > 0) || math.IsInf(w.Diameter, 0) {
		return motion.Configuration("wheel diameter %v must be positive", w.Diameter)
	}
	if w.GearRatio == 0 || math.IsNaN(w.GearRatio) || math.IsInf(w.GearRatio, 0) {
		return motion.Configuration("wheel gear ratio %v must be non-zero", w.GearRatio)
	}
	for _, v := range []float64{w.Offset, w.X, w.MountingAngle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return motion.Configuration("wheel position %+v is not finite", w)
		}
	}
	return nil
}

// ticksPerUnit is the number of actuator ticks for one millimetre of travel
// along the wheel's driving direction.
func (w Wheel) ticksPerUnit() float64 {
	return 360 * w.GearRatio / (math.Pi * w.Diameter)
}

func (w Wheel) ToTicks(distance float64) float64 {
	return distance * w.ticksPerUnit()
}

func (w Wheel) ToDistance(ticks float64) float64 {
	return ticks / w.ticksPerUnit()
}

// Factors returns this wheel's row of the forward kinematics matrix: the
// actuator ticks produced by one millimetre of forward travel, one millimetre
// of leftward travel and one degree of counter-clockwise rotation.
func (w Wheel) Factors() [3]float64 {
	h := w.MountingAngle * math.Pi / 180
	k := w.ticksPerUnit()
	return [3]float64{
		math.Cos(h) * k,
		math.Sin(h) * k,
		2 * w.GearRatio * (w.X*math.Sin(h) - w.Offset*math.Cos(h)) / w.Diameter,
	}
}
