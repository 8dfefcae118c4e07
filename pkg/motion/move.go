// Package motion holds the data model shared by the chassis, the pilot and
// their consumers: moves, poses, dynamics and the error taxonomy.
package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

type MoveType int

const (
	Stop MoveType = iota
	Travel
	Rotate
	Arc
)

func (t MoveType) String() string {
	switch t {
	case Stop:
		return "STOP"
	case Travel:
		return "TRAVEL"
	case Rotate:
		return "ROTATE"
	case Arc:
		return "ARC"
	}
	return fmt.Sprintf("MoveType(%d)", int(t))
}

// Move describes one logical motion. Distance is in robot units (mm), Angle
// in degrees. A Move is created when a motion is requested and is rewritten
// in place with the measured displacement when it ends.
type Move struct {
	Type         MoveType
	Distance     float64
	Angle        float64
	LinearSpeed  float64
	AngularSpeed float64
	Moving       bool

	// Direction is the heading of travel relative to the robot in degrees,
	// non-zero only for holonomic moves with a lateral component.
	Direction float64
	Started   time.Time
}

func (m Move) String() string {
	return fmt.Sprintf("%v dist=%.1f angle=%.1f lin=%.1f ang=%.1f moving=%v",
		m.Type, m.Distance, m.Angle, m.LinearSpeed, m.AngularSpeed, m.Moving)
}

// Pose is a position estimate. Heading is in radians, range (-π, π].
type Pose struct {
	X, Y    float64
	Heading float64
}

func (p Pose) HeadingDegrees() float64 {
	return mgl64.RadToDeg(p.Heading)
}

func (p Pose) Distance(o Pose) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.1f, %.1f) %.1f°", p.X, p.Y, p.HeadingDegrees())
}

// Dynamics are the speed and acceleration settings used by position moves.
// Linear values are in mm/s and mm/s², angular values in deg/s and deg/s².
type Dynamics struct {
	LinearSpeed         float64
	AngularSpeed        float64
	LinearAcceleration  float64
	AngularAcceleration float64
}

func (d Dynamics) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"linearSpeed", d.LinearSpeed},
		{"angularSpeed", d.AngularSpeed},
		{"linearAcceleration", d.LinearAcceleration},
		{"angularAcceleration", d.AngularAcceleration},
	} {
		if !(v.val > 0) || math.IsInf(v.val, 0) {
			return InvalidArgument(v.name, v.val, "must be positive and finite")
		}
	}
	return nil
}
