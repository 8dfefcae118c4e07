package tunable

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// DynamicsTarget is what the dynamics knobs adjust; *pilot.Pilot satisfies
// it.
type DynamicsTarget interface {
	Dynamics() motion.Dynamics
	SetLinearSpeed(speed float64) error
	SetAngularSpeed(speed float64) error
	SetLinearAcceleration(accel float64) error
	SetAngularAcceleration(accel float64) error
	MinRadius() float64
	SetMinRadius(radius float64) error
}

// Knob names.
const (
	LinearSpeed         = "linear-speed"
	AngularSpeed        = "angular-speed"
	LinearAcceleration  = "linear-acceleration"
	AngularAcceleration = "angular-acceleration"
	MinRadius           = "min-radius"
)

// Dynamics creates one knob per dynamics setting of target, starting at its
// current values. Changing a knob updates target straight away.
func Dynamics(target DynamicsTarget) *Tunables {
	t := New()
	d := target.Dynamics()
	apply := func(set func(float64) error) func(int) error {
		return func(v int) error { return set(float64(v)) }
	}

	t.Create(LinearSpeed, round(d.LinearSpeed), 1, 5000).OnChange = apply(target.SetLinearSpeed)
	t.Create(AngularSpeed, round(d.AngularSpeed), 1, 3600).OnChange = apply(target.SetAngularSpeed)
	t.Create(LinearAcceleration, round(d.LinearAcceleration), 1, 50000).OnChange = apply(target.SetLinearAcceleration)
	t.Create(AngularAcceleration, round(d.AngularAcceleration), 1, 36000).OnChange = apply(target.SetAngularAcceleration)
	t.Create(MinRadius, round(target.MinRadius()), 0, 10000).OnChange = apply(target.SetMinRadius)
	return t
}

func round(v float64) int {
	return int(math.Round(v))
}
