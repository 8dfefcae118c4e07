package chassis

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxAbs(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if !math.IsNaN(v) {
			m = math.Max(m, math.Abs(v))
		}
	}
	return m
}

// harmonize returns the acceleration for each actuator such that every
// actuator changes from its current to its target speed in the same time,
// without any actuator exceeding its ceiling. ok is false if no actuator
// needs to change speed.
func harmonize(target, current, ceiling []float64) (accel []float64, ok bool) {
	times := make([]float64, len(target))
	longest := 0.0
	for i := range target {
		if ceiling[i] > 0 {
			times[i] = math.Abs(target[i]-current[i]) / ceiling[i]
		}
		longest = math.Max(longest, times[i])
	}
	if longest == 0 {
		return nil, false
	}

	accel = make([]float64, len(target))
	for i := range target {
		if times[i] == 0 {
			accel[i] = ceiling[i]
			continue
		}
		accel[i] = ceiling[i] * times[i] / longest
	}
	return accel, true
}

// Travel drives continuously at the given linear (mm/s) and angular (deg/s)
// speed. Every wheel reaches its new speed at the same moment, so the path
// keeps its shape while speeding up or slowing down.
func (c *Chassis) Travel(linearSpeed, angularSpeed float64) error {
	return c.TravelTwist(kinematics.Twist{Linear: linearSpeed, Angular: angularSpeed})
}

// TravelCartesian drives a holonomic chassis with independent forward,
// leftward and angular speeds.
func (c *Chassis) TravelCartesian(xSpeed, ySpeed, angularSpeed float64) error {
	if ySpeed != 0 && c.Drivetrain() != kinematics.Holonomic {
		return motion.InvalidArgument("ySpeed", ySpeed, "drivetrain cannot move sideways")
	}
	return c.TravelTwist(kinematics.Twist{Linear: xSpeed, Lateral: ySpeed, Angular: angularSpeed})
}

func (c *Chassis) TravelTwist(speed kinematics.Twist) error {
	for _, v := range []struct {
		name string
		val  float64
	}{{"linearSpeed", speed.Linear}, {"lateralSpeed", speed.Lateral}, {"angularSpeed", speed.Angular}} {
		if !finite(v.val) {
			return motion.InvalidArgument(v.name, v.val, "speed must be finite")
		}
	}

	if c.steering != nil {
		radius := math.Inf(1)
		if speed.Angular != 0 {
			radius = speed.Linear * 180 / (math.Pi * speed.Angular)
		}
		if err := c.steerTo(radius); err != nil {
			return err
		}
	}

	c.commandLock.Lock()
	defer c.commandLock.Unlock()
	c.travel(speed, false)
	return nil
}

// travel must be called with commandLock held. If force is set the batch is
// dispatched even when no actuator changes speed.
func (c *Chassis) travel(speed kinematics.Twist, force bool) {
	target := c.matrix.Forward(speed)
	current := c.group.RotationSpeeds()
	ceiling := c.accelerationCeiling(speed, current)
	accel, ok := harmonize(target, current, ceiling)
	if !ok {
		if !force {
			return
		}
		accel = ceiling
	}

	c.log.Debug().Stringer("speed", speed).Floats64("ticks", target).Floats64("accel", accel).Msg("Travel")
	c.dispatch("travel", func(actuators []hardware.Actuator) {
		for i, a := range actuators {
			a.SetAcceleration(accel[i])
			a.SetSpeed(math.Abs(target[i]))
			switch {
			case target[i] > 0:
				a.Forward()
			case target[i] < 0:
				a.Backward()
			default:
				a.Stop()
			}
		}
	})
}

// accelerationCeiling is the per-actuator acceleration limit for a change to
// speed. The linear acceleration applies along the direction of travel, or
// along the current direction when coming to rest.
func (c *Chassis) accelerationCeiling(speed kinematics.Twist, current []float64) []float64 {
	d := c.Dynamics()
	dir := speed
	if dir.Linear == 0 && dir.Lateral == 0 {
		dir = c.matrix.Reverse(current)
	}
	a := kinematics.Polar(d.LinearAcceleration, math.Atan2(dir.Lateral, dir.Linear)*180/math.Pi, d.AngularAcceleration)
	a.Linear, a.Lateral = math.Abs(a.Linear), math.Abs(a.Lateral)
	return c.matrix.ForwardAbs(a)
}

// MoveTo travels the given distance in a straight line and returns without
// waiting.
func (c *Chassis) MoveTo(distance float64) error {
	if !finite(distance) {
		return motion.InvalidArgument("distance", distance, "distance must be finite")
	}
	if c.steering != nil {
		if err := c.steerTo(math.Inf(1)); err != nil {
			return err
		}
	}
	d := c.Dynamics()
	c.positionMove(
		kinematics.Twist{Linear: distance},
		kinematics.Twist{Linear: d.LinearSpeed},
		kinematics.Twist{Linear: d.LinearAcceleration},
	)
	return nil
}

// RotateTo turns on the spot by angle degrees and returns without waiting.
func (c *Chassis) RotateTo(angle float64) error {
	if !finite(angle) {
		return motion.InvalidArgument("angle", angle, "angle must be finite")
	}
	if c.steering != nil {
		return motion.InvalidArgument("radius", 0, "drivetrain cannot turn on the spot")
	}
	d := c.Dynamics()
	c.positionMove(
		kinematics.Twist{Angular: angle},
		kinematics.Twist{Angular: d.AngularSpeed},
		kinematics.Twist{Angular: d.AngularAcceleration},
	)
	return nil
}

// Arc drives along a circle of the given radius until the heading has
// changed by angle degrees. A radius of 0 turns on the spot. An infinite
// angle drives the circle until stopped, forwards for +Inf and backwards for
// -Inf.
func (c *Chassis) Arc(radius, angle float64) error {
	if math.IsNaN(radius) {
		return motion.InvalidArgument("radius", radius, "radius must be a number")
	}
	if math.IsNaN(angle) {
		return motion.InvalidArgument("angle", angle, "angle must be a number")
	}
	if angle == 0 {
		return nil
	}
	if math.IsInf(radius, 0) {
		if math.IsInf(angle, 0) {
			return c.Travel(motion.Sign(angle)*c.Dynamics().LinearSpeed, 0)
		}
		return motion.InvalidArgument("radius", radius, "a finite angle needs a finite radius")
	}
	if c.steering != nil {
		if math.Abs(radius) < c.MinRadius() {
			return motion.InvalidArgument("radius", radius, "tighter than the minimum turn radius")
		}
		if err := c.steerTo(radius); err != nil {
			return err
		}
	}

	d := c.Dynamics()
	ratio := math.Abs(math.Pi * radius / 180)

	if math.IsInf(angle, 0) {
		if radius == 0 {
			return c.Travel(0, motion.Sign(angle)*d.AngularSpeed)
		}
		turn := motion.Sign(radius) * motion.Sign(angle)
		if ratio > 1 {
			return c.Travel(motion.Sign(angle)*d.LinearSpeed, turn*d.LinearSpeed/ratio)
		}
		return c.Travel(motion.Sign(angle)*d.AngularSpeed*ratio, turn*d.AngularSpeed)
	}

	if radius == 0 {
		return c.RotateTo(angle)
	}

	displacement := kinematics.Twist{
		Linear:  motion.Sign(angle) * 2 * math.Pi * math.Abs(radius) * math.Abs(angle) / 360,
		Angular: motion.Sign(radius) * angle,
	}
	var speed, accel kinematics.Twist
	if ratio > 1 {
		speed = kinematics.Twist{Linear: d.LinearSpeed, Angular: d.LinearSpeed / ratio}
		accel = kinematics.Twist{Linear: d.LinearAcceleration, Angular: d.LinearAcceleration / ratio}
	} else {
		speed = kinematics.Twist{Linear: d.AngularSpeed * ratio, Angular: d.AngularSpeed}
		accel = kinematics.Twist{Linear: d.AngularAcceleration * ratio, Angular: d.AngularAcceleration}
	}
	c.positionMove(displacement, speed, accel)
	return nil
}

// positionMove rotates every actuator by its share of displacement. Speeds
// and accelerations are proportional to each actuator's share so that all
// actuators start and finish together; the busiest actuator runs at the
// robot-level setting.
func (c *Chassis) positionMove(displacement, speed, accel kinematics.Twist) {
	delta := c.matrix.Forward(displacement)
	longest := maxAbs(delta)
	if longest == 0 {
		return
	}
	topSpeed := maxAbs(c.matrix.ForwardAbs(speed))
	topAccel := maxAbs(c.matrix.ForwardAbs(accel))

	c.commandLock.Lock()
	defer c.commandLock.Unlock()

	c.log.Debug().Stringer("displacement", displacement).Floats64("ticks", delta).Msg("Position move")
	c.dispatch("position", func(actuators []hardware.Actuator) {
		for i, a := range actuators {
			share := math.Abs(delta[i]) / longest
			a.SetAcceleration(share * topAccel)
			a.SetSpeed(share * topSpeed)
			a.RotateBy(int(math.Round(delta[i])), false)
		}
	})
}

// Stop brings every wheel to rest, ramping down together, and waits until
// none is moving.
func (c *Chassis) Stop() {
	c.commandLock.Lock()
	c.travel(kinematics.Twist{}, true)
	c.commandLock.Unlock()

	for c.IsMoving() {
		c.clock.Sleep(pollInterval)
	}
}

func (c *Chassis) dispatch(kind string, fn func(actuators []hardware.Actuator)) {
	c.group.Dispatch(fn)
	c.metrics.dispatched(kind)
}
