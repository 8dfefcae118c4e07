package chassis

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// steerTo turns the steering joint for a turn of the given radius and waits
// for it to get there. An infinite radius centres the steering.
func (c *Chassis) steerTo(radius float64) error {
	g := c.steering.Geometry
	if !math.IsInf(radius, 0) && math.Abs(radius) < g.MinRadius() {
		return motion.InvalidArgument("radius", radius, "tighter than the minimum turn radius")
	}
	ticks := int(math.Round(g.AngleToTicks(g.RadiusToAngle(radius))))
	c.log.Debug().Float64("radius", radius).Int("ticks", ticks).Msg("Steering")
	c.steering.Actuator.RotateTo(ticks, true)
	return nil
}

func (c *Chassis) HasSteering() bool {
	return c.steering != nil
}

// SteeringRadius is the turn radius the steering is currently set for, or
// +Inf if it is centred or there is no steering joint.
func (c *Chassis) SteeringRadius() float64 {
	if c.steering == nil {
		return math.Inf(1)
	}
	g := c.steering.Geometry
	return g.AngleToRadius(g.TicksToAngle(float64(c.steering.Actuator.EncoderPosition())))
}

func (c *Chassis) SteeringCenter() float64 {
	if c.steering == nil {
		return 0
	}
	return c.steering.Geometry.Center()
}

func (c *Chassis) SetSteeringCenter(ticks float64) error {
	if c.steering == nil {
		return motion.InvalidArgument("center", ticks, "drivetrain has no steering joint")
	}
	if !finite(ticks) {
		return motion.InvalidArgument("center", ticks, "centre must be finite")
	}
	c.steering.Geometry.SetCenter(ticks)
	c.log.Info().Float64("center", ticks).Msg("Steering centre set")
	return nil
}

// CalibrateSteering takes the steering joint's current position as straight
// ahead.
func (c *Chassis) CalibrateSteering() error {
	if c.steering == nil {
		return motion.InvalidArgument("center", 0, "drivetrain has no steering joint")
	}
	return c.SetSteeringCenter(float64(c.steering.Actuator.EncoderPosition()))
}
