package chassis

import (
	"math"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// Below these a displacement component is treated as zero when classifying
// a move.
const (
	minRotation = 1.0 // degrees
	minDistance = 1.0 // mm
)

// MoveStart records the current encoder positions as the start of a move.
func (c *Chassis) MoveStart() {
	c.displacementLock.Lock()
	defer c.displacementLock.Unlock()
	c.moveTacho.Poll()
	c.moveTacho.Zero()
}

// Displacement writes the motion since the last call, or since MoveStart,
// into move and starts a new measurement.
func (c *Chassis) Displacement(move *motion.Move) {
	c.displacement(move, true)
}

// PeekDisplacement is Displacement without restarting the measurement.
func (c *Chassis) PeekDisplacement(move *motion.Move) {
	c.displacement(move, false)
}

func (c *Chassis) displacement(move *motion.Move, reset bool) {
	c.displacementLock.Lock()
	c.moveTacho.Poll()
	delta := c.matrix.Reverse(c.moveTacho.Accumulated())
	if reset {
		c.moveTacho.Zero()
	}
	c.displacementLock.Unlock()

	distance, rotation := delta.Linear, delta.Angular
	move.Direction = 0
	if c.Drivetrain() == kinematics.Holonomic {
		distance = math.Hypot(delta.Linear, delta.Lateral)
		if distance != 0 {
			move.Direction = math.Atan2(delta.Lateral, delta.Linear) * 180 / math.Pi
		}
	}

	switch {
	case distance == 0 && rotation == 0:
		move.Type = motion.Stop
	case math.Abs(rotation) < minRotation:
		move.Type = motion.Travel
	case math.Abs(distance) < minDistance:
		move.Type = motion.Rotate
	default:
		move.Type = motion.Arc
	}
	move.Distance = distance
	move.Angle = rotation
	move.Moving = c.IsMoving()
}
