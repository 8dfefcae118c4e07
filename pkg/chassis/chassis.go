// Package chassis drives a set of wheel actuators as one vehicle. Robot
// motion requests are mapped to per-actuator commands through the
// kinematics matrix and dispatched as a single synchronised batch.
//
// Units: distances in millimetres, angles in degrees, positive angles are
// counter-clockwise and a positive turn radius has its centre on the left.
package chassis

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/geometry"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

const pollInterval = time.Millisecond

type Wheel struct {
	Geometry geometry.Wheel
	Actuator hardware.Actuator
}

type SteeringJoint struct {
	Geometry *geometry.Steering
	Actuator hardware.Actuator
}

type Config struct {
	Drivetrain kinematics.Drivetrain
	Wheels     []Wheel
	// Steering is required for, and only used by, Ackermann drivetrains.
	Steering *SteeringJoint
	// Synchronizer, if set, brackets every command batch.
	Synchronizer hardware.Synchronizer
	Clock        hardware.Clock
	Odometer     OdometerConfig
}

type Chassis struct {
	log      zerolog.Logger
	clock    hardware.Clock
	matrix   *kinematics.Matrix
	wheels   []geometry.Wheel
	group    *hardware.Group
	steering *SteeringJoint
	odometer *Odometer
	metrics  *metrics

	// commandLock serialises motion commands so that speed harmonisation
	// always sees the result of the previous command.
	commandLock sync.Mutex

	dynamicsLock sync.Mutex
	dynamics     motion.Dynamics

	displacementLock sync.Mutex
	moveTacho        *hardware.TachoTracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the chassis and starts its odometer. The odometer runs until
// ctx is cancelled or Close is called.
func New(ctx context.Context, cfg Config) (*Chassis, error) {
	wheels := make([]geometry.Wheel, len(cfg.Wheels))
	actuators := make([]hardware.Actuator, len(cfg.Wheels))
	for i, w := range cfg.Wheels {
		if w.Actuator == nil {
			return nil, motion.Configuration("wheel %d has no actuator", i)
		}
		wheels[i] = w.Geometry
		actuators[i] = w.Actuator
	}

	matrix, err := kinematics.Build(cfg.Drivetrain, wheels)
	if err != nil {
		return nil, errors.Wrap(err, "building kinematics")
	}

	if cfg.Drivetrain == kinematics.Ackermann {
		if cfg.Steering == nil || cfg.Steering.Geometry == nil || cfg.Steering.Actuator == nil {
			return nil, motion.Configuration("ackermann drivetrain needs a steering joint")
		}
		if err := cfg.Steering.Geometry.Validate(); err != nil {
			return nil, errors.Wrap(err, "steering")
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = hardware.SystemClock{}
	}

	c := &Chassis{
		log:    logging.Component("chassis"),
		clock:  clock,
		matrix: matrix,
		wheels: wheels,
		group:  hardware.NewGroup(cfg.Synchronizer, actuators...),
	}
	if cfg.Drivetrain == kinematics.Ackermann {
		c.steering = cfg.Steering
	}

	lin, ang := c.MaxLinearSpeed(), c.MaxAngularSpeed()
	if !(lin > 0) || !(ang > 0) {
		return nil, motion.Configuration("actuators report no usable speed (linear %v, angular %v)", lin, ang)
	}
	c.dynamics = motion.Dynamics{
		LinearSpeed:         lin / 2,
		AngularSpeed:        ang / 2,
		LinearAcceleration:  lin / 2,
		AngularAcceleration: ang / 2,
	}

	c.moveTacho = hardware.NewTachoTracker(c.group)
	c.MoveStart()

	c.odometer = newOdometer(c.group, matrix, clock, cfg.Odometer)
	c.metrics, err = newMetrics(c.odometer)
	if err != nil {
		return nil, err
	}
	c.odometer.samples = c.metrics.samples

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.odometer.Loop(ctx, &c.wg)

	c.log.Info().
		Stringer("drivetrain", cfg.Drivetrain).
		Int("wheels", len(wheels)).
		Float64("maxLinearSpeed", lin).
		Float64("maxAngularSpeed", ang).
		Msg("Chassis ready")
	return c, nil
}

// Close stops the odometer. Actuators are left in whatever state they are in.
func (c *Chassis) Close() {
	c.cancel()
	c.wg.Wait()
	c.metrics.close()
	c.log.Info().Msg("Chassis closed")
}

func (c *Chassis) Drivetrain() kinematics.Drivetrain {
	return c.matrix.Drivetrain()
}

func (c *Chassis) Kinematics() *kinematics.Matrix {
	return c.matrix
}

func (c *Chassis) Odometer() *Odometer {
	return c.odometer
}

// Dynamics

func (c *Chassis) Dynamics() motion.Dynamics {
	c.dynamicsLock.Lock()
	defer c.dynamicsLock.Unlock()
	return c.dynamics
}

// SetDynamics sets the speeds and accelerations used by position moves and
// as the ramp for velocity moves. All four values must be positive; on error
// the previous settings are kept.
func (c *Chassis) SetDynamics(linearSpeed, angularSpeed, linearAcceleration, angularAcceleration float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) {
		*d = motion.Dynamics{
			LinearSpeed:         linearSpeed,
			AngularSpeed:        angularSpeed,
			LinearAcceleration:  linearAcceleration,
			AngularAcceleration: angularAcceleration,
		}
	})
}

func (c *Chassis) SetSpeed(linearSpeed, angularSpeed float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) {
		d.LinearSpeed, d.AngularSpeed = linearSpeed, angularSpeed
	})
}

func (c *Chassis) SetAcceleration(linearAcceleration, angularAcceleration float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) {
		d.LinearAcceleration, d.AngularAcceleration = linearAcceleration, angularAcceleration
	})
}

// The single-value setters change one setting and keep the others, so
// concurrent callers setting different values do not undo each other.

func (c *Chassis) SetLinearSpeed(speed float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) { d.LinearSpeed = speed })
}

func (c *Chassis) SetAngularSpeed(speed float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) { d.AngularSpeed = speed })
}

func (c *Chassis) SetLinearAcceleration(accel float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) { d.LinearAcceleration = accel })
}

func (c *Chassis) SetAngularAcceleration(accel float64) error {
	return c.updateDynamics(func(d *motion.Dynamics) { d.AngularAcceleration = accel })
}

func (c *Chassis) updateDynamics(update func(d *motion.Dynamics)) error {
	c.dynamicsLock.Lock()
	defer c.dynamicsLock.Unlock()

	d := c.dynamics
	update(&d)
	if err := d.Validate(); err != nil {
		return err
	}
	c.dynamics = d
	c.log.Debug().Interface("dynamics", d).Msg("Dynamics updated")
	return nil
}

// Limits

func (c *Chassis) maxSpeeds() kinematics.Twist {
	return c.matrix.ReverseAbs(c.group.MaxSpeeds())
}

// MaxLinearSpeed is the fastest the chassis can travel, derived from the
// actuators' current speed ceilings.
func (c *Chassis) MaxLinearSpeed() float64 {
	t := c.maxSpeeds()
	return math.Hypot(t.Linear, t.Lateral)
}

func (c *Chassis) MaxAngularSpeed() float64 {
	return c.maxSpeeds().Angular
}

// MinRadius is the tightest turn the drivetrain can make. Only Ackermann
// drivetrains have a non-zero minimum.
func (c *Chassis) MinRadius() float64 {
	if c.steering != nil {
		return c.steering.Geometry.MinRadius()
	}
	return 0
}

// TrackWidth is the lateral distance between the outermost wheels.
func (c *Chassis) TrackWidth() float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range c.wheels {
		lo = math.Min(lo, w.Offset)
		hi = math.Max(hi, w.Offset)
	}
	return hi - lo
}

// State

func (c *Chassis) IsMoving() bool {
	return c.group.AnyMoving()
}

func (c *Chassis) IsStalled() bool {
	return c.group.AnyStalled()
}

// WaitComplete blocks until no wheel is moving or ctx is done.
func (c *Chassis) WaitComplete(ctx context.Context) error {
	for c.IsMoving() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(pollInterval):
		}
	}
	return nil
}
