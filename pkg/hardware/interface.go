package hardware

import "time"

// Actuator is a motor with an encoder, driving a wheel or a steering joint.
// Positions are in ticks (degrees of motor rotation), speeds in ticks/s and
// accelerations in ticks/s².
type Actuator interface {
	// SetSpeed sets the speed used by Forward, Backward and the rotate
	// commands. It is a magnitude; direction comes from the command.
	SetSpeed(ticksPerSecond float64)
	SetAcceleration(ticksPerSecondSquared float64)

	Forward()
	Backward()
	// Stop ramps down to rest at the current acceleration. It does not wait.
	Stop()
	// Float removes power and lets the motor coast.
	Float()

	RotateBy(ticks int, block bool)
	RotateTo(ticks int, block bool)

	EncoderPosition() int
	ResetEncoder()

	// RotationSpeed is the current signed speed.
	RotationSpeed() float64
	IsMoving() bool
	IsStalled() bool
	MaxSpeed() float64
}

// Synchronizer batches commands to several actuators so that they take
// effect at the same instant. Commands issued between StartSynchronization
// and EndSynchronization are held back until the end of the batch.
type Synchronizer interface {
	StartSynchronization()
	EndSynchronization()
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

var _ Clock = SystemClock{}
