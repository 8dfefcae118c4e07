package picobldc

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
)

// board is the part of PicoBLDC the driver uses.
type board interface {
	SetMotorSpeeds(speeds PerMotorVal[int16]) error
	RawDistancesTraveled() (PerMotorVal[int16], error)
}

const motorFullRange = 0x5fff

type DriverConfig struct {
	// MaxSpeed is the motor speed in degrees per second that the full
	// register range commands.
	MaxSpeed float64
	// Period is the control loop interval.
	Period time.Duration
	// StallTime is how long a motor may be driven without its distance
	// counter moving before it is reported stalled.
	StallTime time.Duration
	// Acceleration is the initial profile acceleration in degrees/s².
	Acceleration float64
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = 1000
	}
	if c.Period <= 0 {
		c.Period = 10 * time.Millisecond
	}
	if c.StallTime <= 0 {
		c.StallTime = 250 * time.Millisecond
	}
	if c.Acceleration <= 0 {
		c.Acceleration = 2000
	}
	return c
}

// Driver runs a trapezoidal speed profile for each channel in software and
// streams the resulting speeds to the board. The board has no position
// control of its own, so position moves are closed over its distance
// counters.
type Driver struct {
	log   zerolog.Logger
	board board
	cfg   DriverConfig

	// batchLock holds the control loop off while a synchronised batch of
	// commands is being issued.
	batchLock sync.Mutex

	lock    sync.Mutex
	tracker *DistanceTracker
	motors  PerMotorVal[*Motor]
	polled  bool
}

func NewDriver(b board, cfg DriverConfig) *Driver {
	d := &Driver{
		log:     logging.Component("picobldc"),
		board:   b,
		cfg:     cfg.withDefaults(),
		tracker: NewDistanceTracker(b),
	}
	for i := range d.motors {
		d.motors[i] = &Motor{
			d:       d,
			channel: i,
			profile: hardware.Profile{
				Speed:        d.cfg.MaxSpeed,
				Acceleration: d.cfg.Acceleration,
			},
		}
	}
	return d
}

var _ hardware.Synchronizer = (*Driver)(nil)

func (d *Driver) StartSynchronization() {
	d.batchLock.Lock()
}

func (d *Driver) EndSynchronization() {
	d.batchLock.Unlock()
}

// Motor returns the actuator for one channel.
func (d *Driver) Motor(channel int) *Motor {
	return d.motors[channel]
}

// Loop runs the control loop until ctx is done, then stops the motors.
func (d *Driver) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(d.cfg.Period)
	defer ticker.Stop()

	errs := logging.Sampled(d.log)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			if err := d.board.SetMotorSpeeds(PerMotorVal[int16]{}); err != nil {
				d.log.Error().Err(err).Msg("Failed to stop motors")
			}
			return
		case now := <-ticker.C:
			if err := d.Tick(now.Sub(last)); err != nil {
				errs.Warn().Err(err).Msg("Control loop tick failed")
			}
			last = now
		}
	}
}

// Tick advances every channel by dt and writes the new speeds.
func (d *Driver) Tick(dt time.Duration) error {
	d.batchLock.Lock()
	defer d.batchLock.Unlock()

	if err := d.tracker.Poll(); err != nil {
		return err
	}

	d.lock.Lock()
	degrees := d.tracker.Degrees()
	var speeds PerMotorVal[int16]
	for i, m := range d.motors {
		m.position = degrees[i] - m.offset
		if d.polled {
			m.update(dt)
		}
		speeds[i] = d.register(m.profile.Velocity)
	}
	d.polled = true
	d.lock.Unlock()

	return d.board.SetMotorSpeeds(speeds)
}

func (d *Driver) register(velocity float64) int16 {
	v := math.Round(velocity / d.cfg.MaxSpeed * motorFullRange)
	return int16(math.Max(-motorFullRange, math.Min(motorFullRange, v)))
}

// Motor is one channel of the board as an actuator. Positions are in
// degrees of motor rotation.
type Motor struct {
	d       *Driver
	channel int

	profile  hardware.Profile
	position float64
	offset   float64

	stillFor     time.Duration
	lastProgress float64
	stalled      bool
}

var _ hardware.Actuator = (*Motor)(nil)

// update runs under the driver lock.
func (m *Motor) update(dt time.Duration) {
	m.profile.Step(dt.Seconds(), m.position)

	driven := m.profile.Moving() && m.profile.Velocity != 0
	if !driven || math.Abs(m.position-m.lastProgress) >= 1 {
		m.lastProgress = m.position
		m.stillFor = 0
		m.stalled = false
		return
	}
	m.stillFor += dt
	if m.stillFor >= m.d.cfg.StallTime && !m.stalled {
		m.stalled = true
		m.d.log.Warn().Int("channel", m.channel).Float64("position", m.position).Msg("Motor stalled")
	}
}

func (m *Motor) do(fn func()) {
	m.d.lock.Lock()
	defer m.d.lock.Unlock()
	fn()
}

func (m *Motor) SetSpeed(ticksPerSecond float64) {
	m.do(func() { m.profile.Speed = math.Min(math.Abs(ticksPerSecond), m.d.cfg.MaxSpeed) })
}

func (m *Motor) SetAcceleration(ticksPerSecondSquared float64) {
	m.do(func() { m.profile.Acceleration = math.Abs(ticksPerSecondSquared) })
}

func (m *Motor) Forward()  { m.do(m.profile.Forward) }
func (m *Motor) Backward() { m.do(m.profile.Backward) }
func (m *Motor) Stop()     { m.do(m.profile.Stop) }
func (m *Motor) Float()    { m.do(m.profile.Float) }

func (m *Motor) RotateBy(ticks int, block bool) {
	m.do(func() { m.profile.MoveTo(math.Round(m.position) + float64(ticks)) })
	if block {
		m.wait()
	}
}

func (m *Motor) RotateTo(ticks int, block bool) {
	m.do(func() { m.profile.MoveTo(float64(ticks)) })
	if block {
		m.wait()
	}
}

func (m *Motor) wait() {
	for m.IsMoving() {
		time.Sleep(m.d.cfg.Period)
	}
}

func (m *Motor) EncoderPosition() int {
	var p float64
	m.do(func() { p = m.position })
	return int(math.Round(p))
}

func (m *Motor) ResetEncoder() {
	m.do(func() {
		m.profile.Target -= m.position
		m.offset += m.position
		m.lastProgress -= m.position
		m.position = 0
	})
}

func (m *Motor) RotationSpeed() float64 {
	var v float64
	m.do(func() { v = m.profile.Velocity })
	return v
}

func (m *Motor) IsMoving() bool {
	var moving bool
	m.do(func() { moving = m.profile.Moving() })
	return moving
}

func (m *Motor) IsStalled() bool {
	var stalled bool
	m.do(func() { stalled = m.stalled })
	return stalled
}

func (m *Motor) MaxSpeed() float64 {
	return m.d.cfg.MaxSpeed
}
