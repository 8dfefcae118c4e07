package pca9685

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
)

const servoStep = time.Millisecond

type ServoConfig struct {
	Port int
	// Range is the travel in degrees between the shortest and longest
	// pulse. The middle of the range is position zero.
	Range float64
	// MaxSpeed is the servo's slew rate in degrees per second.
	MaxSpeed float64
	Clock    hardware.Clock
}

// Servo drives a hobby servo on one PCA9685 output as an actuator.
// Positions are degrees of servo travel. A servo reports nothing back, so
// the position is an estimate from the commanded moves and the slew rate.
type Servo struct {
	log  zerolog.Logger
	errs zerolog.Logger
	out  Outputs
	cfg  ServoConfig

	lock     sync.Mutex
	last     time.Time
	position float64
	offset   float64
	profile  hardware.Profile
}

var _ hardware.Actuator = (*Servo)(nil)

func NewServo(out Outputs, cfg ServoConfig) *Servo {
	if cfg.Range <= 0 {
		cfg.Range = 180
	}
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = 300
	}
	if cfg.Clock == nil {
		cfg.Clock = hardware.SystemClock{}
	}
	log := logging.Component("servo").With().Int("port", cfg.Port).Logger()
	return &Servo{
		log:  log,
		errs: logging.Sampled(log),
		out:  out,
		cfg:  cfg,
		profile: hardware.Profile{
			Speed: cfg.MaxSpeed,
		},
	}
}

// limits returns the travel limits relative to the current zero.
func (s *Servo) limits() (float64, float64) {
	half := s.cfg.Range / 2
	return -half - s.offset, half - s.offset
}

func (s *Servo) advance() {
	now := s.cfg.Clock.Now()
	if s.last.IsZero() || !s.profile.Moving() {
		s.last = now
		return
	}
	lo, hi := s.limits()
	for now.Sub(s.last) >= servoStep && s.profile.Moving() {
		s.position = s.profile.Step(servoStep.Seconds(), s.position)
		if s.position <= lo || s.position >= hi {
			s.position = math.Max(lo, math.Min(hi, s.position))
			if s.profile.Mode == hardware.ProfileVelocity {
				s.profile.Float()
			}
		}
		s.last = s.last.Add(servoStep)
	}
	s.last = now
}

// point sends the servo to position, clamped to its travel.
func (s *Servo) point(position float64) {
	lo, hi := s.limits()
	position = math.Max(lo, math.Min(hi, position))
	value := 0.5 + (position+s.offset)/s.cfg.Range
	if err := s.out.SetServo(s.cfg.Port, value); err != nil {
		s.errs.Warn().Err(err).Msg("Failed to set servo")
	}
}

func (s *Servo) SetSpeed(ticksPerSecond float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	s.profile.Speed = math.Min(math.Abs(ticksPerSecond), s.cfg.MaxSpeed)
}

func (s *Servo) SetAcceleration(ticksPerSecondSquared float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	s.profile.Acceleration = math.Abs(ticksPerSecondSquared)
}

func (s *Servo) Forward() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	_, hi := s.limits()
	s.profile.Forward()
	s.point(hi)
}

func (s *Servo) Backward() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	lo, _ := s.limits()
	s.profile.Backward()
	s.point(lo)
}

func (s *Servo) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	rest := s.position
	if v := s.profile.Velocity; s.profile.Acceleration > 0 {
		rest += v * math.Abs(v) / (2 * s.profile.Acceleration)
	}
	if rest == s.position {
		s.profile.Float()
	} else {
		s.profile.MoveTo(rest)
	}
	s.point(rest)
}

func (s *Servo) Float() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	s.profile.Float()
	if err := s.out.SetOff(s.cfg.Port); err != nil {
		s.errs.Warn().Err(err).Msg("Failed to release servo")
	}
}

func (s *Servo) RotateBy(ticks int, block bool) {
	s.lock.Lock()
	s.advance()
	s.moveTo(s.position + float64(ticks))
	s.lock.Unlock()
	if block {
		s.wait()
	}
}

func (s *Servo) RotateTo(ticks int, block bool) {
	s.lock.Lock()
	s.advance()
	s.moveTo(float64(ticks))
	s.lock.Unlock()
	if block {
		s.wait()
	}
}

func (s *Servo) moveTo(target float64) {
	lo, hi := s.limits()
	target = math.Max(lo, math.Min(hi, target))
	s.log.Debug().Float64("from", s.position).Float64("to", target).Msg("Servo move")
	s.profile.MoveTo(target)
	s.point(target)
}

func (s *Servo) wait() {
	for s.IsMoving() {
		s.cfg.Clock.Sleep(5 * time.Millisecond)
	}
}

func (s *Servo) EncoderPosition() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	return int(math.Round(s.position))
}

func (s *Servo) ResetEncoder() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	s.profile.Target -= s.position
	s.offset += s.position
	s.position = 0
}

func (s *Servo) RotationSpeed() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	return s.profile.Velocity
}

func (s *Servo) IsMoving() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advance()
	return s.profile.Moving()
}

// IsStalled is always false: a servo has no way to report a stall.
func (s *Servo) IsStalled() bool {
	return false
}

func (s *Servo) MaxSpeed() float64 {
	return s.cfg.MaxSpeed
}
