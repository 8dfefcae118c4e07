package geometry

import (
	"math"
	"sync"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// Steering describes the steered axle of an Ackermann drivetrain. Offset is
// the distance between the driven and the steered axle, MaxAngle the largest
// steering deflection in degrees and GearRatio the actuator degrees per
// degree of steering. The centre position is calibration data and may change
// at runtime.
type Steering struct {
	Offset    float64
	MaxAngle  float64
	GearRatio float64

	centerLock sync.Mutex
	center     float64
}

func NewSteering(offset, maxAngle, gearRatio float64) *Steering {
	return &Steering{
		Offset:    offset,
		MaxAngle:  maxAngle,
		GearRatio: gearRatio,
	}
}

func (s *Steering) Validate() error {
	if !(s.Offset > 0) || math.IsInf(s.Offset, 0) {
		return motion.Configuration("steering offset %v must be positive", s.Offset)
	}
	if !(s.MaxAngle > 0 && s.MaxAngle < 90) {
		return motion.Configuration("steering max angle %v must be in (0, 90)", s.MaxAngle)
	}
	if s.GearRatio == 0 || math.IsNaN(s.GearRatio) || math.IsInf(s.GearRatio, 0) {
		return motion.Configuration("steering gear ratio %v must be non-zero", s.GearRatio)
	}
	return nil
}

// Center returns the actuator position, in ticks, at which the wheels point
// straight ahead.
func (s *Steering) Center() float64 {
	s.centerLock.Lock()
	defer s.centerLock.Unlock()
	return s.center
}

func (s *Steering) SetCenter(ticks float64) {
	s.centerLock.Lock()
	defer s.centerLock.Unlock()
	s.center = ticks
}

// RadiusToAngle returns the steering angle in degrees for a turn of the given
// radius. Positive radius turns left. An infinite radius is straight ahead.
func (s *Steering) RadiusToAngle(radius float64) float64 {
	if math.IsInf(radius, 0) {
		return 0
	}
	return math.Atan(s.Offset/radius) * 180 / math.Pi
}

// AngleToRadius is the inverse of RadiusToAngle.
func (s *Steering) AngleToRadius(angle float64) float64 {
	if angle == 0 {
		return math.Inf(1)
	}
	return s.Offset / math.Tan(angle*math.Pi/180)
}

func (s *Steering) AngleToTicks(angle float64) float64 {
	return angle*s.GearRatio + s.Center()
}

func (s *Steering) TicksToAngle(ticks float64) float64 {
	return (ticks - s.Center()) / s.GearRatio
}

// MinRadius is the tightest turn the steering can make.
func (s *Steering) MinRadius() float64 {
	return s.AngleToRadius(s.MaxAngle)
}
