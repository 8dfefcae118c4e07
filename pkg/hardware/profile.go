package hardware

import "math"

type ProfileMode int

const (
	ProfileIdle ProfileMode = iota
	ProfileVelocity
	ProfilePosition
)

// crawlSpeed is the slowest speed a position move decelerates to before
// snapping onto its target.
const crawlSpeed = 10.0

// Profile generates a trapezoidal speed profile for one actuator from the
// Actuator commands. It is not safe for concurrent use.
type Profile struct {
	Speed        float64
	Acceleration float64

	Mode      ProfileMode
	Direction float64
	Target    float64
	// Velocity is the signed speed the profile currently demands.
	Velocity float64
}

func (p *Profile) Forward() {
	p.Mode = ProfileVelocity
	p.Direction = 1
}

func (p *Profile) Backward() {
	p.Mode = ProfileVelocity
	p.Direction = -1
}

// Stop ramps down to rest.
func (p *Profile) Stop() {
	p.Direction = 0
	if p.Velocity == 0 {
		p.Mode = ProfileIdle
		return
	}
	p.Mode = ProfileVelocity
}

// Float drops the demand to zero at once.
func (p *Profile) Float() {
	p.Mode = ProfileIdle
	p.Direction = 0
	p.Velocity = 0
}

func (p *Profile) MoveTo(target float64) {
	p.Target = target
	p.Mode = ProfilePosition
}

func (p *Profile) Moving() bool {
	return p.Mode != ProfileIdle
}

func approach(v, target, maxDelta float64) float64 {
	if math.IsInf(maxDelta, 1) || math.Abs(target-v) <= maxDelta {
		return target
	}
	if target > v {
		return v + maxDelta
	}
	return v - maxDelta
}

func (p *Profile) maxDelta(dt float64) float64 {
	if p.Acceleration <= 0 {
		return math.Inf(1)
	}
	return p.Acceleration * dt
}

// Step advances the profile by dt seconds from position and returns where
// the actuator should be at the end of the step.
func (p *Profile) Step(dt, position float64) float64 {
	switch p.Mode {
	case ProfileIdle:
		p.Velocity = 0
	case ProfileVelocity:
		p.Velocity = approach(p.Velocity, p.Direction*p.Speed, p.maxDelta(dt))
		if p.Direction == 0 && p.Velocity == 0 {
			p.Mode = ProfileIdle
		}
	case ProfilePosition:
		remaining := p.Target - position
		if math.Abs(remaining) <= math.Abs(p.Velocity)*dt || math.Abs(remaining) < 1e-9 {
			p.Velocity = 0
			p.Mode = ProfileIdle
			return p.Target
		}
		dir := 1.0
		if remaining < 0 {
			dir = -1
		}
		crawl := math.Min(crawlSpeed, p.Speed)
		want := dir * p.Speed
		if p.Velocity*dir > 0 && p.Acceleration > 0 &&
			p.Velocity*p.Velocity/(2*p.Acceleration) >= math.Abs(remaining) {
			want = dir * crawl
		}
		p.Velocity = approach(p.Velocity, want, p.maxDelta(dt))
		if p.Velocity*dir >= 0 && math.Abs(p.Velocity) < crawl {
			p.Velocity = dir * crawl
		}
	}
	return position + p.Velocity*dt
}
