// Package pilot tracks one logical move at a time on top of a chassis. It
// offers blocking and non-blocking variants of the motion vocabulary,
// watches each move until it completes or stalls, and tells listeners when
// moves start and stop.
package pilot

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// Chassis is the part of chassis.Chassis the pilot drives.
type Chassis interface {
	Travel(linearSpeed, angularSpeed float64) error
	MoveTo(distance float64) error
	Arc(radius, angle float64) error
	Stop()
	IsMoving() bool
	IsStalled() bool

	MoveStart()
	Displacement(move *motion.Move)
	PeekDisplacement(move *motion.Move)

	Dynamics() motion.Dynamics
	SetLinearSpeed(speed float64) error
	SetAngularSpeed(speed float64) error
	SetLinearAcceleration(accel float64) error
	SetAngularAcceleration(accel float64) error
	MinRadius() float64
	TrackWidth() float64
}

type Pilot struct {
	log     zerolog.Logger
	chassis Chassis
	clock   hardware.Clock
	metrics *metrics

	// requestLock serialises move requests. It is not held while a blocking
	// call waits for its move to finish.
	requestLock sync.Mutex

	stateLock sync.Mutex
	moveDone  *sync.Cond
	state

	listenersLock sync.RWMutex
	listeners     []MoveListener

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type state struct {
	move      motion.Move
	lastMove  motion.Move
	moveID    uint64
	active    bool
	replace   bool
	stalled   bool
	closed    bool
	minRadius float64
	// continuous re-dispatches the current move when it runs until stopped,
	// so that speed changes take effect immediately.
	continuous func() error
}

// New creates a pilot and starts its monitor. The monitor runs until ctx is
// cancelled or Close is called.
func New(ctx context.Context, chassis Chassis) (*Pilot, error) {
	p := &Pilot{
		log:     logging.Component("pilot"),
		chassis: chassis,
		clock:   hardware.SystemClock{},
		wake:    make(chan struct{}, 1),
	}
	p.moveDone = sync.NewCond(&p.stateLock)

	var err error
	p.metrics, err = newMetrics()
	if err != nil {
		return nil, err
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.Monitor(ctx, &p.wg)
	return p, nil
}

// Close stops the monitor and releases any blocked callers. It does not stop
// the chassis.
func (p *Pilot) Close() {
	p.cancel()
	p.wg.Wait()
}

// Motion vocabulary

// Forward travels forwards until stopped.
func (p *Pilot) Forward() error {
	return p.Travel(math.Inf(1), true)
}

// Backward travels backwards until stopped.
func (p *Pilot) Backward() error {
	return p.Travel(math.Inf(-1), true)
}

// Travel moves distance mm in a straight line. An infinite distance travels
// until stopped.
func (p *Pilot) Travel(distance float64, immediateReturn bool) error {
	if math.IsNaN(distance) {
		return motion.InvalidArgument("distance", distance, "distance must be a number")
	}
	d := p.chassis.Dynamics()
	move := motion.Move{
		Type:         motion.Travel,
		Distance:     distance,
		LinearSpeed:  d.LinearSpeed,
		AngularSpeed: d.AngularSpeed,
	}

	var id uint64
	var err error
	if math.IsInf(distance, 0) {
		dispatch := func() error {
			return p.chassis.Travel(motion.Sign(distance)*p.chassis.Dynamics().LinearSpeed, 0)
		}
		id, err = p.start(move, dispatch, false, true)
	} else {
		id, err = p.start(move, func() error { return p.chassis.MoveTo(distance) }, false, false)
	}
	if err != nil || immediateReturn {
		return err
	}
	p.waitMove(id)
	return nil
}

// Arc drives along a circle of the given radius until the heading has
// changed by angle degrees. Positive radii turn left; negative angles drive
// backwards. A zero radius rotates on the spot, an infinite angle drives the
// circle until stopped.
func (p *Pilot) Arc(radius, angle float64, immediateReturn bool) error {
	if math.IsNaN(radius) {
		return motion.InvalidArgument("radius", radius, "radius must be a number")
	}
	if math.IsNaN(angle) {
		return motion.InvalidArgument("angle", angle, "angle must be a number")
	}
	if math.Abs(radius) < p.MinRadius() {
		return motion.InvalidArgument("radius", radius, "tighter than the minimum turn radius")
	}
	if math.IsInf(radius, 0) {
		if math.IsInf(angle, 0) {
			return p.Travel(angle, immediateReturn)
		}
		return motion.InvalidArgument("radius", radius, "a finite angle needs a finite radius")
	}
	if angle == 0 {
		return nil
	}
	return p.arc(radius, angle, immediateReturn, false)
}

func (p *Pilot) arc(radius, angle float64, immediateReturn, replace bool) error {
	d := p.chassis.Dynamics()
	move := motion.Move{
		Type:         motion.Arc,
		Angle:        angle,
		Distance:     motion.Sign(angle) * 2 * math.Pi * math.Abs(radius) * math.Abs(angle) / 360,
		LinearSpeed:  d.LinearSpeed,
		AngularSpeed: d.AngularSpeed,
	}
	if radius == 0 {
		move.Type = motion.Rotate
		move.Distance = 0
	}
	if math.IsInf(radius, 0) {
		move.Type = motion.Travel
		move.Distance = angle
		move.Angle = 0
	}

	continuous := math.IsInf(angle, 0)
	id, err := p.start(move, func() error { return p.chassis.Arc(radius, angle) }, replace, continuous)
	if err != nil || immediateReturn {
		return err
	}
	p.waitMove(id)
	return nil
}

// ArcForward drives forwards around a circle until stopped.
func (p *Pilot) ArcForward(radius float64) error {
	return p.Arc(radius, math.Inf(1), true)
}

// ArcBackward drives backwards around a circle until stopped.
func (p *Pilot) ArcBackward(radius float64) error {
	return p.Arc(radius, math.Inf(-1), true)
}

// TravelArc drives distance mm along a circle of the given radius.
func (p *Pilot) TravelArc(radius, distance float64, immediateReturn bool) error {
	if math.IsNaN(distance) {
		return motion.InvalidArgument("distance", distance, "distance must be a number")
	}
	if math.IsInf(radius, 0) {
		return p.Travel(distance, immediateReturn)
	}
	if radius == 0 {
		if distance != 0 {
			return motion.InvalidArgument("radius", radius, "cannot travel a distance on a zero radius")
		}
		return nil
	}
	return p.Arc(radius, distance*180/(math.Pi*math.Abs(radius)), immediateReturn)
}

// Rotate turns on the spot by angle degrees, counter-clockwise if positive.
func (p *Pilot) Rotate(angle float64, immediateReturn bool) error {
	return p.Arc(0, angle, immediateReturn)
}

// RotateLeft rotates counter-clockwise until stopped.
func (p *Pilot) RotateLeft() error {
	return p.Rotate(math.Inf(1), true)
}

// RotateRight rotates clockwise until stopped.
func (p *Pilot) RotateRight() error {
	return p.Rotate(math.Inf(-1), true)
}

// Steer drives forwards until stopped, turning by an amount given by ratio
// in [-100, 100]. 0 drives straight, positive values turn left and ±100
// pivots around the inner wheel. Steering replaces an active move without
// stopping the chassis first.
func (p *Pilot) Steer(ratio float64) error {
	return p.steer(ratio, math.Inf(1))
}

// SteerBackward is Steer driving backwards.
func (p *Pilot) SteerBackward(ratio float64) error {
	return p.steer(ratio, math.Inf(-1))
}

func (p *Pilot) steer(ratio, angle float64) error {
	if math.IsNaN(ratio) {
		return motion.InvalidArgument("ratio", ratio, "ratio must be a number")
	}
	radius := p.steerRadius(ratio)
	if !math.IsInf(radius, 0) && math.Abs(radius) < p.MinRadius() {
		radius = motion.Sign(radius) * p.MinRadius()
	}
	return p.arc(radius, angle, true, true)
}

// steerRadius maps a steering ratio to a turn radius based on the track
// width: ±100 puts the centre of the turn under the inner wheel, smaller
// ratios widen the turn towards a straight line at 0.
func (p *Pilot) steerRadius(ratio float64) float64 {
	ratio = motion.Clamp(ratio, -100, 100)
	if ratio == 0 {
		return math.Inf(1)
	}
	r := math.Abs(ratio) / 100
	return ((1-r)/r + 0.5) * p.chassis.TrackWidth() * motion.Sign(ratio)
}

// Stop brings the chassis to rest and waits until the current move has been
// finalised. It always blocks.
func (p *Pilot) Stop() {
	p.requestLock.Lock()
	p.chassis.Stop()
	p.requestLock.Unlock()
	p.waitIdle()
}

// WaitComplete blocks until the current move, if any, has finished.
func (p *Pilot) WaitComplete() {
	p.stateLock.Lock()
	id := p.moveID
	p.stateLock.Unlock()
	p.waitMove(id)
}

// State

func (p *Pilot) IsMoving() bool {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.active
}

// IsStalled reports whether the most recent move ended because an actuator
// stalled. It is cleared when the next move starts.
func (p *Pilot) IsStalled() bool {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	return p.stalled
}

// Movement returns the move in progress, with the displacement travelled so
// far, or the last completed move if the pilot is idle.
func (p *Pilot) Movement() motion.Move {
	p.stateLock.Lock()
	active, move := p.active, p.move
	if !active {
		move = p.lastMove
	}
	p.stateLock.Unlock()

	if active {
		p.chassis.PeekDisplacement(&move)
	}
	return move
}

// Settings

// MinRadius is the tightest turn the pilot will accept: the larger of its
// own setting and the chassis' limit.
func (p *Pilot) MinRadius() float64 {
	p.stateLock.Lock()
	r := p.minRadius
	p.stateLock.Unlock()
	return math.Max(r, p.chassis.MinRadius())
}

func (p *Pilot) SetMinRadius(radius float64) error {
	if !(radius >= 0) || math.IsInf(radius, 0) {
		return motion.InvalidArgument("minRadius", radius, "must be zero or positive")
	}
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	p.minRadius = radius
	return nil
}

func (p *Pilot) Dynamics() motion.Dynamics {
	return p.chassis.Dynamics()
}

func (p *Pilot) SetLinearSpeed(speed float64) error {
	return p.updateDynamics(p.chassis.SetLinearSpeed(speed))
}

func (p *Pilot) SetAngularSpeed(speed float64) error {
	return p.updateDynamics(p.chassis.SetAngularSpeed(speed))
}

func (p *Pilot) SetLinearAcceleration(accel float64) error {
	return p.updateDynamics(p.chassis.SetLinearAcceleration(accel))
}

func (p *Pilot) SetAngularAcceleration(accel float64) error {
	return p.updateDynamics(p.chassis.SetAngularAcceleration(accel))
}

// updateDynamics re-issues a continuous move so that new settings apply to
// it straight away. Finite moves keep the settings they started with.
func (p *Pilot) updateDynamics(err error) error {
	if err != nil {
		return err
	}
	p.requestLock.Lock()
	defer p.requestLock.Unlock()

	p.stateLock.Lock()
	redispatch := p.continuous
	if !p.active {
		redispatch = nil
	}
	p.stateLock.Unlock()

	if redispatch != nil {
		return redispatch()
	}
	return nil
}
