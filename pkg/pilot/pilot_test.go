package pilot

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/geometry"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type event struct {
	started bool
	move    motion.Move
	// chassisMoving is whether the chassis was moving when the event fired.
	chassisMoving bool
}

type recorder struct {
	chassis *chassis.Chassis

	lock   sync.Mutex
	events []event
}

func (r *recorder) MoveStarted(m motion.Move) {
	moving := r.chassis.IsMoving()
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event{started: true, move: m, chassisMoving: moving})
}

func (r *recorder) MoveStopped(m motion.Move) {
	moving := r.chassis.IsMoving()
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event{started: false, move: m, chassisMoving: moving})
}

func (r *recorder) Events() []event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) stops() []motion.Move {
	var moves []motion.Move
	for _, e := range r.Events() {
		if !e.started {
			moves = append(moves, e.move)
		}
	}
	return moves
}

type rig struct {
	pilot   *Pilot
	chassis *chassis.Chassis
	bus     *hardware.SimBus
	motors  []*hardware.SimActuator
	events  *recorder
}

func newRig(t *testing.T) *rig {
	bus := hardware.NewSimBus(nil)
	l := bus.NewActuator("left", 2000)
	r := bus.NewActuator("right", 2000)
	wheels := geometry.DifferentialPair(43.2, 142)
	c, err := chassis.New(context.Background(), chassis.Config{
		Drivetrain: kinematics.Differential,
		Wheels: []chassis.Wheel{
			{Geometry: wheels[0], Actuator: l},
			{Geometry: wheels[1], Actuator: r},
		},
		Synchronizer: bus,
	})
	require.NoError(t, err)
	require.NoError(t, c.SetDynamics(400, 400, 1500, 1500))

	p, err := New(context.Background(), c)
	require.NoError(t, err)
	rec := &recorder{chassis: c}
	p.AddMoveListener(rec)

	t.Cleanup(func() {
		p.Stop()
		p.Close()
		c.Close()
	})
	return &rig{pilot: p, chassis: c, bus: bus, motors: []*hardware.SimActuator{l, r}, events: rec}
}

func TestBlockingTravel(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.Travel(100, false))
	assert.False(t, r.pilot.IsMoving())
	assert.False(t, r.chassis.IsMoving())

	events := r.events.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].started)
	assert.Equal(t, motion.Travel, events[0].move.Type)
	assert.Equal(t, 100.0, events[0].move.Distance)
	assert.True(t, events[0].move.Moving)
	assert.False(t, events[0].chassisMoving, "listeners hear about a move before it is dispatched")

	assert.False(t, events[1].started)
	assert.Equal(t, motion.Travel, events[1].move.Type)
	assert.InDelta(t, 100, events[1].move.Distance, 0.5)
	assert.False(t, events[1].move.Moving)

	last := r.pilot.Movement()
	assert.InDelta(t, 100, last.Distance, 0.5)
}

func TestStopBeforeCompletion(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.chassis.SetDynamics(200, 200, 400, 400))

	require.NoError(t, r.pilot.Travel(500, true))
	assert.True(t, r.pilot.IsMoving())
	time.Sleep(200 * time.Millisecond)

	inFlight := r.pilot.Movement()
	assert.True(t, inFlight.Moving)
	assert.Greater(t, inFlight.Distance, 0.0)

	r.pilot.Stop()
	assert.False(t, r.chassis.IsMoving())
	assert.False(t, r.pilot.IsMoving())

	stops := r.events.stops()
	require.Len(t, stops, 1)
	assert.Greater(t, stops[0].Distance, 0.0)
	assert.Less(t, stops[0].Distance, 500.0)
	assert.GreaterOrEqual(t, stops[0].Distance, inFlight.Distance)
}

func TestRotate360(t *testing.T) {
	r := newRig(t)
	odo := r.chassis.Odometer()

	require.NoError(t, r.pilot.Rotate(360, false))
	assert.Equal(t, -r.motors[0].EncoderPosition(), r.motors[1].EncoderPosition())

	stops := r.events.stops()
	require.Len(t, stops, 1)
	assert.Equal(t, motion.Rotate, stops[0].Type)
	assert.InDelta(t, 360, stops[0].Angle, 0.5)

	require.Eventually(t, func() bool {
		p := odo.Pose()
		return math.Abs(p.HeadingDegrees()) < 0.5 && math.Hypot(p.X, p.Y) < 2
	}, 2*time.Second, 10*time.Millisecond, "pose %v", odo.Pose())
}

func TestNewMoveStopsOldMove(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.Forward())
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, r.pilot.Travel(-20, false))

	events := r.events.Events()
	require.Len(t, events, 4)
	assert.True(t, events[0].started)
	assert.True(t, math.IsInf(events[0].move.Distance, 1))
	assert.False(t, events[1].started)
	assert.False(t, events[1].move.Moving, "the old move was stopped before the new one")
	assert.Greater(t, events[1].move.Distance, 0.0)
	assert.True(t, events[2].started)
	assert.InDelta(t, -20, events[3].move.Distance, 0.5)
}

func TestSteerReplacesMoveWithoutStopping(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.ArcForward(300))
	time.Sleep(100 * time.Millisecond)
	r.bus.ClearCommands()

	require.NoError(t, r.pilot.Steer(-50))
	time.Sleep(50 * time.Millisecond)
	for _, c := range r.bus.Commands() {
		assert.NotEqual(t, "Stop", c.Op, "steering does not stop the chassis: %v", c)
	}

	events := r.events.Events()
	require.Len(t, events, 3)
	assert.False(t, events[1].started)
	assert.True(t, events[1].move.Moving, "the replaced move was still moving when it was finalised")
	assert.Equal(t, motion.Arc, events[2].move.Type)
	assert.True(t, r.pilot.IsMoving())

	// Turning right now: the left wheel runs faster.
	require.Eventually(t, func() bool {
		return r.motors[0].RotationSpeed() > r.motors[1].RotationSpeed()
	}, time.Second, time.Millisecond)

	require.NoError(t, r.pilot.Steer(0))
	require.Eventually(t, func() bool {
		return math.Abs(r.motors[0].RotationSpeed()-r.motors[1].RotationSpeed()) < 1
	}, time.Second, time.Millisecond)

	require.NoError(t, r.pilot.SteerBackward(100))
	require.Eventually(t, func() bool {
		return r.motors[1].RotationSpeed() < 0
	}, time.Second, time.Millisecond)
	r.pilot.Stop()
}

func TestSteerRadius(t *testing.T) {
	r := newRig(t)
	p := r.pilot

	assert.True(t, math.IsInf(p.steerRadius(0), 1))
	assert.InDelta(t, 71, p.steerRadius(100), 1e-9)
	assert.InDelta(t, -71, p.steerRadius(-100), 1e-9)
	assert.InDelta(t, 213, p.steerRadius(50), 1e-9)
	assert.InDelta(t, 71, p.steerRadius(250), 1e-9, "ratios are clamped")

	assert.Error(t, p.Steer(math.NaN()))
}

func TestStallEndsMove(t *testing.T) {
	r := newRig(t)

	r.motors[1].Jam(true)
	done := make(chan error)
	go func() { done <- r.pilot.Travel(300, false) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocking travel was not released by the stall")
	}
	assert.True(t, r.pilot.IsStalled())
	assert.False(t, r.chassis.IsMoving())
	stops := r.events.stops()
	require.Len(t, stops, 1)
	assert.Less(t, stops[0].Distance, 300.0)

	r.motors[1].Jam(false)
	require.NoError(t, r.pilot.Travel(10, false))
	assert.False(t, r.pilot.IsStalled(), "a new move clears the stall")
}

func TestInvalidArguments(t *testing.T) {
	r := newRig(t)
	p := r.pilot

	check := func(err error) {
		assert.True(t, errors.Is(err, motion.ErrInvalidArgument), "%v", err)
	}
	check(p.Travel(math.NaN(), true))
	check(p.Arc(math.NaN(), 90, true))
	check(p.Arc(100, math.NaN(), true))
	check(p.Arc(math.Inf(1), 90, true))
	check(p.TravelArc(0, 100, true))
	check(p.SetMinRadius(-1))

	require.NoError(t, p.SetMinRadius(50))
	assert.Equal(t, 50.0, p.MinRadius())
	check(p.Arc(20, 90, true))
	check(p.Rotate(90, true))
	require.NoError(t, p.SetMinRadius(0))

	check(p.SetLinearSpeed(0))
	check(p.SetAngularAcceleration(-5))
	assert.Empty(t, r.events.Events(), "rejected requests never start a move")
}

func TestTravelArc(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.TravelArc(-100, 2*math.Pi*100/4, false))
	stops := r.events.stops()
	require.Len(t, stops, 1)
	assert.Equal(t, motion.Arc, stops[0].Type)
	assert.InDelta(t, 2*math.Pi*100/4, stops[0].Distance, 1)
	assert.InDelta(t, -90, stops[0].Angle, 1, "a negative radius turns right")
}

func TestLiveSpeedChange(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.Forward())
	require.Eventually(t, func() bool {
		return r.motors[0].RotationSpeed() > 0 && !r.motorsAccelerating()
	}, time.Second, time.Millisecond)
	before := r.motors[0].RotationSpeed()

	require.NoError(t, r.pilot.SetLinearSpeed(600))
	require.Eventually(t, func() bool {
		return r.motors[0].RotationSpeed() > before*1.4
	}, time.Second, time.Millisecond)
	assert.Equal(t, 600.0, r.pilot.Dynamics().LinearSpeed)
	assert.Len(t, r.events.Events(), 1, "a speed change does not start a new move")
}

func (r *rig) motorsAccelerating() bool {
	a := r.motors[0].RotationSpeed()
	time.Sleep(2 * time.Millisecond)
	return r.motors[0].RotationSpeed() != a
}

func TestRemoveListener(t *testing.T) {
	r := newRig(t)
	var count int
	var lock sync.Mutex
	l := &MoveListenerFuncs{Stopped: func(motion.Move) {
		lock.Lock()
		defer lock.Unlock()
		count++
	}}
	r.pilot.AddMoveListener(l)
	require.NoError(t, r.pilot.Travel(5, false))
	r.pilot.RemoveMoveListener(l)
	require.NoError(t, r.pilot.Travel(5, false))

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, 1, count)
	assert.Len(t, r.events.stops(), 2)
}

func TestContinuousRotation(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.pilot.RotateLeft())
	time.Sleep(100 * time.Millisecond)
	assert.Less(t, r.motors[0].RotationSpeed(), 0.0)
	assert.Greater(t, r.motors[1].RotationSpeed(), 0.0)

	require.NoError(t, r.pilot.RotateRight())
	require.Eventually(t, func() bool {
		return r.motors[0].RotationSpeed() > 0
	}, time.Second, time.Millisecond)

	r.pilot.Stop()
	stops := r.events.stops()
	require.Len(t, stops, 2)
	assert.Equal(t, motion.Rotate, stops[0].Type)
	assert.Greater(t, stops[0].Angle, 1.0)
}

func TestBlockingContinuousMoveWaitsForStop(t *testing.T) {
	for name, move := range map[string]func(p *Pilot) error{
		"arc":    func(p *Pilot) error { return p.Arc(300, math.Inf(1), false) },
		"travel": func(p *Pilot) error { return p.Travel(math.Inf(-1), false) },
		"rotate": func(p *Pilot) error { return p.Rotate(math.Inf(1), false) },
	} {
		t.Run(name, func(t *testing.T) {
			r := newRig(t)
			done := make(chan error, 1)
			go func() { done <- move(r.pilot) }()

			select {
			case err := <-done:
				t.Fatalf("returned while still driving: %v", err)
			case <-time.After(300 * time.Millisecond):
			}
			assert.True(t, r.chassis.IsMoving())

			r.pilot.Stop()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("still blocked after Stop")
			}
			assert.False(t, r.chassis.IsMoving())
		})
	}
}

func TestConcurrentSpeedChangesAreNotLost(t *testing.T) {
	r := newRig(t)

	var wg sync.WaitGroup
	for _, set := range []func(float64) error{r.pilot.SetLinearSpeed, r.pilot.SetAngularSpeed} {
		wg.Add(1)
		go func(set func(float64) error) {
			defer wg.Done()
			for v := 1; v <= 300; v++ {
				assert.NoError(t, set(float64(v)))
			}
		}(set)
	}
	wg.Wait()

	d := r.pilot.Dynamics()
	assert.Equal(t, 300.0, d.LinearSpeed)
	assert.Equal(t, 300.0, d.AngularSpeed)
	assert.Equal(t, 1500.0, d.LinearAcceleration)
}
