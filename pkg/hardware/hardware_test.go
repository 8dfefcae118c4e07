package hardware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimRotateBy(t *testing.T) {
	bus := NewSimBus(nil)
	m := bus.NewActuator("left", 3600)
	m.SetSpeed(3600)
	m.SetAcceleration(36000)

	start := time.Now()
	m.RotateBy(720, true)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 720, m.EncoderPosition())
	assert.False(t, m.IsMoving())
	assert.Zero(t, m.RotationSpeed())

	m.RotateTo(-90, true)
	assert.Equal(t, -90, m.EncoderPosition())
}

func TestSimVelocityMode(t *testing.T) {
	bus := NewSimBus(nil)
	m := bus.NewActuator("right", 1000)
	m.SetSpeed(5000)
	m.SetAcceleration(10000)

	m.Backward()
	time.Sleep(200 * time.Millisecond)
	assert.True(t, m.IsMoving())
	assert.InDelta(t, -1000, m.RotationSpeed(), 1e-6, "speed is capped at the maximum")
	assert.Less(t, m.EncoderPosition(), -50)

	m.Stop()
	assert.True(t, m.IsMoving(), "stop ramps down rather than halting instantly")
	require.Eventually(t, func() bool { return !m.IsMoving() }, time.Second, time.Millisecond)
	assert.Zero(t, m.RotationSpeed())

	m.Forward()
	time.Sleep(20 * time.Millisecond)
	m.Float()
	assert.False(t, m.IsMoving())
}

func TestSimJam(t *testing.T) {
	bus := NewSimBus(nil)
	m := bus.NewActuator("left", 1000)
	m.Jam(true)
	assert.False(t, m.IsStalled(), "an idle jammed motor is not stalled")

	m.Forward()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, m.IsStalled())
	assert.Equal(t, 0, m.EncoderPosition())

	m.Stop()
	assert.False(t, m.IsMoving())
	assert.False(t, m.IsStalled())
}

func TestGroupDispatchIsOneBatch(t *testing.T) {
	bus := NewSimBus(nil)
	l := bus.NewActuator("left", 1000)
	r := bus.NewActuator("right", 1000)
	g := NewGroup(bus, l, r)

	l.SetSpeed(100)
	g.Dispatch(func(actuators []Actuator) {
		for _, a := range actuators {
			a.SetSpeed(500)
			a.RotateBy(100, false)
		}
	})

	cmds := bus.Commands()
	require.Len(t, cmds, 5)
	assert.Equal(t, 0, cmds[0].Batch)
	for _, c := range cmds[1:] {
		assert.Equal(t, 1, c.Batch, c.String())
	}
	assert.True(t, g.AnyMoving())

	require.Eventually(t, func() bool { return !g.AnyMoving() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int{100, 100}, g.EncoderPositions())
	assert.Equal(t, []float64{1000, 1000}, g.MaxSpeeds())
	assert.False(t, g.AnyStalled())
}

func TestFrozenClockDuringBatch(t *testing.T) {
	bus := NewSimBus(nil)
	m := bus.NewActuator("left", 1000)
	m.Forward()
	time.Sleep(10 * time.Millisecond)

	bus.StartSynchronization()
	p1 := m.Position()
	time.Sleep(10 * time.Millisecond)
	p2 := m.Position()
	bus.EndSynchronization()

	assert.Equal(t, p1, p2)
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, m.Position(), p2)
}

type fakeEncoders struct {
	positions []int
}

func (f *fakeEncoders) EncoderPositions() []int {
	return append([]int(nil), f.positions...)
}

func TestTachoTracker(t *testing.T) {
	enc := &fakeEncoders{positions: []int{100, -50}}
	tr := NewTachoTracker(enc)

	assert.Equal(t, []int{0, 0}, tr.Poll(), "first poll is the baseline")

	enc.positions = []int{110, -70}
	assert.Equal(t, []int{10, -20}, tr.Poll())
	enc.positions = []int{105, -70}
	assert.Equal(t, []int{-5, 0}, tr.Poll())
	assert.Equal(t, []float64{5, -20}, tr.Accumulated())

	tr.Zero()
	assert.Equal(t, []float64{0, 0}, tr.Accumulated())
	enc.positions = []int{106, -69}
	tr.Poll()
	assert.Equal(t, []float64{1, 1}, tr.Accumulated())
}
