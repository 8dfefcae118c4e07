package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileRamps(t *testing.T) {
	p := Profile{Speed: 100, Acceleration: 1000}
	p.Forward()
	pos := 0.0
	for i := 0; i < 5; i++ {
		pos = p.Step(0.01, pos)
	}
	assert.InDelta(t, 50, p.Velocity, 1e-9)
	for i := 0; i < 10; i++ {
		pos = p.Step(0.01, pos)
	}
	assert.InDelta(t, 100, p.Velocity, 1e-9)

	p.Stop()
	assert.True(t, p.Moving(), "still ramping down")
	for i := 0; i < 10; i++ {
		pos = p.Step(0.01, pos)
	}
	assert.False(t, p.Moving())
	assert.Zero(t, p.Velocity)
	assert.Greater(t, pos, 0.0)
}

func TestProfilePositionMove(t *testing.T) {
	p := Profile{Speed: 500, Acceleration: 2000}
	p.MoveTo(-200)
	pos := 0.0
	for i := 0; i < 2000 && p.Moving(); i++ {
		pos = p.Step(0.001, pos)
		assert.LessOrEqual(t, p.Velocity, 0.0)
	}
	assert.False(t, p.Moving())
	assert.Equal(t, -200.0, pos)
}

func TestProfileFloatAndNoAcceleration(t *testing.T) {
	p := Profile{Speed: 100}
	p.Backward()
	p.Step(0.01, 0)
	assert.Equal(t, -100.0, p.Velocity, "zero acceleration jumps straight to speed")

	p.Float()
	assert.False(t, p.Moving())
	assert.Zero(t, p.Velocity)

	p.Stop()
	assert.False(t, p.Moving(), "stopping at rest goes straight to idle")
}
