package tunable

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

func TestSelection(t *testing.T) {
	tun := New()
	a := tun.Create("a", 1, 0, 10)
	b := tun.Create("b", 2, 0, 10)

	assert.Same(t, a, tun.Current())
	assert.Same(t, b, tun.SelectNext())
	assert.Same(t, a, tun.SelectNext())
	assert.Same(t, b, tun.SelectPrev())

	found, ok := tun.Find("a")
	require.True(t, ok)
	assert.Same(t, a, found)
	_, ok = tun.Find("c")
	assert.False(t, ok)
}

func TestAddClamps(t *testing.T) {
	tun := New().Create("x", 5, 0, 10)
	require.NoError(t, tun.Add(3))
	assert.Equal(t, 8, tun.Get())
	require.NoError(t, tun.Add(30))
	assert.Equal(t, 10, tun.Get())
	require.NoError(t, tun.Add(-100))
	assert.Equal(t, 0, tun.Get())
}

func TestFailedChangeRestoresValue(t *testing.T) {
	tun := New().Create("x", 5, 0, 10)
	tun.OnChange = func(v int) error {
		if v > 6 {
			return errors.New("too fast")
		}
		return nil
	}
	require.NoError(t, tun.Add(1))
	assert.Equal(t, 6, tun.Get())
	assert.Error(t, tun.Add(1))
	assert.Equal(t, 6, tun.Get())
}

type fakeTarget struct {
	d         motion.Dynamics
	minRadius float64
}

func (f *fakeTarget) Dynamics() motion.Dynamics { return f.d }
func (f *fakeTarget) SetLinearSpeed(v float64) error {
	f.d.LinearSpeed = v
	return nil
}
func (f *fakeTarget) SetAngularSpeed(v float64) error {
	f.d.AngularSpeed = v
	return nil
}
func (f *fakeTarget) SetLinearAcceleration(v float64) error {
	f.d.LinearAcceleration = v
	return nil
}
func (f *fakeTarget) SetAngularAcceleration(v float64) error {
	f.d.AngularAcceleration = v
	return nil
}
func (f *fakeTarget) MinRadius() float64 { return f.minRadius }
func (f *fakeTarget) SetMinRadius(v float64) error {
	f.minRadius = v
	return nil
}

func TestDynamicsKnobs(t *testing.T) {
	target := &fakeTarget{d: motion.Dynamics{
		LinearSpeed:         200.4,
		AngularSpeed:        90,
		LinearAcceleration:  800,
		AngularAcceleration: 360,
	}}
	knobs := Dynamics(target)
	require.Len(t, knobs.All, 5)

	speed, ok := knobs.Find(LinearSpeed)
	require.True(t, ok)
	assert.Equal(t, 200, speed.Get())
	require.NoError(t, speed.Add(50))
	assert.Equal(t, 250.0, target.d.LinearSpeed)

	accel, _ := knobs.Find(AngularAcceleration)
	require.NoError(t, accel.Set(720))
	assert.Equal(t, 720.0, target.d.AngularAcceleration)

	radius, _ := knobs.Find(MinRadius)
	require.NoError(t, radius.Add(-10))
	assert.Equal(t, 0.0, target.minRadius)
}
