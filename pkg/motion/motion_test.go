package motion

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	err := InvalidArgument("radius", 3, "tighter than minimum radius 10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrConfiguration))

	var iae InvalidArgumentError
	require.True(t, errors.As(err, &iae))
	assert.Equal(t, "radius", iae.Arg)
	assert.Contains(t, err.Error(), "radius=3")

	err = errors.Wrap(Configuration("need %d wheels, have %d", 3, 2), "building chassis")
	assert.True(t, errors.Is(err, ErrConfiguration))
	var ce ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "need 3 wheels, have 2", ce.Reason)
}

func TestDynamicsValidate(t *testing.T) {
	good := Dynamics{100, 90, 200, 180}
	assert.NoError(t, good.Validate())

	for _, bad := range []Dynamics{
		{0, 90, 200, 180},
		{100, -1, 200, 180},
		{100, 90, math.NaN(), 180},
		{100, 90, 200, math.Inf(1)},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidArgument, "%+v", bad)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 4, Clamp(1, 4, 64))
	assert.Equal(t, 64, Clamp(128, 4, 64))
	assert.Equal(t, -100.0, Clamp(-150.0, -100, 100))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
}

func TestPose(t *testing.T) {
	p := Pose{X: 3, Y: 4, Heading: math.Pi / 2}
	assert.InDelta(t, 5, Pose{}.Distance(p), 1e-9)
	assert.InDelta(t, 90, p.HeadingDegrees(), 1e-9)
	assert.Equal(t, "TRAVEL", Travel.String())
}
