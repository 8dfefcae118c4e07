package journal

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type fixedPose motion.Pose

func (p *fixedPose) Pose() motion.Pose { return motion.Pose(*p) }

func openJournal(t *testing.T, poses PoseSource) *Journal {
	j, err := Open(filepath.Join(t.TempDir(), "moves.db"), poses)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordsStoppedMoves(t *testing.T) {
	pose := &fixedPose{X: 100, Y: 5, Heading: 0.1}
	j := openJournal(t, pose)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return start.Add(2 * time.Second) }

	j.MoveStarted(motion.Move{Type: motion.Travel, Distance: 100})
	j.MoveStopped(motion.Move{Type: motion.Travel, Distance: 99.6, LinearSpeed: 50, Started: start})

	*pose = fixedPose{X: 100, Y: 5, Heading: math.Pi / 2}
	j.MoveStopped(motion.Move{Type: motion.Rotate, Angle: 90, AngularSpeed: 45, Started: start})

	all, err := j.All()
	require.NoError(t, err)
	require.Len(t, all, 2, "only stopped moves are recorded")

	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, "TRAVEL", all[0].Type)
	assert.Equal(t, 99.6, all[0].Distance)
	assert.Equal(t, motion.Pose{X: 100, Y: 5, Heading: 0.1}, all[0].Pose())
	assert.Equal(t, 2*time.Second, all[0].Duration())

	assert.Equal(t, "ROTATE", all[1].Type)
	assert.InDelta(t, math.Pi/2, all[1].Heading, 1e-12)

	recent, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].ID)
}

func TestQueries(t *testing.T) {
	j := openJournal(t, nil)
	for _, m := range []motion.Move{
		{Type: motion.Travel, Distance: 300},
		{Type: motion.Travel, Distance: -20},
		{Type: motion.Arc, Distance: 157, Angle: -90},
		{Type: motion.Travel, Distance: -250},
		{Type: motion.Rotate, Angle: 360},
	} {
		_, err := j.Record(m)
		require.NoError(t, err)
	}

	travels, err := j.ByType(motion.Travel)
	require.NoError(t, err)
	assert.Len(t, travels, 3)

	stops, err := j.ByType(motion.Stop)
	require.NoError(t, err)
	assert.Empty(t, stops)

	long, err := j.Longer(200)
	require.NoError(t, err)
	require.Len(t, long, 2)
	assert.Equal(t, 300.0, long[0].Distance)
	assert.Equal(t, -250.0, long[1].Distance)

	totals, err := j.Totals()
	require.NoError(t, err)
	assert.Equal(t, Totals{Moves: 5, Distance: 727, Rotation: 450}, totals)

	require.NoError(t, j.Clear())
	all, err := j.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = j.Record(motion.Move{Type: motion.Travel, Distance: math.Inf(1)})
	require.NoError(t, err)
	all, err = j.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Zero(t, all[0].Distance)
}
