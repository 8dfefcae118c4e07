package hardware

import (
	"sync"
)

// Group owns the actuators of one chassis. Command batches go through
// Dispatch, which serialises them and brackets them with the synchronizer.
// Encoder reads take a separate lock so that they never wait for a dispatch.
type Group struct {
	actuators []Actuator
	sync      Synchronizer

	dispatchLock sync.Mutex
	readLock     sync.Mutex
}

// NewGroup creates a group. sync may be nil, in which case batches are
// serialised but not synchronised.
func NewGroup(sync Synchronizer, actuators ...Actuator) *Group {
	return &Group{
		actuators: actuators,
		sync:      sync,
	}
}

func (g *Group) Len() int {
	return len(g.actuators)
}

func (g *Group) Actuator(i int) Actuator {
	return g.actuators[i]
}

// Dispatch runs fn with every actuator as one atomic batch.
func (g *Group) Dispatch(fn func(actuators []Actuator)) {
	g.dispatchLock.Lock()
	defer g.dispatchLock.Unlock()

	if g.sync != nil {
		g.sync.StartSynchronization()
		defer g.sync.EndSynchronization()
	}
	fn(g.actuators)
}

func (g *Group) EncoderPositions() []int {
	g.readLock.Lock()
	defer g.readLock.Unlock()

	positions := make([]int, len(g.actuators))
	for i, a := range g.actuators {
		positions[i] = a.EncoderPosition()
	}
	return positions
}

func (g *Group) RotationSpeeds() []float64 {
	g.readLock.Lock()
	defer g.readLock.Unlock()

	speeds := make([]float64, len(g.actuators))
	for i, a := range g.actuators {
		speeds[i] = a.RotationSpeed()
	}
	return speeds
}

func (g *Group) MaxSpeeds() []float64 {
	speeds := make([]float64, len(g.actuators))
	for i, a := range g.actuators {
		speeds[i] = a.MaxSpeed()
	}
	return speeds
}

func (g *Group) AnyMoving() bool {
	for _, a := range g.actuators {
		if a.IsMoving() {
			return true
		}
	}
	return false
}

func (g *Group) AnyStalled() bool {
	for _, a := range g.actuators {
		if a.IsStalled() {
			return true
		}
	}
	return false
}
