package hardware

type encoderProvider interface {
	EncoderPositions() []int
}

// TachoTracker turns absolute encoder readings into deltas and keeps a
// running total since the last Zero.
type TachoTracker struct {
	src encoderProvider

	doneFirstPoll bool
	lastRawValues []int

	accumulator []int64
}

func NewTachoTracker(src encoderProvider) *TachoTracker {
	return &TachoTracker{
		src: src,
	}
}

// Poll reads the encoders and returns the change since the previous poll.
// The first poll only records a baseline and returns all zeros.
func (d *TachoTracker) Poll() []int {
	raw := d.src.EncoderPositions()
	deltas := make([]int, len(raw))
	if d.accumulator == nil {
		d.accumulator = make([]int64, len(raw))
	}

	if d.doneFirstPoll {
		for m, newD := range raw {
			delta := newD - d.lastRawValues[m]
			deltas[m] = delta
			d.accumulator[m] += int64(delta)
		}
	}

	d.lastRawValues = raw
	d.doneFirstPoll = true
	return deltas
}

func (d *TachoTracker) Accumulated() []float64 {
	ticks := make([]float64, len(d.accumulator))
	for m, v := range d.accumulator {
		ticks[m] = float64(v)
	}
	return ticks
}

func (d *TachoTracker) Zero() {
	for m := range d.accumulator {
		d.accumulator[m] = 0
	}
}
