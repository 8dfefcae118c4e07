package picobldc

// degreesPerCount is the resolution of the distance registers: 256 counts
// per motor rotation.
const degreesPerCount = 360.0 / 256

// DistanceTracker unwraps the board's 16 bit distance counters into running
// totals.
type DistanceTracker struct {
	read func() (PerMotorVal[int16], error)

	primed bool
	last   PerMotorVal[int16]
	total  PerMotorVal[int64]
}

func NewDistanceTracker(b board) *DistanceTracker {
	return &DistanceTracker{read: b.RawDistancesTraveled}
}

// Poll reads the counters. The first poll only sets the baseline. Deltas are
// taken in int16 arithmetic, so a counter wrapping between polls is handled
// as long as no motor moves more than half the counter range in one poll.
func (d *DistanceTracker) Poll() error {
	raw, err := d.read()
	if err != nil {
		return err
	}
	if d.primed {
		for m := range raw {
			d.total[m] += int64(raw[m] - d.last[m])
		}
	}
	d.last, d.primed = raw, true
	return nil
}

// Degrees is the total rotation of each motor since the tracker started,
// in degrees.
func (d *DistanceTracker) Degrees() (degrees PerMotorVal[float64]) {
	for m, v := range d.total {
		degrees[m] = float64(v) * degreesPerCount
	}
	return
}
