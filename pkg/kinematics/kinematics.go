// Package kinematics builds the matrices that map robot motion to actuator
// motion and back.
//
// The forward matrix has one row per actuator and three columns: forward
// travel (mm), leftward travel (mm) and counter-clockwise rotation (degrees).
// Differential and Ackermann drivetrains cannot move sideways, so they get an
// extra row that pins the lateral column to zero. The reverse matrix is the
// least-squares inverse of the forward one, which is the plain inverse when
// the forward matrix is square.
package kinematics

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/geometry"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type Drivetrain int

const (
	Differential Drivetrain = iota
	Ackermann
	Holonomic
)

func (d Drivetrain) String() string {
	switch d {
	case Differential:
		return "differential"
	case Ackermann:
		return "ackermann"
	case Holonomic:
		return "holonomic"
	}
	return fmt.Sprintf("Drivetrain(%d)", int(d))
}

func ParseDrivetrain(s string) (Drivetrain, error) {
	for _, d := range []Drivetrain{Differential, Ackermann, Holonomic} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, motion.Configuration("unknown drivetrain %q", s)
}

// MinWheels is the fewest driven wheels the drivetrain can be built from.
func (d Drivetrain) MinWheels() int {
	if d == Holonomic {
		return 3
	}
	return 2
}

// Twist is a robot-space vector: a velocity, displacement or acceleration
// depending on context.
type Twist struct {
	Linear  float64
	Lateral float64
	Angular float64
}

// Polar returns a twist moving at speed in direction dirDeg (counter-clockwise
// from straight ahead) while turning at angular.
func Polar(speed, dirDeg, angular float64) Twist {
	d := dirDeg * math.Pi / 180
	return Twist{
		Linear:  speed * math.Cos(d),
		Lateral: speed * math.Sin(d),
		Angular: angular,
	}
}

func (t Twist) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f]", t.Linear, t.Lateral, t.Angular)
}

type Matrix struct {
	drivetrain Drivetrain
	actuators  int

	forward    *mat.Dense
	forwardAbs *mat.Dense
	reverse    *mat.Dense
	reverseAbs *mat.Dense
}

// Build assembles the forward matrix for the wheels, in order, and computes
// its inverse. It fails with a configuration error if there are too few
// wheels or the placement makes the matrix singular.
func Build(drivetrain Drivetrain, wheels []geometry.Wheel) (*Matrix, error) {
	if len(wheels) < drivetrain.MinWheels() {
		return nil, motion.Configuration("%v drivetrain needs at least %d wheels, have %d",
			drivetrain, drivetrain.MinWheels(), len(wheels))
	}
	for i, w := range wheels {
		if err := w.Validate(); err != nil {
			return nil, errors.Wrapf(err, "wheel %d", i)
		}
	}

	rows := len(wheels)
	if drivetrain != Holonomic {
		rows++
	}
	forward := mat.NewDense(rows, 3, nil)
	for i, w := range wheels {
		f := w.Factors()
		forward.SetRow(i, f[:])
	}
	if drivetrain != Holonomic {
		forward.SetRow(len(wheels), []float64{0, 1, 0})
	}

	var normal mat.Dense
	normal.Mul(forward.T(), forward)
	var inv mat.Dense
	if err := inv.Inverse(&normal); err != nil {
		return nil, motion.Configuration("%v drivetrain wheel placement is degenerate: %v", drivetrain, err)
	}
	reverse := mat.NewDense(3, rows, nil)
	reverse.Mul(&inv, forward.T())
	for _, v := range reverse.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, motion.Configuration("%v drivetrain reverse matrix is not finite", drivetrain)
		}
	}

	return &Matrix{
		drivetrain: drivetrain,
		actuators:  len(wheels),
		forward:    forward,
		forwardAbs: absOf(forward),
		reverse:    reverse,
		reverseAbs: absOf(reverse),
	}, nil
}

func absOf(m *mat.Dense) *mat.Dense {
	var a mat.Dense
	a.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, m)
	return &a
}

func (m *Matrix) Drivetrain() Drivetrain {
	return m.drivetrain
}

// Actuators is the number of wheel actuators the matrix drives.
func (m *Matrix) Actuators() int {
	return m.actuators
}

// Forward returns the per-actuator ticks (or ticks/s, ticks/s²) for t.
func (m *Matrix) Forward(t Twist) []float64 {
	return m.apply(m.forward, t)
}

// ForwardAbs is Forward with every matrix element replaced by its magnitude.
// For a non-negative t it gives the per-actuator share of a ceiling.
func (m *Matrix) ForwardAbs(t Twist) []float64 {
	return m.apply(m.forwardAbs, t)
}

func (m *Matrix) apply(f *mat.Dense, t Twist) []float64 {
	out := mat.NewVecDense(f.RawMatrix().Rows, nil)
	out.MulVec(f, mat.NewVecDense(3, []float64{t.Linear, t.Lateral, t.Angular}))
	res := make([]float64, m.actuators)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res
}

// Reverse maps per-actuator ticks back to robot space.
func (m *Matrix) Reverse(ticks []float64) Twist {
	return m.unapply(m.reverse, ticks)
}

// ReverseAbs is Reverse with every matrix element replaced by its magnitude.
// Used to turn per-actuator speed ceilings into robot-space ceilings.
func (m *Matrix) ReverseAbs(ticks []float64) Twist {
	return m.unapply(m.reverseAbs, ticks)
}

func (m *Matrix) unapply(r *mat.Dense, ticks []float64) Twist {
	if len(ticks) != m.actuators {
		panic(fmt.Sprintf("kinematics: got %d actuator values, matrix has %d actuators", len(ticks), m.actuators))
	}
	_, cols := r.Dims()
	in := mat.NewVecDense(cols, nil)
	for i, v := range ticks {
		in.SetVec(i, v)
	}
	var out mat.VecDense
	out.MulVec(r, in)
	return Twist{Linear: out.AtVec(0), Lateral: out.AtVec(1), Angular: out.AtVec(2)}
}

// ForwardMatrix returns a copy of the forward matrix, including any dummy row.
func (m *Matrix) ForwardMatrix() *mat.Dense {
	return mat.DenseCopyOf(m.forward)
}

// ReverseMatrix returns a copy of the reverse matrix.
func (m *Matrix) ReverseMatrix() *mat.Dense {
	return mat.DenseCopyOf(m.reverse)
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%v forward:\n%v\nreverse:\n%v",
		m.drivetrain, mat.Formatted(m.forward, mat.Squeeze()), mat.Formatted(m.reverse, mat.Squeeze()))
}
