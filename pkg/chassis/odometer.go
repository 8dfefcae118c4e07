package chassis

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type OdometerConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	// Threshold is the per-sample encoder change, in ticks, above which the
	// sampling interval is halved and below which it is doubled.
	Threshold int
}

func (c OdometerConfig) withDefaults() OdometerConfig {
	if c.MinInterval <= 0 {
		c.MinInterval = 4 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 64 * time.Millisecond
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = 10
	}
	return c
}

// Odometer integrates wheel encoder readings into a pose estimate. It
// samples more often while the wheels are turning quickly.
type Odometer struct {
	log     zerolog.Logger
	trace   zerolog.Logger
	matrix  *kinematics.Matrix
	tacho   *hardware.TachoTracker
	clock   hardware.Clock
	cfg     OdometerConfig
	samples metric.Int64Counter

	lock     sync.Mutex
	pose     motion.Pose
	interval time.Duration
}

func newOdometer(group *hardware.Group, matrix *kinematics.Matrix, clock hardware.Clock, cfg OdometerConfig) *Odometer {
	cfg = cfg.withDefaults()
	o := &Odometer{
		log:      logging.Component("odometer"),
		matrix:   matrix,
		tacho:    hardware.NewTachoTracker(group),
		clock:    clock,
		cfg:      cfg,
		interval: cfg.MaxInterval,
	}
	o.trace = logging.Sampled(o.log)
	o.tacho.Poll()
	return o
}

func (o *Odometer) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer o.log.Debug().Msg("Odometer loop exited")

	for ctx.Err() == nil {
		interval := o.update()
		if o.samples != nil {
			o.samples.Add(ctx, 1)
		}
		select {
		case <-ctx.Done():
		case <-o.clock.After(interval):
		}
	}
}

// update integrates one sample and returns the interval until the next.
func (o *Odometer) update() time.Duration {
	o.lock.Lock()
	defer o.lock.Unlock()

	deltas := o.tacho.Poll()
	ticks := make([]float64, len(deltas))
	largest := 0
	for i, d := range deltas {
		ticks[i] = float64(d)
		if d < 0 {
			d = -d
		}
		if d > largest {
			largest = d
		}
	}

	move := o.matrix.Reverse(ticks)
	step := mgl64.Rotate2D(o.pose.Heading).Mul2x1(mgl64.Vec2{move.Linear, move.Lateral})
	o.pose.X += step.X()
	o.pose.Y += step.Y()
	o.pose.Heading = angle.NormalizeRadians(o.pose.Heading + mgl64.DegToRad(move.Angular))

	if largest > o.cfg.Threshold {
		o.interval /= 2
	} else if largest < o.cfg.Threshold {
		o.interval *= 2
	}
	o.interval = motion.Clamp(o.interval, o.cfg.MinInterval, o.cfg.MaxInterval)

	if largest > 0 {
		o.trace.Debug().
			Ints("ticks", deltas).
			Stringer("pose", o.pose).
			Dur("interval", o.interval).
			Msg("Odometry")
	}
	return o.interval
}

// Pose returns a copy of the current estimate.
func (o *Odometer) Pose() motion.Pose {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.pose
}

// SetPose replaces the current estimate. Motion up to the most recent sample
// is discarded; motion after it is integrated onto the new pose.
func (o *Odometer) SetPose(p motion.Pose) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Heading) {
		o.log.Warn().Stringer("pose", p).Msg("Ignoring invalid pose")
		return
	}
	p.Heading = angle.NormalizeRadians(p.Heading)
	o.pose = p
	o.log.Info().Stringer("pose", p).Msg("Pose set")
}

// Interval is the current sampling interval.
func (o *Odometer) Interval() time.Duration {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.interval
}
