// Package trace records the path reported by the odometer and renders it to
// an image.
package trace

import (
	"context"
	"image"
	"io"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type PoseSource interface {
	Pose() motion.Pose
}

type Point struct {
	motion.Pose
	At time.Time
	// EndOfMove is set on the point recorded when a move finished.
	EndOfMove bool
}

// Trace is a pose history. It is also a move listener that marks the pose at
// the end of every move.
type Trace struct {
	src PoseSource

	lock   sync.Mutex
	points []Point
}

func New(src PoseSource) *Trace {
	return &Trace{src: src}
}

// Sample records the current pose if it differs from the last one.
func (t *Trace) Sample() {
	t.add(t.src.Pose(), false)
}

func (t *Trace) add(p motion.Pose, end bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if n := len(t.points); n > 0 && t.points[n-1].Pose == p {
		t.points[n-1].EndOfMove = t.points[n-1].EndOfMove || end
		return
	}
	t.points = append(t.points, Point{Pose: p, At: time.Now(), EndOfMove: end})
}

// Follow samples the pose every interval until ctx is done.
func (t *Trace) Follow(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t.Sample()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Trace) MoveStarted(motion.Move) {
	t.Sample()
}

func (t *Trace) MoveStopped(motion.Move) {
	t.add(t.src.Pose(), true)
}

func (t *Trace) Points() []Point {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]Point(nil), t.points...)
}

// Length is the distance travelled along the trace.
func (t *Trace) Length() float64 {
	points := t.Points()
	var l float64
	for i := 1; i < len(points); i++ {
		l += points[i].Distance(points[i-1].Pose)
	}
	return l
}

// Bounds returns the smallest rectangle containing the trace.
func Bounds(points []Point) (minX, minY, maxX, maxY float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return
}

const (
	margin    = 20
	arrowSize = 8
)

// Image draws the trace on a size×size canvas, scaled to fit, with x to the
// right and y up. Move ends are marked with dots and the final pose with an
// arrow.
func (t *Trace) Image(size int) image.Image {
	return t.draw(size).Image()
}

func (t *Trace) WritePNG(w io.Writer, size int) error {
	return t.draw(size).EncodePNG(w)
}

func (t *Trace) SavePNG(path string, size int) error {
	return t.draw(size).SavePNG(path)
}

func (t *Trace) draw(size int) *gg.Context {
	points := t.Points()
	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	if len(points) == 0 {
		return dc
	}

	minX, minY, maxX, maxY := Bounds(points)
	span := math.Max(maxX-minX, maxY-minY)
	scale := 1.0
	if span > 0 {
		scale = (float64(size) - 2*margin) / span
	}
	project := func(p motion.Pose) (float64, float64) {
		return margin + (p.X-minX)*scale, float64(size) - margin - (p.Y-minY)*scale
	}

	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetLineWidth(1)
	x0, y0 := project(motion.Pose{})
	dc.DrawLine(x0-arrowSize, y0, x0+arrowSize, y0)
	dc.DrawLine(x0, y0-arrowSize, x0, y0+arrowSize)
	dc.Stroke()

	dc.SetRGB(0, 0.3, 0.8)
	dc.SetLineWidth(2)
	for i, p := range points {
		x, y := project(p.Pose)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	dc.SetRGB(0.9, 0.2, 0)
	for _, p := range points {
		if p.EndOfMove {
			x, y := project(p.Pose)
			dc.DrawCircle(x, y, 3)
			dc.Fill()
		}
	}

	last := points[len(points)-1]
	x, y := project(last.Pose)
	dc.Push()
	dc.Translate(x, y)
	// Screen y points down, so headings turn the other way.
	dc.Rotate(-last.Heading)
	dc.DrawRegularPolygon(3, 0, 0, arrowSize, math.Pi/2)
	dc.Fill()
	dc.Pop()
	return dc
}
