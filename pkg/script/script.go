// Package script runs simple line-based move scripts against a pilot:
//
//	# drive a square
//	travel 300
//	rotate 90
//	arc 200 -90
//	steer 50 1.5s
//	pose
//
// Blank lines and text after '#' are ignored.
package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

// Pilot is the part of *pilot.Pilot a script drives.
type Pilot interface {
	Travel(distance float64, immediateReturn bool) error
	Arc(radius, angle float64, immediateReturn bool) error
	TravelArc(radius, distance float64, immediateReturn bool) error
	Rotate(angle float64, immediateReturn bool) error
	Forward() error
	Backward() error
	Steer(ratio float64) error
	SteerBackward(ratio float64) error
	Stop()
	SetLinearSpeed(speed float64) error
	SetAngularSpeed(speed float64) error
	SetLinearAcceleration(accel float64) error
	SetAngularAcceleration(accel float64) error
	Movement() motion.Move
}

type PoseSource interface {
	Pose() motion.Pose
}

type Command struct {
	Line int
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Square drives a square of the given side, turning left at each corner.
func Square(side float64) []Command {
	var cmds []Command
	for i := 0; i < 4; i++ {
		cmds = append(cmds,
			Command{Name: "travel", Args: []string{fmt.Sprint(side)}},
			Command{Name: "rotate", Args: []string{"90"}},
		)
	}
	return cmds
}

func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		cmd := Command{Line: line, Name: strings.ToLower(fields[0]), Args: fields[1:]}
		def, ok := commands[cmd.Name]
		if !ok {
			return nil, errors.Errorf("line %d: unknown command %q", line, cmd.Name)
		}
		if len(cmd.Args) != len(def.args) {
			return nil, errors.Errorf("line %d: %s takes %d arguments", line, cmd.Name, len(def.args))
		}
		cmds = append(cmds, cmd)
	}
	return cmds, errors.Wrap(scanner.Err(), "reading script")
}

type argKind int

const (
	number argKind = iota
	duration
)

type commandDef struct {
	args []argKind
	help string
	run  func(r *Runner, ctx context.Context, nums []float64, durs []time.Duration) error
}

var commands = map[string]commandDef{
	"travel": {[]argKind{number}, "travel DISTANCE", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		return r.Pilot.Travel(n[0], false)
	}},
	"rotate": {[]argKind{number}, "rotate ANGLE", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		return r.Pilot.Rotate(n[0], false)
	}},
	"arc": {[]argKind{number, number}, "arc RADIUS ANGLE", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		return r.Pilot.Arc(n[0], n[1], false)
	}},
	"travelarc": {[]argKind{number, number}, "travelarc RADIUS DISTANCE", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		return r.Pilot.TravelArc(n[0], n[1], false)
	}},
	"forward": {[]argKind{duration}, "forward DURATION", func(r *Runner, ctx context.Context, _ []float64, d []time.Duration) error {
		return r.runFor(ctx, r.Pilot.Forward, d[0])
	}},
	"backward": {[]argKind{duration}, "backward DURATION", func(r *Runner, ctx context.Context, _ []float64, d []time.Duration) error {
		return r.runFor(ctx, r.Pilot.Backward, d[0])
	}},
	"steer": {[]argKind{number, duration}, "steer RATIO DURATION", func(r *Runner, ctx context.Context, n []float64, d []time.Duration) error {
		return r.runFor(ctx, func() error { return r.Pilot.Steer(n[0]) }, d[1])
	}},
	"steerback": {[]argKind{number, duration}, "steerback RATIO DURATION", func(r *Runner, ctx context.Context, n []float64, d []time.Duration) error {
		return r.runFor(ctx, func() error { return r.Pilot.SteerBackward(n[0]) }, d[1])
	}},
	"stop": {nil, "stop", func(r *Runner, _ context.Context, _ []float64, _ []time.Duration) error {
		r.Pilot.Stop()
		return nil
	}},
	"wait": {[]argKind{duration}, "wait DURATION", func(r *Runner, ctx context.Context, _ []float64, d []time.Duration) error {
		return sleep(ctx, d[0])
	}},
	"speed": {[]argKind{number, number}, "speed LINEAR ANGULAR", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		if err := r.Pilot.SetLinearSpeed(n[0]); err != nil {
			return err
		}
		return r.Pilot.SetAngularSpeed(n[1])
	}},
	"accel": {[]argKind{number, number}, "accel LINEAR ANGULAR", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		if err := r.Pilot.SetLinearAcceleration(n[0]); err != nil {
			return err
		}
		return r.Pilot.SetAngularAcceleration(n[1])
	}},
	"face": {[]argKind{number}, "face HEADING", func(r *Runner, _ context.Context, n []float64, _ []time.Duration) error {
		if r.Poses == nil {
			return errors.New("no pose source")
		}
		return r.Pilot.Rotate(angle.Turn(r.Poses.Pose().Heading, mgl64.DegToRad(n[0])), false)
	}},
	"pose": {nil, "pose", func(r *Runner, _ context.Context, _ []float64, _ []time.Duration) error {
		if r.Poses != nil {
			fmt.Fprintln(r.Out, r.Poses.Pose())
		}
		return nil
	}},
	"last": {nil, "last", func(r *Runner, _ context.Context, _ []float64, _ []time.Duration) error {
		fmt.Fprintln(r.Out, r.Pilot.Movement())
		return nil
	}},
}

// Usage lists the commands a script may use.
func Usage() []string {
	var lines []string
	for _, def := range commands {
		lines = append(lines, def.help)
	}
	sort.Strings(lines)
	return lines
}

// Runner executes commands one after another. Every move command blocks
// until its move has finished.
type Runner struct {
	Pilot Pilot
	Poses PoseSource
	Out   io.Writer
}

// Run executes cmds until one fails or ctx is done. A cancelled run stops
// the pilot.
func (r *Runner) Run(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			r.Pilot.Stop()
			return err
		}
		if err := r.Exec(ctx, cmd); err != nil {
			if cmd.Line > 0 {
				return errors.Wrapf(err, "line %d: %s", cmd.Line, cmd)
			}
			return errors.Wrap(err, cmd.String())
		}
	}
	return nil
}

func (r *Runner) Exec(ctx context.Context, cmd Command) error {
	def, ok := commands[cmd.Name]
	if !ok {
		return errors.Errorf("unknown command %q", cmd.Name)
	}
	if len(cmd.Args) != len(def.args) {
		return errors.Errorf("usage: %s", def.help)
	}
	nums := make([]float64, len(cmd.Args))
	durs := make([]time.Duration, len(cmd.Args))
	for i, kind := range def.args {
		var err error
		switch kind {
		case number:
			nums[i], err = strconv.ParseFloat(cmd.Args[i], 64)
		case duration:
			durs[i], err = time.ParseDuration(cmd.Args[i])
		}
		if err != nil {
			return errors.Wrapf(err, "usage: %s", def.help)
		}
	}
	return def.run(r, ctx, nums, durs)
}

func (r *Runner) runFor(ctx context.Context, start func() error, d time.Duration) error {
	if err := start(); err != nil {
		return err
	}
	err := sleep(ctx, d)
	r.Pilot.Stop()
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
