// pilotshell is an interactive shell for driving a simulated robot. Moves
// run in the background so that "stop" and the tunables stay usable while
// the robot is moving.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/abiosoft/ishell/v2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/journal"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/pilot"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/script"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/trace"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/tunable"
)

type shellState struct {
	pilot   *pilot.Pilot
	chassis *chassis.Chassis
	journal *journal.Journal
	trace   *trace.Trace
	knobs   *tunable.Tunables

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func main() {
	configFile := flag.String("config", "", "robot description (default: $MOTION_CONFIG or the EV3 pair)")
	journalFile := flag.String("journal", "", "move journal (default: $MOTION_JOURNAL)")
	flag.Parse()

	if err := run(*configFile, *journalFile); err != nil {
		fmt.Fprintln(os.Stderr, "pilotshell:", err)
		os.Exit(1)
	}
}

func run(configFile, journalFile string) error {
	cfg, err := config.FromEnv(configFile)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Env.LogLevel, nil); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chassisCfg, release, err := cfg.OpenRig(ctx)
	if err != nil {
		return err
	}
	defer release()
	ch, err := chassis.New(ctx, chassisCfg)
	if err != nil {
		return errors.Wrap(err, "building chassis")
	}
	defer ch.Close()
	if err := cfg.ApplyDynamics(ch); err != nil {
		return err
	}
	p, err := pilot.New(ctx, ch)
	if err != nil {
		return err
	}
	defer p.Close()

	s := &shellState{
		pilot:   p,
		chassis: ch,
		trace:   trace.New(ch.Odometer()),
		knobs:   tunable.Dynamics(p),
	}
	p.AddMoveListener(s.trace)

	if journalFile == "" {
		journalFile = cfg.Env.Journal
	}
	if journalFile != "" {
		s.journal, err = journal.Open(journalFile, ch.Odometer())
		if err != nil {
			return err
		}
		defer s.journal.Close()
		p.AddMoveListener(s.journal)
	}

	shell := ishell.New()
	shell.Println("Motion shell:", cfg.Name, cfg.DrivetrainType())
	s.addCommands(shell)
	shell.Run()
	shell.Close()

	s.stop()
	return nil
}

// background runs cmd without blocking the shell, replacing any command
// still running.
func (s *shellState) background(c *ishell.Context, cmd script.Command) {
	s.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.lock.Lock()
	s.cancel, s.done = cancel, done
	s.lock.Unlock()

	runner := &script.Runner{Pilot: s.pilot, Poses: s.chassis.Odometer(), Out: os.Stdout}
	go func() {
		defer close(done)
		if err := runner.Exec(ctx, cmd); err != nil && ctx.Err() == nil {
			c.Println("error:", err)
		}
	}()
}

// stop cancels the background command and brings the robot to rest.
func (s *shellState) stop() {
	s.lock.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	s.pilot.Stop()
	if done != nil {
		<-done
	}
}

func (s *shellState) addCommands(shell *ishell.Shell) {
	for _, name := range []string{"travel", "rotate", "arc", "travelarc", "forward", "backward", "steer", "steerback", "face", "wait"} {
		name := name
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: "move: " + name,
			Func: func(c *ishell.Context) {
				s.background(c, script.Command{Name: name, Args: c.Args})
			},
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the robot",
		Func: func(c *ishell.Context) {
			s.stop()
			c.Println(s.pilot.Movement())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show the current move, pose and dynamics",
		Func: func(c *ishell.Context) {
			c.Println("move:    ", s.pilot.Movement())
			c.Println("moving:  ", s.pilot.IsMoving(), "stalled:", s.pilot.IsStalled())
			c.Println("pose:    ", s.chassis.Odometer().Pose())
			c.Printf("dynamics: %+v\n", s.pilot.Dynamics())
			c.Println("interval:", s.chassis.Odometer().Interval())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "reset the odometer to the origin",
		Func: func(c *ishell.Context) {
			s.chassis.Odometer().SetPose(motion.Pose{})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "usage",
		Help: "list move commands and their arguments",
		Func: func(c *ishell.Context) {
			for _, l := range script.Usage() {
				c.Println(" ", l)
			}
		},
	})

	knobNames := func([]string) []string {
		var names []string
		for _, t := range s.knobs.All {
			names = append(names, t.Name)
		}
		return names
	}
	shell.AddCmd(&ishell.Cmd{
		Name:      "tune",
		Help:      "tune [name [value | +delta | -delta]]",
		Completer: knobNames,
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				for _, t := range s.knobs.All {
					c.Printf("%-22s %d\n", t.Name, t.Get())
				}
				return
			}
			t, ok := s.knobs.Find(c.Args[0])
			if !ok {
				c.Err(fmt.Errorf("no tunable %q", c.Args[0]))
				return
			}
			if len(c.Args) > 1 {
				v, err := strconv.Atoi(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				if c.Args[1][0] == '+' || c.Args[1][0] == '-' {
					err = t.Add(v)
				} else {
					err = t.Set(v)
				}
				if err != nil {
					c.Err(err)
					return
				}
			}
			c.Println(t.Name, "=", t.Get())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "journal",
		Help: "journal [n]: show the last n moves",
		Func: func(c *ishell.Context) {
			if s.journal == nil {
				c.Println("no journal; use -journal or MOTION_JOURNAL")
				return
			}
			n := 10
			if len(c.Args) > 0 {
				var err error
				if n, err = strconv.Atoi(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			entries, err := s.journal.Recent(n)
			if err != nil {
				c.Err(err)
				return
			}
			for _, e := range entries {
				c.Printf("%4d %-6s d=%8.1f a=%7.1f %v\n", e.ID, e.Type, e.Distance, e.Angle, e.Pose())
			}
			totals, err := s.journal.Totals()
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d moves, %.0fmm travelled, %.0f° turned\n", totals.Moves, totals.Distance, totals.Rotation)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "trace <file.png>: render the path so far",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: trace <file.png>")
				return
			}
			s.trace.Sample()
			if err := s.trace.SavePNG(c.Args[0], 512); err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d points, %.0fmm\n", len(s.trace.Points()), s.trace.Length())
		},
	})
}
