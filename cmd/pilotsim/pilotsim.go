// pilotsim runs a move script on the configured rig (simulated unless the
// description names hardware) and prints where the odometer thinks the robot
// ended up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/journal"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/pilot"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/script"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/trace"
)

func main() {
	app := cli.NewApp()
	app.Name = "pilotsim"
	app.Usage = "run a move script against a simulated robot"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "robot description (default: $MOTION_CONFIG or the EV3 pair)",
		},
		cli.StringFlag{
			Name:  "script",
			Usage: "move script; drives a square if not given",
		},
		cli.Float64Flag{
			Name:  "square",
			Value: 300,
			Usage: "side of the default square in mm",
		},
		cli.StringFlag{
			Name:  "trace",
			Usage: "write the odometry trace to this PNG",
		},
		cli.IntFlag{
			Name:  "size",
			Value: 512,
			Usage: "trace image size in pixels",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (default: $MOTION_LOG_LEVEL)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pilotsim:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromEnv(c.String("config"))
	if err != nil {
		return err
	}
	level := cfg.Env.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	if err := logging.Setup(level, nil); err != nil {
		return err
	}
	log := logging.Component("pilotsim")

	cmds := script.Square(c.Float64("square"))
	if path := c.String("script"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "opening script")
		}
		cmds, err = script.Parse(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel)

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

	odo := ch.Odometer()
	tr := trace.New(odo)
	p.AddMoveListener(tr)
	go tr.Follow(ctx, 20*time.Millisecond)

	if cfg.Env.Journal != "" {
		j, err := journal.Open(cfg.Env.Journal, odo)
		if err != nil {
			return err
		}
		defer j.Close()
		p.AddMoveListener(j)
	}

	p.AddMoveListener(&pilot.MoveListenerFuncs{
		Stopped: func(m motion.Move) {
			fmt.Printf("%-40v %v\n", m, odo.Pose())
		},
	})

	log.Info().Str("robot", cfg.Name).Int("commands", len(cmds)).Msg("Running script")
	start := time.Now()
	runner := &script.Runner{Pilot: p, Poses: odo, Out: os.Stdout}
	runErr := runner.Run(ctx, cmds)
	p.Stop()

	final := odo.Pose()
	fmt.Printf("final pose %v after %v, path length %.1fmm\n", final, time.Since(start).Round(time.Millisecond), tr.Length())

	if path := c.String("trace"); path != "" {
		tr.Sample()
		if err := tr.SavePNG(path, c.Int("size")); err != nil {
			return errors.Wrap(err, "writing trace")
		}
		log.Info().Str("file", path).Msg("Trace written")
	}
	return runErr
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log := logging.Component("pilotsim")
		log.Warn().Stringer("signal", s).Msg("Shutting down")
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}()
}
