package config

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/pca9685"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/picobldc"
)

// Pico builds a chassis configuration on the channels of a Pico-BLDC
// driver, steering with a servo on servos if the description has a steering
// joint. The driver's control loop must be running.
func (c *Config) Pico(d *picobldc.Driver, servos pca9685.Outputs) (chassis.Config, error) {
	wheels, steering := c.Geometry()
	if steering != nil && servos == nil {
		return chassis.Config{}, errors.New("steering needs a servo controller")
	}
	cfg := chassis.Config{
		Drivetrain:   c.DrivetrainType(),
		Synchronizer: d,
		Odometer:     c.chassisOdometer(),
	}
	for i, w := range wheels {
		cfg.Wheels = append(cfg.Wheels, chassis.Wheel{Geometry: w, Actuator: d.Motor(c.Wheels[i].Channel)})
	}
	if steering != nil {
		s := c.Steering
		cfg.Steering = &chassis.SteeringJoint{
			Geometry: steering,
			Actuator: pca9685.NewServo(servos, pca9685.ServoConfig{Port: s.Port, Range: s.Range, MaxSpeed: s.MaxSpeed}),
		}
	}
	return cfg, nil
}

func (c *Config) chassisOdometer() chassis.OdometerConfig {
	return chassis.OdometerConfig{
		MinInterval: c.Odometer.MinInterval,
		MaxInterval: c.Odometer.MaxInterval,
		Threshold:   c.Odometer.Threshold,
	}
}

// OpenRig sets up the hardware the description names and returns a chassis
// configuration driving it. The returned function releases the hardware.
func (c *Config) OpenRig(ctx context.Context) (chassis.Config, func(), error) {
	switch c.Hardware.Kind {
	case HardwarePicoBLDC:
		return c.openPico(ctx)
	default:
		cfg, _ := c.Sim(hardware.NewSimBus(nil))
		return cfg, func() {}, nil
	}
}

func (c *Config) openPico(ctx context.Context) (chassis.Config, func(), error) {
	bus, err := picobldc.OpenBus(c.Hardware.Bus)
	if err != nil {
		return chassis.Config{}, nil, err
	}
	cfg, release, err := c.openPicoOn(ctx, bus)
	if err != nil {
		_ = bus.Close()
		return chassis.Config{}, nil, err
	}
	return cfg, func() {
		release()
		_ = bus.Close()
	}, nil
}

// openPicoOn brings up the boards on an open bus and starts the driver loop.
// The returned function stops the loop and resets the boards; the bus stays
// open.
func (c *Config) openPicoOn(ctx context.Context, bus i2c.Bus) (chassis.Config, func(), error) {
	board := picobldc.New(bus)
	if err := board.CheckDistanceCounters(); err != nil {
		return chassis.Config{}, nil, errors.Wrap(err, "picobldc hardware")
	}
	if err := board.SetWatchdog(c.Hardware.Watchdog); err != nil {
		return chassis.Config{}, nil, err
	}
	driver := picobldc.NewDriver(board, picobldc.DriverConfig{MaxSpeed: c.Hardware.MaxSpeed})

	var servos *pca9685.PCA9685
	var outputs pca9685.Outputs
	if c.Steering != nil {
		servos = pca9685.New(bus)
		if err := servos.Configure(); err != nil {
			_ = board.Close()
			return chassis.Config{}, nil, err
		}
		outputs = servos
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go driver.Loop(ctx, &wg)
	release := func() {
		cancel()
		wg.Wait()
		_ = board.Close()
		if servos != nil {
			_ = servos.Close()
		}
	}

	cfg, err := c.Pico(driver, outputs)
	if err != nil {
		release()
		return chassis.Config{}, nil, err
	}
	return cfg, release, nil
}
