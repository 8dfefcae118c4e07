// Package config loads a robot description from YAML, applies environment
// overrides and turns the result into chassis configurations.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"periph.io/x/periph/conn/physic"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/geometry"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/kinematics"
)

// Env holds the settings that can be given through the environment.
type Env struct {
	ConfigFile          string        `env:"MOTION_CONFIG"`
	LogLevel            string        `env:"MOTION_LOG_LEVEL" envDefault:"info"`
	OdometerMaxInterval time.Duration `env:"MOTION_ODOMETER_MAX_INTERVAL"`
	Journal             string        `env:"MOTION_JOURNAL"`
}

// Config is a robot description. Lengths are in Units; everything handed to
// the motion packages is converted to millimetres.
type Config struct {
	Name       string          `yaml:"name"`
	Units      string          `yaml:"units"`
	Drivetrain string          `yaml:"drivetrain"`
	Wheels     []WheelConfig   `yaml:"wheels"`
	Steering   *SteeringConfig `yaml:"steering,omitempty"`
	Dynamics   DynamicsConfig  `yaml:"dynamics"`
	Odometer   OdometerConfig  `yaml:"odometer"`
	Hardware   HardwareConfig  `yaml:"hardware"`

	Env Env `yaml:"-"`
}

// WheelConfig places a wheel either by Offset/X/MountingAngle or, for omni
// wheels, by Polar.
type WheelConfig struct {
	Name          string       `yaml:"name"`
	Diameter      float64      `yaml:"diameter"`
	Offset        float64      `yaml:"offset"`
	X             float64      `yaml:"x"`
	MountingAngle float64      `yaml:"mountingAngle"`
	Polar         *PolarConfig `yaml:"polar,omitempty"`
	GearRatio     float64      `yaml:"gearRatio"`
	Inverted      bool         `yaml:"inverted"`
	// Channel is the motor controller channel driving the wheel.
	Channel int `yaml:"channel"`
	// MaxSpeed is the actuator limit in degrees per second, used for
	// simulated actuators.
	MaxSpeed float64 `yaml:"maxSpeed"`
}

type PolarConfig struct {
	Angle  float64 `yaml:"angle"`
	Radius float64 `yaml:"radius"`
}

type SteeringConfig struct {
	Offset    float64 `yaml:"offset"`
	MaxAngle  float64 `yaml:"maxAngle"`
	GearRatio float64 `yaml:"gearRatio"`
	MaxSpeed  float64 `yaml:"maxSpeed"`
	// Port is the PCA9685 output the steering servo is on, and Range its
	// travel in degrees. Only used with picobldc hardware.
	Port  int     `yaml:"port"`
	Range float64 `yaml:"range"`
}

// DynamicsConfig overrides the chassis default speeds and accelerations.
// Zero values leave the defaults alone.
type DynamicsConfig struct {
	LinearSpeed         float64 `yaml:"linearSpeed"`
	AngularSpeed        float64 `yaml:"angularSpeed"`
	LinearAcceleration  float64 `yaml:"linearAcceleration"`
	AngularAcceleration float64 `yaml:"angularAcceleration"`
}

// HardwareConfig selects what the wheels are driven by: "sim" for
// simulated actuators or "picobldc" for a Pico-BLDC board on I2C.
type HardwareConfig struct {
	Kind string `yaml:"kind"`
	// Bus is the periph I2C bus name; empty picks the first bus.
	Bus string `yaml:"bus"`
	// MaxSpeed is the motor speed in degrees per second at full scale.
	MaxSpeed float64       `yaml:"maxSpeed"`
	Watchdog time.Duration `yaml:"watchdog"`
}

const (
	HardwareSim      = "sim"
	HardwarePicoBLDC = "picobldc"
)

type OdometerConfig struct {
	MinInterval time.Duration `yaml:"minInterval"`
	MaxInterval time.Duration `yaml:"maxInterval"`
	Threshold   int           `yaml:"threshold"`
}

const (
	DefaultMaxSpeed = 1000.0

	ev3WheelDiameter = 43.2
	ev3TrackWidth    = 142
)

var units = map[string]physic.Distance{
	"mm": physic.MilliMetre,
	"cm": 10 * physic.MilliMetre,
	"m":  physic.Metre,
	"in": 25400 * physic.MicroMetre,
}

// Default describes an EV3 differential robot.
func Default() *Config {
	c := &Config{
		Name:       "ev3",
		Units:      "mm",
		Drivetrain: kinematics.Differential.String(),
		Wheels: []WheelConfig{
			{Name: "left", Diameter: ev3WheelDiameter, Offset: ev3TrackWidth / 2},
			{Name: "right", Diameter: ev3WheelDiameter, Offset: -ev3TrackWidth / 2},
		},
	}
	applyDefaults(c)
	return c
}

// Load reads a robot description from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading robot description")
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, errors.Wrap(err, "parsing robot description")
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromEnv parses the environment and loads the description it names, or the
// default robot if it names none. An explicit path overrides MOTION_CONFIG.
func FromEnv(path string) (*Config, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}
	if path != "" {
		e.ConfigFile = path
	}

	c := Default()
	if e.ConfigFile != "" {
		var err error
		if c, err = Load(e.ConfigFile); err != nil {
			return nil, err
		}
	}
	if e.OdometerMaxInterval > 0 {
		c.Odometer.MaxInterval = e.OdometerMaxInterval
	}
	c.Env = e
	return c, nil
}

func applyDefaults(c *Config) {
	if c.Units == "" {
		c.Units = "mm"
	}
	if c.Drivetrain == "" {
		c.Drivetrain = kinematics.Differential.String()
	}
	if c.Hardware.Kind == "" {
		c.Hardware.Kind = HardwareSim
	}
	if c.Hardware.MaxSpeed == 0 {
		c.Hardware.MaxSpeed = DefaultMaxSpeed
	}
	if c.Hardware.Watchdog == 0 {
		c.Hardware.Watchdog = 500 * time.Millisecond
	}
	for i := range c.Wheels {
		w := &c.Wheels[i]
		if w.GearRatio == 0 {
			w.GearRatio = 1
		}
		if w.MaxSpeed == 0 {
			w.MaxSpeed = DefaultMaxSpeed
		}
	}
	if s := c.Steering; s != nil {
		if s.GearRatio == 0 {
			s.GearRatio = 1
		}
		if s.MaxSpeed == 0 {
			s.MaxSpeed = DefaultMaxSpeed
		}
	}
}

// Validate checks the description for problems that can be found without
// building the kinematics.
func (c *Config) Validate() error {
	if _, ok := units[strings.ToLower(c.Units)]; !ok {
		return errors.Errorf("unknown units %q", c.Units)
	}
	d, err := kinematics.ParseDrivetrain(c.Drivetrain)
	if err != nil {
		return err
	}
	if len(c.Wheels) < d.MinWheels() {
		return errors.Errorf("%v drivetrain needs at least %d wheels, got %d", d, d.MinWheels(), len(c.Wheels))
	}
	for i, w := range c.Wheels {
		if !(w.Diameter > 0) {
			return errors.Errorf("wheel %d: diameter must be positive", i)
		}
		if !(w.MaxSpeed > 0) {
			return errors.Errorf("wheel %d: maxSpeed must be positive", i)
		}
		if w.Polar != nil && d != kinematics.Holonomic {
			return errors.Errorf("wheel %d: polar placement is only for holonomic drivetrains", i)
		}
	}
	switch c.Hardware.Kind {
	case HardwareSim:
	case HardwarePicoBLDC:
		if s := c.Steering; s != nil && (s.Port < 0 || s.Port > 15) {
			return errors.Errorf("steering: port %d out of range 0-15", s.Port)
		}
		used := map[int]bool{}
		for i, w := range c.Wheels {
			if w.Channel < 0 || w.Channel > 3 {
				return errors.Errorf("wheel %d: channel %d out of range 0-3", i, w.Channel)
			}
			if used[w.Channel] {
				return errors.Errorf("wheel %d: channel %d used twice", i, w.Channel)
			}
			used[w.Channel] = true
		}
	default:
		return errors.Errorf("unknown hardware %q", c.Hardware.Kind)
	}
	if d == kinematics.Ackermann && c.Steering == nil {
		return errors.New("ackermann drivetrain needs a steering section")
	}
	if d != kinematics.Ackermann && c.Steering != nil {
		return errors.Errorf("%v drivetrain has no steering", d)
	}
	return nil
}

// Scale returns the number of millimetres per configured unit.
func (c *Config) Scale() float64 {
	u, ok := units[strings.ToLower(c.Units)]
	if !ok {
		return 1
	}
	return float64(u) / float64(physic.MilliMetre)
}

func (c *Config) DrivetrainType() kinematics.Drivetrain {
	d, _ := kinematics.ParseDrivetrain(c.Drivetrain)
	return d
}

// Geometry returns the wheels and steering in millimetres.
func (c *Config) Geometry() ([]geometry.Wheel, *geometry.Steering) {
	scale := c.Scale()
	wheels := make([]geometry.Wheel, len(c.Wheels))
	for i, w := range c.Wheels {
		var g geometry.Wheel
		if w.Polar != nil {
			g = geometry.PolarWheel(w.Diameter*scale, w.Polar.Angle, w.Polar.Radius*scale, w.GearRatio)
		} else {
			g = geometry.CartesianWheel(w.Diameter*scale, w.X*scale, w.Offset*scale, w.MountingAngle, w.GearRatio)
		}
		if w.Inverted {
			g = g.Inverted()
		}
		wheels[i] = g
	}

	var steering *geometry.Steering
	if s := c.Steering; s != nil {
		steering = geometry.NewSteering(s.Offset*scale, s.MaxAngle, s.GearRatio)
	}
	return wheels, steering
}

// Sim builds a chassis configuration driving simulated actuators on bus.
// The actuators are returned in wheel order, followed by the steering
// actuator if there is one.
func (c *Config) Sim(bus *hardware.SimBus) (chassis.Config, []*hardware.SimActuator) {
	wheels, steering := c.Geometry()
	cfg := chassis.Config{
		Drivetrain:   c.DrivetrainType(),
		Synchronizer: bus,
		Odometer:     c.chassisOdometer(),
	}

	var actuators []*hardware.SimActuator
	for i, w := range wheels {
		name := c.Wheels[i].Name
		if name == "" {
			name = fmt.Sprintf("wheel%d", i)
		}
		a := bus.NewActuator(name, c.Wheels[i].MaxSpeed)
		actuators = append(actuators, a)
		cfg.Wheels = append(cfg.Wheels, chassis.Wheel{Geometry: w, Actuator: a})
	}
	if steering != nil {
		a := bus.NewActuator("steering", c.Steering.MaxSpeed)
		actuators = append(actuators, a)
		cfg.Steering = &chassis.SteeringJoint{Geometry: steering, Actuator: a}
	}
	return cfg, actuators
}

// ApplyDynamics sets the configured speeds and accelerations on c, keeping
// the chassis defaults for any left at zero.
func (c *Config) ApplyDynamics(ch *chassis.Chassis) error {
	d := ch.Dynamics()
	pick := func(configured, current float64) float64 {
		if configured > 0 && !math.IsInf(configured, 0) {
			return configured
		}
		return current
	}
	return ch.SetDynamics(
		pick(c.Dynamics.LinearSpeed*c.Scale(), d.LinearSpeed),
		pick(c.Dynamics.AngularSpeed, d.AngularSpeed),
		pick(c.Dynamics.LinearAcceleration*c.Scale(), d.LinearAcceleration),
		pick(c.Dynamics.AngularAcceleration, d.AngularAcceleration),
	)
}

// Write saves the description in YAML, for recording the configuration a
// run actually used.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshalling robot description")
	}
	return errors.Wrap(os.WriteFile(path, data, 0666), "writing robot description")
}
