package pca9685

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/i2c"
)

const (
	DefaultAddr = 0x40

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.
	RegTestMode = 0xff

	PWMPeriod = 20 * time.Millisecond

	ServoMinPulseDuration = 1000 * time.Microsecond
	ServoMaxPulseDuration = 2000 * time.Microsecond

	PWMMax = 4095

	ServoMinPWM = float64(PWMMax * ServoMinPulseDuration / PWMPeriod)
	ServoMaxPWM = float64(PWMMax * ServoMaxPulseDuration / PWMPeriod)

	// fullOff is the bit in the high byte of the off register that holds
	// an output low.
	fullOff = 0x10
)

// Outputs is the part of the board a Servo drives.
type Outputs interface {
	SetServo(port int, value float64) error
	SetOff(port int) error
}

type PCA9685 struct {
	dev *i2c.Dev
}

var _ Outputs = (*PCA9685)(nil)

func New(bus i2c.Bus) *PCA9685 {
	return &PCA9685{dev: &i2c.Dev{Bus: bus, Addr: DefaultAddr}}
}

// Configure sets the PWM frequency for servos and enables the outputs.
func (p *PCA9685) Configure() (err error) {
	// Put device to sleep.
	if err = p.writeReg(RegMode1, 0x11); err != nil {
		return
	}
	// Update pre-scaler for 50Hz.
	if err = p.writeReg(RegPreScale, 0x79); err != nil {
		return
	}
	// Trigger a reset
	if err = p.writeReg(RegMode1, 0x01); err != nil {
		return
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	// Enable.
	return p.writeReg(RegMode1, 0x81)
}

// SetServo sets the pulse width on port, from the shortest servo pulse at 0
// to the longest at 1.
func (p *PCA9685) SetServo(port int, value float64) error {
	value = clamp01(value)
	return p.setOffTime(port, uint16(ServoMinPWM+value*(ServoMaxPWM-ServoMinPWM)))
}

// SetPWM sets the duty cycle on port.
func (p *PCA9685) SetPWM(port int, value float64) error {
	return p.setOffTime(port, uint16(PWMMax*clamp01(value)))
}

// SetOff holds port low, which leaves a servo unpowered.
func (p *PCA9685) SetOff(port int) error {
	if err := checkPort(port); err != nil {
		return err
	}
	addr := RegLEDBase + port*4
	return p.write(byte(addr), 0, 0, 0, fullOff)
}

// Close puts the board to sleep.
func (p *PCA9685) Close() error {
	return p.writeReg(RegMode1, 0x11)
}

func (p *PCA9685) setOffTime(port int, pwmValue uint16) error {
	if err := checkPort(port); err != nil {
		return err
	}
	addr := RegLEDBase + port*4
	return p.write(byte(addr), 0, 0, byte(pwmValue&0xff), byte(pwmValue>>8))
}

func (p *PCA9685) writeReg(reg byte, value byte) error {
	return p.write(reg, value)
}

func (p *PCA9685) write(reg byte, data ...byte) error {
	if err := p.dev.Tx(append([]byte{reg}, data...), nil); err != nil {
		return errors.Wrapf(err, "writing PCA9685 register %#x", reg)
	}
	return nil
}

func checkPort(port int) error {
	if port < 0 || port > 15 {
		return errors.Errorf("PCA9685 port %d out of range", port)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}
