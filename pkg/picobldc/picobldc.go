// Package picobldc drives the Pico-BLDC four channel motor controller over
// I2C and exposes its channels as actuators.
package picobldc

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/periph/conn/i2c"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
)

const (
	PicoAddr = 0x42
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C

	// Distance travelled per motor, 1/256 rotation per count. Wraps.
	// These registers are not in the stock firmware's register map; they
	// assume a firmware build that appends them after RegTemperature and
	// sets RegStatusDistanceCounters. Check with CheckDistanceCounters
	// before relying on them.
	RegMot0Dist
	RegMot1Dist
	RegMot2Dist
	RegMot3Dist
)

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	PowerLSB       = CurrentLSB * 20
	TemperatureLSB = 0.01
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
	// RegStatusDistanceCounters is set by firmware that provides the
	// RegMot*Dist registers (assumed layout, see RegMot0Dist).
	RegStatusDistanceCounters
)

// PerMotorVal holds one value per motor channel.
type PerMotorVal[T any] [4]T

const (
	writeRetries    = 20
	calibrationWait = 10 * time.Second
)

var (
	ErrNotReady           = errors.New("Pico-BLDC not ready")
	ErrNoDistanceCounters = errors.New("Pico-BLDC firmware does not report distance counters")
)

type PicoBLDC struct {
	log zerolog.Logger
	dev *i2c.Dev

	lock            sync.Mutex
	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

// New talks to a Pico-BLDC at the default address on bus. The caller owns
// the bus.
func New(bus i2c.Bus) *PicoBLDC {
	return &PicoBLDC{
		log: logging.Component("picobldc"),
		dev: &i2c.Dev{Bus: bus, Addr: PicoAddr},
	}
}

func (p *PicoBLDC) Reset() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maybeConfigure(true, false)
}

func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if timeout == 0 {
		// Disable.
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > 0xffff {
		ms = 0xffff
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

// SetMotorSpeeds writes the speed registers, enabling the motors if needed.
func (p *PicoBLDC) SetMotorSpeeds(speeds PerMotorVal[int16]) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	for m, v := range speeds {
		if err := p.writeReg(RegMot0V+Register(m), uint16(v)); err != nil {
			return err
		}
	}
	return nil
}

// RawDistancesTraveled reads the wrapping distance counters.
func (p *PicoBLDC) RawDistancesTraveled() (PerMotorVal[int16], error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	var d PerMotorVal[int16]
	for m := range d {
		raw, err := p.readReg(RegMot0Dist + Register(m))
		if err != nil {
			return d, err
		}
		d[m] = int16(raw)
	}
	return d, nil
}

// Close stops the motors. It does not close the bus.
// CheckDistanceCounters returns ErrNoDistanceCounters unless the firmware
// reports the distance registers the driver closes its loop over.
func (p *PicoBLDC) CheckDistanceCounters() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	status, err := p.readReg(RegStatus)
	if err != nil {
		return err
	}
	if StatusFlag(status)&RegStatusDistanceCounters == 0 {
		return ErrNoDistanceCounters
	}
	return nil
}

func (p *PicoBLDC) Close() error {
	return p.Reset()
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < writeRetries; tries++ {
		if _, err = p.dev.Write(data); err == nil {
			if tries > 0 {
				p.log.Info().Int("tries", tries+1).Msg("Successfully programmed Pico-BLDC after retries")
			}
			return nil
		}
		p.log.Warn().Err(err).Msg("Failed to write to Pico-BLDC")
		time.Sleep(1 * time.Millisecond)
	}
	return errors.Wrapf(err, "writing Pico-BLDC register %d", data[0])
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && time.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		// First time.  Figure out calibration...
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// Calibration register empty, do a calibration. The wheels
			// need to be off the ground for this.
			p.log.Warn().Msg("Pico-BLDC not calibrated, running calibration...")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = time.Now()
	p.lastConfigWord = configWord & (^(RegCtrlReset | RegCtrlDoCalib)) /* Reset flag is not persistent */
	return nil
}

func (p *PicoBLDC) waitForCalibration() error {
	deadline := time.Now().Add(calibrationWait)
	var lastPrint time.Time
	for {
		status, err := p.readReg(RegStatus)
		if err != nil {
			p.log.Warn().Err(err).Msg("Failed to read status register")
		}
		if status&uint16(RegStatusCalibDone) != 0 {
			break
		}
		if time.Now().After(deadline) {
			return errors.Wrap(ErrNotReady, "calibration timed out")
		}
		if time.Since(lastPrint) > time.Second {
			p.log.Info().Uint16("status", status).Msg("Waiting for calibration to finish...")
			lastPrint = time.Now()
		}
		time.Sleep(10 * time.Millisecond)
	}

	calib := p.log.Info()
	for r := RegMot0Calib; r <= RegMot3Calib; r++ {
		v, err := p.readReg(r)
		if err != nil {
			return err
		}
		calib = calib.Uint16(fmt.Sprintf("mot%d", r-RegMot0Calib), v)
	}
	calib.Msg("Calibration words")
	return nil
}

// Telemetry is a snapshot of the board's power and health readings.
type Telemetry struct {
	BattVolts    float32
	CurrentAmps  float32
	PowerWatts   float32
	TemperatureC float32
	Status       StatusFlag
}

func (t Telemetry) MarshalZerologObject(e *zerolog.Event) {
	e.Float32("battV", t.BattVolts).
		Float32("amps", t.CurrentAmps).
		Float32("watts", t.PowerWatts).
		Float32("tempC", t.TemperatureC).
		Uint16("status", uint16(t.Status))
}

func (p *PicoBLDC) Telemetry() (Telemetry, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	var t Telemetry
	for _, r := range []struct {
		reg Register
		lsb float32
		out *float32
	}{
		{RegBattV, BattVLSB, &t.BattVolts},
		{RegCurrent, CurrentLSB, &t.CurrentAmps},
		{RegPower, PowerLSB, &t.PowerWatts},
		{RegTemperature, TemperatureLSB, &t.TemperatureC},
	} {
		raw, err := p.readReg(r.reg)
		if err != nil {
			return t, err
		}
		*r.out = float32(raw) * r.lsb
	}
	status, err := p.readReg(RegStatus)
	t.Status = StatusFlag(status)
	return t, err
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.Tx([]byte{byte(reg)}, buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "reading Pico-BLDC register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
