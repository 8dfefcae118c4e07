package picobldc

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/i2c/i2ctest"
)

func read(reg Register, v uint16) i2ctest.IO {
	return i2ctest.IO{Addr: PicoAddr, W: []byte{byte(reg)}, R: []byte{byte(v >> 8), byte(v)}}
}

func write(reg Register, v uint16) i2ctest.IO {
	return i2ctest.IO{Addr: PicoAddr, W: []byte{byte(reg), byte(v >> 8), byte(v)}}
}

func TestTelemetry(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		read(RegBattV, 3000),
		read(RegCurrent, 5461),
		read(RegPower, 1000),
		read(RegTemperature, 3150),
		read(RegStatus, uint16(RegStatusCalibDone)),
	}}
	p := New(bus)

	tel, err := p.Telemetry()
	require.NoError(t, err)
	assert.InDelta(t, 12.0, tel.BattVolts, 1e-4)
	assert.InDelta(t, 1.0, tel.CurrentAmps, 1e-3)
	assert.InDelta(t, 1000*PowerLSB, tel.PowerWatts, 1e-4)
	assert.InDelta(t, 31.5, tel.TemperatureC, 1e-4)
	assert.Equal(t, RegStatusCalibDone, tel.Status)
	require.NoError(t, bus.Close())
}

func TestSetMotorSpeedsConfiguresOnce(t *testing.T) {
	run := RegCtrlEnableI2CControl | RegCtrlRun
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		read(RegMot3Calib, 0x1234),
		write(RegCtrl, run),
		write(RegStatus, uint16(RegStatusCalibDone)),
		write(RegMot0V, 100),
		write(RegMot1V, 0xffff),
		write(RegMot2V, 0),
		write(RegMot3V, 0x5fff),
		// Within 100ms the config word is not rewritten.
		write(RegMot0V, 0),
		write(RegMot1V, 0),
		write(RegMot2V, 0),
		write(RegMot3V, 0),
		read(RegMot0Dist, 10),
		read(RegMot1Dist, 0xfff6),
		read(RegMot2Dist, 0),
		read(RegMot3Dist, 256),
	}}
	p := New(bus)

	require.NoError(t, p.SetMotorSpeeds(PerMotorVal[int16]{100, -1, 0, 0x5fff}))
	require.NoError(t, p.SetMotorSpeeds(PerMotorVal[int16]{}))
	d, err := p.RawDistancesTraveled()
	require.NoError(t, err)
	assert.Equal(t, PerMotorVal[int16]{10, -10, 0, 256}, d)
	require.NoError(t, bus.Close())
}

func TestCheckDistanceCounters(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		read(RegStatus, uint16(RegStatusCalibDone|RegStatusDistanceCounters)),
		read(RegStatus, uint16(RegStatusCalibDone)),
	}}
	p := New(bus)

	assert.NoError(t, p.CheckDistanceCounters())
	assert.Equal(t, ErrNoDistanceCounters, p.CheckDistanceCounters())
	require.NoError(t, bus.Close())
}

// fakeBoard integrates the commanded speeds into its distance counters,
// advancing one control period per read.
type fakeBoard struct {
	lock     sync.Mutex
	maxSpeed float64
	period   time.Duration
	speeds   PerMotorVal[int16]
	dist     PerMotorVal[float64]
	jammed   PerMotorVal[bool]
	offset   int16
}

func (f *fakeBoard) SetMotorSpeeds(s PerMotorVal[int16]) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.speeds = s
	return nil
}

func (f *fakeBoard) RawDistancesTraveled() (PerMotorVal[int16], error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var raw PerMotorVal[int16]
	for m := range f.dist {
		if !f.jammed[m] {
			degPerSec := float64(f.speeds[m]) / motorFullRange * f.maxSpeed
			f.dist[m] += degPerSec / 360 * (360 / degreesPerCount) * f.period.Seconds()
		}
		raw[m] = int16(int64(math.Round(f.dist[m]))) + f.offset
	}
	return raw, nil
}

func newDriver() (*Driver, *fakeBoard) {
	cfg := DriverConfig{MaxSpeed: 720, Period: 10 * time.Millisecond, Acceleration: 1440}
	b := &fakeBoard{maxSpeed: cfg.MaxSpeed, period: cfg.Period}
	return NewDriver(b, cfg), b
}

func runTicks(t *testing.T, d *Driver, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, d.Tick(d.cfg.Period))
	}
}

func TestDriverVelocityMode(t *testing.T) {
	d, b := newDriver()
	m := d.Motor(0)
	m.SetSpeed(360)

	m.Forward()
	runTicks(t, d, 11)
	assert.InDelta(t, 144, m.RotationSpeed(), 1e-6, "ramping at 1440°/s²")
	assert.Greater(t, b.speeds[0], int16(0))
	assert.Zero(t, b.speeds[1])

	runTicks(t, d, 50)
	assert.InDelta(t, 360, m.RotationSpeed(), 1e-6)
	assert.InDelta(t, float64(motorFullRange)/2, float64(b.speeds[0]), 1)
	assert.True(t, m.IsMoving())

	m.Stop()
	runTicks(t, d, 30)
	assert.False(t, m.IsMoving())
	assert.Zero(t, b.speeds[0])
	assert.Greater(t, m.EncoderPosition(), 150)
}

func TestDriverPositionMode(t *testing.T) {
	d, _ := newDriver()
	m := d.Motor(2)
	runTicks(t, d, 1)

	m.RotateBy(-180, false)
	for i := 0; i < 500 && m.IsMoving(); i++ {
		runTicks(t, d, 1)
	}
	assert.False(t, m.IsMoving())
	assert.InDelta(t, -180, m.EncoderPosition(), 3)

	m.ResetEncoder()
	assert.Equal(t, 0, m.EncoderPosition())
	runTicks(t, d, 1)
	assert.InDelta(t, 0, m.EncoderPosition(), 1)

	m.RotateTo(90, false)
	for i := 0; i < 500 && m.IsMoving(); i++ {
		runTicks(t, d, 1)
	}
	assert.InDelta(t, 90, m.EncoderPosition(), 3)
}

func TestDriverStall(t *testing.T) {
	d, b := newDriver()
	m := d.Motor(1)
	b.jammed[1] = true

	m.Forward()
	runTicks(t, d, 20)
	assert.False(t, m.IsStalled())
	runTicks(t, d, 20)
	assert.True(t, m.IsStalled())

	b.jammed[1] = false
	runTicks(t, d, 5)
	assert.False(t, m.IsStalled())
}

func TestDistanceCountersWrap(t *testing.T) {
	d, b := newDriver()
	b.offset = math.MaxInt16 - 10
	m := d.Motor(0)
	m.Forward()
	runTicks(t, d, 100)
	assert.Greater(t, m.EncoderPosition(), 360, "counter wrapped without losing distance")
}

func TestBatchHoldsControlLoop(t *testing.T) {
	d, _ := newDriver()
	d.StartSynchronization()
	ticked := make(chan struct{})
	go func() {
		_ = d.Tick(d.cfg.Period)
		close(ticked)
	}()

	select {
	case <-ticked:
		t.Fatal("tick ran during a batch")
	case <-time.After(20 * time.Millisecond):
	}
	d.EndSynchronization()
	<-ticked
}
