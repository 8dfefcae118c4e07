package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	simStep = time.Millisecond

	DefaultSimAcceleration = 6000.0
)

// SimCommand is one entry in a SimBus command log. Batch is zero for
// commands issued outside a synchronised batch.
type SimCommand struct {
	Actuator string
	Op       string
	Value    float64
	Batch    int
}

func (c SimCommand) String() string {
	return fmt.Sprintf("#%d %s.%s(%.2f)", c.Batch, c.Actuator, c.Op, c.Value)
}

// SimBus connects simulated actuators. While a batch is open the bus clock
// is frozen, so every command in the batch takes effect at the same instant.
type SimBus struct {
	clock Clock

	lock     sync.Mutex
	frozen   bool
	frozenAt time.Time
	batch    int
	log      []SimCommand
}

func NewSimBus(clock Clock) *SimBus {
	if clock == nil {
		clock = SystemClock{}
	}
	return &SimBus{clock: clock}
}

var _ Synchronizer = (*SimBus)(nil)

func (b *SimBus) StartSynchronization() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.frozen = true
	b.frozenAt = b.clock.Now()
	b.batch++
}

func (b *SimBus) EndSynchronization() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.frozen = false
}

func (b *SimBus) now() time.Time {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.frozen {
		return b.frozenAt
	}
	return b.clock.Now()
}

func (b *SimBus) record(name, op string, v float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	batch := 0
	if b.frozen {
		batch = b.batch
	}
	b.log = append(b.log, SimCommand{Actuator: name, Op: op, Value: v, Batch: batch})
}

// Commands returns a copy of the command log.
func (b *SimBus) Commands() []SimCommand {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]SimCommand(nil), b.log...)
}

func (b *SimBus) ClearCommands() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.log = nil
}

// SimActuator is a motor model with trapezoidal speed profiles. State is
// integrated lazily in 1ms steps whenever the actuator is touched.
type SimActuator struct {
	Name string
	bus  *SimBus

	lock     sync.Mutex
	last     time.Time
	maxSpeed float64
	position float64
	profile  Profile
	jammed   bool
}

func (b *SimBus) NewActuator(name string, maxSpeed float64) *SimActuator {
	return &SimActuator{
		Name:     name,
		bus:      b,
		maxSpeed: maxSpeed,
		profile: Profile{
			Speed:        maxSpeed,
			Acceleration: DefaultSimAcceleration,
		},
	}
}

var _ Actuator = (*SimActuator)(nil)

func (a *SimActuator) advance() {
	now := a.bus.now()
	if a.last.IsZero() || (!a.profile.Moving() && a.profile.Velocity == 0) {
		a.last = now
		return
	}
	for now.Sub(a.last) >= simStep {
		if a.jammed {
			a.profile.Velocity = 0
		} else {
			a.position = a.profile.Step(simStep.Seconds(), a.position)
		}
		a.last = a.last.Add(simStep)
	}
}

func (a *SimActuator) command(op string, v float64) {
	a.advance()
	a.bus.record(a.Name, op, v)
}

func (a *SimActuator) SetSpeed(ticksPerSecond float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("SetSpeed", ticksPerSecond)
	a.profile.Speed = math.Min(math.Abs(ticksPerSecond), a.maxSpeed)
}

func (a *SimActuator) SetAcceleration(ticksPerSecondSquared float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("SetAcceleration", ticksPerSecondSquared)
	a.profile.Acceleration = math.Abs(ticksPerSecondSquared)
}

func (a *SimActuator) Forward() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("Forward", 0)
	a.profile.Forward()
}

func (a *SimActuator) Backward() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("Backward", 0)
	a.profile.Backward()
}

func (a *SimActuator) Stop() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("Stop", 0)
	a.profile.Stop()
}

func (a *SimActuator) Float() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("Float", 0)
	a.profile.Float()
}

func (a *SimActuator) RotateBy(ticks int, block bool) {
	a.lock.Lock()
	a.command("RotateBy", float64(ticks))
	a.profile.MoveTo(math.Round(a.position) + float64(ticks))
	a.lock.Unlock()
	if block {
		a.wait()
	}
}

func (a *SimActuator) RotateTo(ticks int, block bool) {
	a.lock.Lock()
	a.command("RotateTo", float64(ticks))
	a.profile.MoveTo(float64(ticks))
	a.lock.Unlock()
	if block {
		a.wait()
	}
}

func (a *SimActuator) wait() {
	for a.IsMoving() {
		a.bus.clock.Sleep(simStep)
	}
}

func (a *SimActuator) EncoderPosition() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	return int(math.Round(a.position))
}

// Position is the exact simulated position, without encoder quantisation.
func (a *SimActuator) Position() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	return a.position
}

func (a *SimActuator) ResetEncoder() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.command("ResetEncoder", 0)
	a.profile.Target -= a.position
	a.position = 0
}

func (a *SimActuator) RotationSpeed() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	return a.profile.Velocity
}

func (a *SimActuator) IsMoving() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	return a.profile.Moving()
}

func (a *SimActuator) IsStalled() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	if !a.jammed {
		return false
	}
	p := a.profile
	return p.Mode == ProfilePosition || (p.Mode == ProfileVelocity && p.Direction != 0)
}

func (a *SimActuator) MaxSpeed() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.maxSpeed
}

func (a *SimActuator) SetMaxSpeed(ticksPerSecond float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.maxSpeed = ticksPerSecond
	a.profile.Speed = math.Min(a.profile.Speed, ticksPerSecond)
}

// Jam simulates a blocked wheel: while jammed the actuator produces no
// motion and reports itself stalled if it is commanded to move.
func (a *SimActuator) Jam(jammed bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.advance()
	a.jammed = jammed
}
