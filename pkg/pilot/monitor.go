package pilot

import (
	"context"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

const (
	activePoll = time.Millisecond
	idlePoll   = 100 * time.Millisecond
)

// start begins a new move. An active move is stopped first, or, if replace
// is set, finalised without stopping so that the new move takes over from
// it. Listeners hear about the new move before it is dispatched.
func (p *Pilot) start(move motion.Move, dispatch func() error, replace, continuous bool) (uint64, error) {
	p.requestLock.Lock()
	defer p.requestLock.Unlock()

	p.stateLock.Lock()
	active := p.active
	if active && replace {
		p.replace = true
	}
	p.stateLock.Unlock()

	if active {
		if replace {
			p.wakeMonitor()
		} else {
			p.chassis.Stop()
		}
		p.waitIdle()
	}

	p.chassis.MoveStart()
	move.Moving = true
	move.Started = p.clock.Now()
	p.notifyStarted(move)
	p.metrics.started(move.Type)

	if err := dispatch(); err != nil {
		p.log.Warn().Err(err).Stringer("move", move).Msg("Move rejected by chassis")
		p.chassis.Displacement(&move)
		move.Moving = false
		p.notifyStopped(move)
		p.metrics.stopped(move.Type)
		return 0, err
	}

	p.stateLock.Lock()
	p.moveID++
	id := p.moveID
	p.move = move
	p.active = true
	p.stalled = false
	p.continuous = nil
	if continuous {
		p.continuous = dispatch
	}
	p.stateLock.Unlock()

	p.log.Debug().Uint64("id", id).Stringer("move", move).Msg("Move started")
	p.wakeMonitor()
	return id, nil
}

func (p *Pilot) wakeMonitor() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// waitMove blocks until move id is no longer the active move.
func (p *Pilot) waitMove(id uint64) {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	for p.active && p.moveID == id && !p.closed {
		p.moveDone.Wait()
	}
}

// waitIdle blocks until no move is active.
func (p *Pilot) waitIdle() {
	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	for p.active && !p.closed {
		p.moveDone.Wait()
	}
}

// Monitor watches the active move and finalises it when the chassis stops,
// an actuator stalls or a new move replaces it. It polls quickly while a
// move is active and slowly otherwise.
func (p *Pilot) Monitor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		p.stateLock.Lock()
		p.closed = true
		p.moveDone.Broadcast()
		p.stateLock.Unlock()
		p.log.Debug().Msg("Monitor exited")
	}()

	for ctx.Err() == nil {
		p.stateLock.Lock()
		active, replace := p.active, p.replace
		p.stateLock.Unlock()

		if !active {
			select {
			case <-ctx.Done():
			case <-p.wake:
			case <-p.clock.After(idlePoll):
			}
			continue
		}

		if !replace && p.chassis.IsStalled() {
			p.log.Warn().Stringer("move", p.Movement()).Msg("Actuator stalled, stopping")
			p.stateLock.Lock()
			p.stalled = true
			p.stateLock.Unlock()
			p.metrics.stall()
			p.chassis.Stop()
		}

		if replace || !p.chassis.IsMoving() {
			p.finish()
			continue
		}

		select {
		case <-ctx.Done():
		case <-p.clock.After(activePoll):
		}
	}
}

// finish records the measured displacement of the active move, tells the
// listeners and releases anyone waiting for it.
func (p *Pilot) finish() {
	p.stateLock.Lock()
	move := p.move
	p.stateLock.Unlock()

	p.chassis.Displacement(&move)
	p.notifyStopped(move)
	p.metrics.stopped(move.Type)
	p.log.Debug().Stringer("move", move).Msg("Move finished")

	p.stateLock.Lock()
	p.move = move
	p.lastMove = move
	p.active = false
	p.replace = false
	p.continuous = nil
	p.moveDone.Broadcast()
	p.stateLock.Unlock()
}
