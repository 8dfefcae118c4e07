package pilot

import "github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"

// MoveListener hears about every move the pilot makes. MoveStarted is called
// before the move is sent to the chassis; MoveStopped is called once the
// move's actual displacement has been measured. Listeners are called from
// the requesting goroutine or the monitor and must not block for long.
type MoveListener interface {
	MoveStarted(move motion.Move)
	MoveStopped(move motion.Move)
}

// MoveListenerFuncs adapts a pair of functions to MoveListener. Either may
// be nil. Register a pointer so that it can be removed again.
type MoveListenerFuncs struct {
	Started func(move motion.Move)
	Stopped func(move motion.Move)
}

func (f *MoveListenerFuncs) MoveStarted(move motion.Move) {
	if f.Started != nil {
		f.Started(move)
	}
}

func (f *MoveListenerFuncs) MoveStopped(move motion.Move) {
	if f.Stopped != nil {
		f.Stopped(move)
	}
}

func (p *Pilot) AddMoveListener(l MoveListener) {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()
	p.listeners = append(p.listeners, l)
}

// RemoveMoveListener unregisters l, which must be comparable.
func (p *Pilot) RemoveMoveListener(l MoveListener) {
	p.listenersLock.Lock()
	defer p.listenersLock.Unlock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *Pilot) snapshotListeners() []MoveListener {
	p.listenersLock.RLock()
	defer p.listenersLock.RUnlock()
	return p.listeners
}

func (p *Pilot) notifyStarted(move motion.Move) {
	for _, l := range p.snapshotListeners() {
		l.MoveStarted(move)
	}
}

func (p *Pilot) notifyStopped(move motion.Move) {
	for _, l := range p.snapshotListeners() {
		l.MoveStopped(move)
	}
}
