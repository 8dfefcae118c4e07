// Package tunable holds named integer knobs that can be nudged at runtime,
// such as the pilot's speeds while driving from the shell.
package tunable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-motion/pkg/logging"
	"github.com/tigerbot-team/tigerbot/go-motion/pkg/motion"
)

type Tunable struct {
	Name  string
	Value int64
	Min   int64
	Max   int64

	log zerolog.Logger
	// OnChange applies a new value. If it fails the old value is restored.
	OnChange func(v int) error
}

// Add nudges the value by delta, clamped to the tunable's range.
func (t *Tunable) Add(delta int) error {
	return t.Set(t.Get() + delta)
}

func (t *Tunable) Set(v int) error {
	newV := motion.Clamp(int64(v), t.Min, t.Max)
	old := atomic.SwapInt64(&t.Value, newV)
	if t.OnChange != nil {
		if err := t.OnChange(int(newV)); err != nil {
			atomic.StoreInt64(&t.Value, old)
			return errors.Wrapf(err, "setting %s", t.Name)
		}
	}
	t.log.Info().Str("tunable", t.Name).Int64("value", newV).Msg("Tunable changed")
	return nil
}

func (t *Tunable) Get() int {
	return int(atomic.LoadInt64(&t.Value))
}

type Tunables struct {
	log zerolog.Logger

	lock     sync.Mutex
	All      []*Tunable
	selected int
}

func New() *Tunables {
	return &Tunables{log: logging.Component("tunable")}
}

// Create adds a tunable with the given starting value and range.
func (t *Tunables) Create(name string, value, min, max int) *Tunable {
	newTunable := &Tunable{
		Name:  name,
		Value: int64(value),
		Min:   int64(min),
		Max:   int64(max),
		log:   t.log,
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) Find(name string) (*Tunable, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, tun := range t.All {
		if tun.Name == name {
			return tun, true
		}
	}
	return nil, false
}

func (t *Tunables) SelectNext() *Tunable {
	t.lock.Lock()
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.lock.Unlock()
	return t.logSelected()
}

func (t *Tunables) SelectPrev() *Tunable {
	t.lock.Lock()
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.lock.Unlock()
	return t.logSelected()
}

func (t *Tunables) logSelected() *Tunable {
	cur := t.Current()
	t.log.Info().Str("tunable", cur.Name).Int("value", cur.Get()).Msg("Tunable selected")
	return cur
}

func (t *Tunables) Current() *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.All[t.selected]
}
