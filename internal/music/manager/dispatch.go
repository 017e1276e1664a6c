package manager

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher runs submitted functions serially per key and concurrently
// across keys. A key's worker exits as soon as its backlog drains.
type Dispatcher struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	wg     sync.WaitGroup
	logger zerolog.Logger
}

type lane struct {
	pending []func()
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		lanes:  make(map[string]*lane),
		logger: logger,
	}
}

// Submit appends fn to key's lane, starting a worker if none is running.
func (d *Dispatcher) Submit(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lanes[key]
	if !ok {
		l = &lane{}
		d.lanes[key] = l
		d.wg.Add(1)
		go d.drain(key, l)
	}
	l.pending = append(l.pending, fn)
}

func (d *Dispatcher) drain(key string, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, key)
			d.mu.Unlock()
			return
		}
		fn := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		d.mu.Unlock()

		d.run(key, fn)
	}
}

func (d *Dispatcher) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("key", key).Err(fmt.Errorf("%v", r)).Msg("dispatched handler panicked")
		}
	}()
	fn()
}

// Wait blocks until every lane has drained.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
