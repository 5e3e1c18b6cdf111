package gpio

import (
	"context"
	"time"

	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/waitstate"
	"github.com/pkg/errors"
)

// DefaultWatchInterval bounds each blocking wait of a Watcher, and with that
// how long Stop can take.
const DefaultWatchInterval = 100 * time.Millisecond

// Event is one edge seen by a Watcher
type Event struct {
	Level bool
	Time  time.Time
}

// Watcher turns edge waits into a stream that consumers can wait on with a
// context. Watch configures the edge once. The watcher owns the pin while it
// runs; the pin must not be used by anyone else until Stop returns.
type Watcher struct {
	pin      *Pin
	edge     Edge
	interval time.Duration

	state  waitstate.WaitState[Event]
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts watching edge on p. A zero interval uses DefaultWatchInterval.
func Watch(p *Pin, edge Edge, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if edge == EdgeNone {
		return nil, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "watch", p.Dir(), "edge %q never fires", edge)
	}
	if p.Direction() != In {
		return nil, hwerr.Newf(hwerr.ErrorInvalidState, "watch", p.Dir(), "pin is configured as %q", p.Direction())
	}

	if err := p.SetEdge(edge); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		pin:      p,
		edge:     edge,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	log := w.pin.Logger().WithField("edge", w.edge)

	for ctx.Err() == nil {
		err := w.pin.waitChange(w.edge, w.interval)
		if errors.Is(err, hwerr.ErrorTimeout) {
			continue
		}
		if err != nil {
			log.WithError(err).Warn("Edge watch failed")
			w.state.Close(err)
			return
		}

		level, err := w.pin.Read()
		if err != nil {
			log.WithError(err).Warn("Reading level after edge failed")
			w.state.Close(err)
			return
		}

		w.state.Set(Event{Level: level, Time: time.Now()})
	}

	w.state.Close(nil)
}

// Next waits for an event newer than last. Pass 0 to get the first event.
// The returned count is the last argument of the following call.
func (w *Watcher) Next(ctx context.Context, last uint64) (uint64, Event, error) {
	return w.state.GetNewer(ctx, last)
}

// Last returns the most recent event without waiting. The count is 0 while
// no edge has been seen.
func (w *Watcher) Last() (uint64, Event) {
	return w.state.Peek()
}

// Err returns the failure that ended the watch, or nil while it runs or
// after Stop
func (w *Watcher) Err() error {
	return w.state.Err()
}

// Stop ends the watch and waits until the pin is no longer used
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}
