// Package waitstate publishes a value that goroutines can wait on with a
// context, so blocking producers can be consumed cancellably.
package waitstate

import (
	"context"
	"errors"
	"sync"
)

var ErrorClosed = errors.New("WaitState is closed")

// WaitState holds the latest value of type T together with an update counter
type WaitState[T any] struct {
	sync.Mutex
	value T

	updateCount uint64
	updateChan  chan (struct{})

	closed bool
	err    error
}

func (w *WaitState[T]) closeChan() {
	if w.updateChan != nil {
		close(w.updateChan)
		w.updateChan = nil
	}
}

// Set publishes a new value and wakes up all waiters
func (w *WaitState[T]) Set(new T) {
	w.Lock()
	defer w.Unlock()

	w.value = new
	w.updateCount++
	w.closeChan()
}

// Close wakes up all waiters. They return ErrorClosed, or err when it is not nil.
func (w *WaitState[T]) Close(err error) {
	w.Lock()
	defer w.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.err = err
	w.closeChan()
}

// Err returns the error the state was closed with
func (w *WaitState[T]) Err() error {
	w.Lock()
	defer w.Unlock()
	return w.err
}

// Peek returns the current value without waiting
func (w *WaitState[T]) Peek() (uint64, T) {
	w.Lock()
	defer w.Unlock()
	return w.updateCount, w.value
}

// Get waits until checkFunc accepts the current value, the context ends or the state is closed
func (w *WaitState[T]) Get(ctx context.Context, checkFunc func(updateCount uint64, value T) bool) (uint64, T, error) {
	for {
		w.Lock()

		if w.closed {
			err := w.err
			w.Unlock()
			if err == nil {
				err = ErrorClosed
			}
			var zero T
			return 0, zero, err
		}

		tmpCount := w.updateCount
		tmpValue := w.value

		if checkFunc == nil || checkFunc(w.updateCount, w.value) {
			w.Unlock()
			return tmpCount, tmpValue, nil
		}

		if w.updateChan == nil {
			w.updateChan = make(chan (struct{}))
		}
		c := w.updateChan
		w.Unlock()

		select {
		case <-ctx.Done():
			return tmpCount, tmpValue, ctx.Err()
		case <-c:
		}
	}
}

// GetNewer waits for a value published after lastCount
func (w *WaitState[T]) GetNewer(ctx context.Context, lastCount uint64) (uint64, T, error) {
	return w.Get(ctx, func(updateCount uint64, value T) bool {
		return updateCount > lastCount
	})
}
