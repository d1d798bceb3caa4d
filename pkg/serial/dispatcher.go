// Package serial runs closures one at a time on a dedicated goroutine.
//
// A Dispatcher is the single logical thread an editor session lives on: user
// intents and network callbacks are posted to it, so the state they touch
// never needs its own locking.
package serial

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
)

// ErrClosed is returned when posting to a closed dispatcher.
var ErrClosed = errors.New("serial: dispatcher closed")

// Dispatcher executes posted functions sequentially in FIFO order.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New starts a dispatcher goroutine.
func New() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Post enqueues fn without waiting for it. Safe to call from inside a
// dispatched function.
func (d *Dispatcher) Post(fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dispatch enqueues fn and blocks until it ran, returning its error. A
// panic in fn comes back as an internal error.
// Calling Dispatch from inside a dispatched function deadlocks; use Post there.
func (d *Dispatcher) Dispatch(fn func() error) error {
	res := make(chan error, 1)
	call := func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Named("serial").Error("dispatched function panicked", zap.String("panic", fmt.Sprint(rec)))
				res <- appErr.Newf(appErr.CodeInternal, "panic: %v", rec)
			}
		}()
		res <- fn()
	}
	if err := d.Post(call); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-d.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops accepting work, drains what is queued and waits for the
// goroutine to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.exec(fn)
	}
}

func (d *Dispatcher) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Named("serial").Error("dispatched function panicked", zap.String("panic", fmt.Sprint(rec)))
		}
	}()
	fn()
}
