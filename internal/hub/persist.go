package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/realtime"
)

const persistTimeout = 10 * time.Second

type persistJob struct {
	state  diagram.State
	author realtime.UserInfo
}

// persistQueue hands snapshots to a Persister from a single goroutine. Only
// the latest pending snapshot of each room is kept.
type persistQueue struct {
	p   Persister
	log *zap.Logger

	mu      sync.Mutex
	pending map[string]persistJob
	order   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newPersistQueue(p Persister, log *zap.Logger) *persistQueue {
	q := &persistQueue{
		p:       p,
		log:     log,
		pending: make(map[string]persistJob),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *persistQueue) Push(roomID string, state diagram.State, author realtime.UserInfo) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if _, queued := q.pending[roomID]; !queued {
		q.order = append(q.order, roomID)
	}
	q.pending[roomID] = persistJob{state: state, author: author}

	// under the lock so Close cannot close wake in between
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
}

// Close stops accepting snapshots and waits until the pending ones are saved.
func (q *persistQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *persistQueue) run() {
	defer close(q.done)
	for range q.wake {
		q.drain()
	}
	q.drain()
}

func (q *persistQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.order) == 0 {
			q.mu.Unlock()
			return
		}
		roomID := q.order[0]
		q.order = q.order[1:]
		job := q.pending[roomID]
		delete(q.pending, roomID)
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := q.p.PersistDiagram(ctx, roomID, job.state, job.author)
		cancel()
		if err != nil {
			q.log.Error("persist diagram failed", zap.String("room", roomID), zap.Error(err))
		}
	}
}
