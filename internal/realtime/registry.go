package realtime

import (
	"context"
	"errors"
	"sync"
)

// Dialer builds an unconnected channel for a server URL.
type Dialer func(url string) Channel

// Registry hands out one connected channel per server URL. It is owned by
// the application root and lets sessions switch rooms over the same
// connection.
type Registry struct {
	mu    sync.Mutex
	dial  Dialer
	chans map[string]Channel
}

func NewRegistry(dial Dialer) *Registry {
	return &Registry{dial: dial, chans: make(map[string]Channel)}
}

// Get returns the channel for url, creating and connecting it on first use.
// A failed connect is not cached.
func (r *Registry) Get(ctx context.Context, url string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.chans[url]; ok {
		return ch, nil
	}
	ch := r.dial(url)
	if err := ch.Connect(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}
	r.chans[url] = ch
	return ch, nil
}

// Close closes every channel.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for url, ch := range r.chans {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.chans, url)
	}
	return errors.Join(errs...)
}
