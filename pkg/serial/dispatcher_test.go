package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/umlstudio/engine/pkg/errors"
)

func TestDispatcherSerializesExecution(t *testing.T) {
	d := New()
	defer d.Close()

	var executing int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Dispatch(func() error {
				if atomic.AddInt32(&executing, 1) != 1 {
					return errors.New("concurrent execution detected")
				}
				time.Sleep(50 * time.Microsecond)
				atomic.AddInt32(&executing, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestDispatcherPreservesOrder(t *testing.T) {
	d := New()

	var got []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, d.Post(func() { got = append(got, i) }))
	}
	d.Close()

	require.Len(t, got, 20)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestDispatcherPostFromInside(t *testing.T) {
	d := New()
	defer d.Close()

	inner := make(chan struct{})
	require.NoError(t, d.Dispatch(func() error {
		return d.Post(func() { close(inner) })
	}))

	select {
	case <-inner:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestDispatcherReturnsError(t *testing.T) {
	d := New()
	defer d.Close()

	boom := errors.New("boom")
	require.ErrorIs(t, d.Dispatch(func() error { return boom }), boom)
}

func TestDispatcherSurvivesPanic(t *testing.T) {
	d := New()
	defer d.Close()

	require.NoError(t, d.Post(func() { panic("bad handler") }))
	require.NoError(t, d.Dispatch(func() error { return nil }))
}

func TestDispatchReturnsErrorOnPanic(t *testing.T) {
	d := New()
	defer d.Close()

	res := make(chan error, 1)
	go func() {
		res <- d.Dispatch(func() error {
			var m map[string]int
			m["x"] = 1
			return nil
		})
	}()

	select {
	case err := <-res:
		require.Error(t, err)
		assert.True(t, appErr.IsCode(err, appErr.CodeInternal))
		assert.Contains(t, err.Error(), "panic")
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked after the function panicked")
	}

	require.NoError(t, d.Dispatch(func() error { return nil }), "dispatcher keeps running")
}

func TestDispatcherClose(t *testing.T) {
	d := New()
	require.NoError(t, d.Dispatch(func() error { return nil }))

	d.Close()
	d.Close()

	require.ErrorIs(t, d.Dispatch(func() error { return nil }), ErrClosed)
	require.ErrorIs(t, d.Post(func() {}), ErrClosed)
}
