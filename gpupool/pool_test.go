package gpupool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(2, nil)

	var active, maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxActive, int32(2))
	assert.True(t, p.AtFullCapacity())
}

func TestPool_ReleasesOnPanic(t *testing.T) {
	p := New(1, nil)

	func() {
		defer func() { recover() }()
		release, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer release()
		panic("boom")
	}()

	assert.True(t, p.AtFullCapacity())

	// A subsequent acquire must succeed immediately; if the panic had
	// leaked the permit this would block forever.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := p.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestPool_CancellationDoesNotLeak(t *testing.T) {
	p := New(1, nil)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	release()
	assert.True(t, p.AtFullCapacity())
}

// TestPool_NoLeaksProperty is a property test (spec.md §8 "No permit
// leaks" law): for any sequence of faulting/succeeding detector
// invocations against a pool of arbitrary capacity, the pool always
// returns to full capacity once every invocation has completed.
func TestPool_NoLeaksProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(rt, "capacity")
		n := rapid.IntRange(0, 40).Draw(rt, "n")

		p := New(capacity, nil)
		var wg sync.WaitGroup

		for i := 0; i < n; i++ {
			fail := rapid.Bool().Draw(rt, "fail")
			wg.Add(1)
			go func(fail bool) {
				defer wg.Done()
				_ = p.Do(context.Background(), func(ctx context.Context) error {
					if fail {
						return errors.New("simulated fault")
					}
					return nil
				})
			}(fail)
		}
		wg.Wait()

		if !p.AtFullCapacity() {
			rt.Fatalf("pool did not return to full capacity: inFlight=%d", p.InFlight())
		}
	})
}
