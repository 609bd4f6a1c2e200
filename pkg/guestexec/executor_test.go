// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guestexec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is a ContextHandle that records how many times it has been
// entered/left/closed and can be told to fail on demand — standing in for
// a guest-language interpreter instance in tests.
type fakeHandle struct {
	id int64

	enters    int32
	leaves    int32
	closed    int32
	failEnter bool
}

func (h *fakeHandle) Enter() error {
	atomic.AddInt32(&h.enters, 1)
	if h.failEnter {
		return errors.New("enter refused")
	}
	return nil
}

func (h *fakeHandle) Leave() error {
	atomic.AddInt32(&h.leaves, 1)
	return nil
}

func (h *fakeHandle) Close(bool) error {
	atomic.AddInt32(&h.closed, 1)
	return nil
}

type fakeFactory struct {
	mu        sync.Mutex
	created   []*fakeHandle
	nextID    int64
	failNext  bool
	failEnter bool
}

func (f *fakeFactory) make() (ContextHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return nil, errors.New("factory refused")
	}
	f.nextID++
	h := &fakeHandle{id: f.nextID, failEnter: f.failEnter}
	f.created = append(f.created, h)
	return h, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestExecutor(t *testing.T, maxSize int) (*Executor, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	exec, err := New(Config{
		MaxContextPoolSize: maxSize,
		ContextFactory:     factory.make,
	})
	require.NoError(t, err)
	return exec, factory
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{MaxContextPoolSize: 0, ContextFactory: func() (ContextHandle, error) { return nil, nil }})
	assert.Error(t, err)

	_, err = New(Config{MaxContextPoolSize: 1})
	assert.Error(t, err)
}

func TestSubmitRunsTaskAndGrowsPool(t *testing.T) {
	exec, factory := newTestExecutor(t, 2)
	defer exec.ShutdownNow()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	result, err := future.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, factory.count())
}

func TestSubmitBoundedByMaxPoolSize(t *testing.T) {
	exec, _ := newTestExecutor(t, 2)
	defer exec.ShutdownNow()

	release := make(chan struct{})
	var running int32
	var maxObserved int32

	task := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	futures := make([]*Future, 0, 5)
	for i := 0; i < 5; i++ {
		f, err := exec.Submit(context.Background(), task)
		require.NoError(t, err)
		futures = append(futures, f)
	}

	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 2)

	close(release)
	for _, f := range futures {
		_, err := f.Get()
		require.NoError(t, err)
	}
}

func TestSubmitPinnedRunsOnSameHolder(t *testing.T) {
	exec, factory := newTestExecutor(t, 4)
	defer exec.ShutdownNow()

	var firstPin PinnedContext
	f1, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, perr := CurrentPin()
		if perr != nil {
			return nil, perr
		}
		firstPin = p
		return nil, nil
	})
	require.NoError(t, err)
	_, err = f1.Get()
	require.NoError(t, err)
	require.True(t, firstPin.Valid())

	var seenSameHolder bool
	f2, err := exec.SubmitPinned(context.Background(), firstPin, func(ctx context.Context) (any, error) {
		p, perr := CurrentPin()
		if perr != nil {
			return nil, perr
		}
		seenSameHolder = p == firstPin
		return nil, nil
	})
	require.NoError(t, err)
	_, err = f2.Get()
	require.NoError(t, err)
	assert.True(t, seenSameHolder)

	// Only one context should ever have been created: the pinned task
	// waited for the same holder rather than growing the pool.
	assert.Equal(t, 1, factory.count())
}

func TestConfinedTasksTakePriorityOverUnconfined(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	var pin PinnedContext
	block := make(chan struct{})
	f0, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, _ := CurrentPin()
		pin = p
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	// Give the first task time to claim the sole holder and record its pin.
	time.Sleep(50 * time.Millisecond)
	close(block)
	_, err = f0.Get()
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	record := func(name string) Task {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	// Submit an unconfined task first, then a confined one targeting the
	// only holder: the confined task must run before the unconfined one
	// once the holder becomes free, because confined dispatch is
	// evaluated before unconfined-from-pool in every drain pass.
	gate := make(chan struct{})
	holdingF, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-gate
		return nil, nil
	})
	require.NoError(t, err)

	uf, err := exec.Submit(context.Background(), record("unconfined"))
	require.NoError(t, err)
	pf, err := exec.SubmitPinned(context.Background(), pin, record("confined"))
	require.NoError(t, err)

	close(gate)
	_, err = holdingF.Get()
	require.NoError(t, err)
	_, err = uf.Get()
	require.NoError(t, err)
	_, err = pf.Get()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "confined", order[0])
}

func TestFactoryFailureForfeitsSlotAndFailsTask(t *testing.T) {
	exec, factory := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	factory.failNext = true
	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "unreachable", nil
	})
	require.NoError(t, err)

	_, err = future.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFactoryFailure))

	// The slot was consumed by the failed attempt; a second task cannot
	// grow the pool any further and will never be scheduled.
	second, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "also unreachable", nil
	})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, second.IsDone(), "second task should not have been dispatched: pool slot was forfeited")
}

func TestEnterFailureDiscardsHolder(t *testing.T) {
	factory := &fakeFactory{failEnter: true}
	exec, err := New(Config{MaxContextPoolSize: 1, ContextFactory: factory.make})
	require.NoError(t, err)
	defer exec.ShutdownNow()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "unreachable", nil
	})
	require.NoError(t, err)

	_, err = future.Get()
	require.Error(t, err)

	require.Len(t, factory.created, 1)
	assert.EqualValues(t, 1, factory.created[0].enters)
	assert.EqualValues(t, 0, factory.created[0].leaves)
}

func TestExecuteDirectBypassesContextAcquisition(t *testing.T) {
	exec, factory := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	future, err := exec.ExecuteDirect(context.Background(), func(ctx context.Context) (any, error) {
		if OnDispatchThread() {
			return nil, errors.New("should not be on a dispatch thread")
		}
		_, perr := CurrentPin()
		return nil, perr
	})
	require.NoError(t, err)

	_, err = future.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoActiveContext))
	assert.Equal(t, 0, factory.count())
}

func TestShutdownClosesContexts(t *testing.T) {
	exec, factory := newTestExecutor(t, 2)

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_, err = future.Get()
	require.NoError(t, err)

	exec.Shutdown()
	require.Len(t, factory.created, 1)
	assert.EqualValues(t, 1, factory.created[0].closed)

	_, err = exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.True(t, errors.Is(err, ErrExecutorShutdown))
}

func TestShutdownNowReturnsUnstartedTasks(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)

	gate := make(chan struct{})
	holdingFuture, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-gate
		return nil, nil
	})
	require.NoError(t, err)

	var futures []*Future
	for i := 0; i < 4; i++ {
		f, serr := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
			return i, nil
		})
		require.NoError(t, serr)
		futures = append(futures, f)
	}

	unstarted := exec.ShutdownNow()
	assert.Len(t, unstarted, 4)

	close(gate)
	_, err = holdingFuture.Get()
	require.NoError(t, err)

	for _, f := range futures {
		_, ferr := f.Get()
		assert.True(t, errors.Is(ferr, ErrShutdownInProgress))
	}
}

func TestShutdownNowClosesInFlightHolder(t *testing.T) {
	exec, factory := newTestExecutor(t, 1)

	gate := make(chan struct{})
	started := make(chan struct{})
	holdingFuture, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-gate
		return nil, nil
	})
	require.NoError(t, err)

	<-started // wait for the holder's context to exist before shutting down

	unstarted := exec.ShutdownNow()
	assert.Empty(t, unstarted)

	require.Len(t, factory.created, 1)
	assert.EqualValues(t, 1, factory.created[0].closed,
		"the in-flight holder must be closed with cancelRunning=true as soon as shutdown runs, not after the blocked task finally returns")

	close(gate)
	_, err = holdingFuture.Get()
	require.NoError(t, err)
}

func TestSubmitPinnedAfterShutdownFailsWithPinClosed(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, _ := CurrentPin()
		return p, nil
	})
	require.NoError(t, err)
	res, err := future.Get()
	require.NoError(t, err)
	pin := res.(PinnedContext)

	exec.Shutdown()

	pf, err := exec.SubmitPinned(context.Background(), pin, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	_, err = pf.Get()
	assert.True(t, errors.Is(err, ErrPinClosed))
}

func TestTaskPanicIsConvertedToError(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = future.Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAwaitTermination(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)
	_, err = future.Get()
	require.NoError(t, err)

	exec.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, exec.AwaitTermination(ctx))
	assert.True(t, exec.IsTerminated())
}
