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
	"fmt"
	"sync"

	"github.com/go-arcade/guestexec/pkg/log"
	"github.com/go-arcade/guestexec/pkg/shutdown"
)

// Config configures a new Executor.
type Config struct {
	// MaxContextPoolSize bounds the number of guest contexts the executor
	// will ever create. Required, must be >= 1.
	MaxContextPoolSize int

	// BackingWorkerPool provides raw goroutine parallelism. If nil, a
	// default ants-backed pool sized to MaxContextPoolSize is created and
	// owned by the Executor (closed on Shutdown/ShutdownNow).
	BackingWorkerPool BackingWorkerPool

	// ContextFactory produces a new ContextHandle on demand. Required.
	ContextFactory ContextFactory

	// Metrics is an optional sink; if nil, metrics are not recorded.
	Metrics *Metrics
}

// Executor dispatches tasks onto a bounded pool of ContextHolder instances.
// A single mutex guards all queue and pool bookkeeping; the work itself
// always runs outside that lock, on the backing worker pool.
type Executor struct {
	mu sync.Mutex

	factory ContextFactory
	backing BackingWorkerPool
	metrics *Metrics

	maxPoolSize int
	pool        []*ContextHolder // free holders, LIFO (end = most recently returned)
	poolSize    int              // holders ever reserved (free + in-use)
	allHolders  []*ContextHolder // every holder this executor has ever created, for shutdown

	pendingUnconfined    taskFIFO
	pendingConfined      map[*ContextHolder]*taskFIFO
	pendingConfinedCount int

	shutdownMgr *shutdown.Manager
	ownsBacking bool
}

// New constructs an Executor from cfg.
func New(cfg Config) (*Executor, error) {
	if cfg.MaxContextPoolSize < 1 {
		return nil, fmt.Errorf("guestexec: MaxContextPoolSize must be >= 1, got %d", cfg.MaxContextPoolSize)
	}
	if cfg.ContextFactory == nil {
		return nil, fmt.Errorf("guestexec: ContextFactory is required")
	}

	backing := cfg.BackingWorkerPool
	ownsBacking := false
	if backing == nil {
		var err error
		backing, err = NewAntsWorkerPool(cfg.MaxContextPoolSize)
		if err != nil {
			return nil, err
		}
		ownsBacking = true
	}

	return &Executor{
		factory:         cfg.ContextFactory,
		backing:         backing,
		metrics:         cfg.Metrics,
		maxPoolSize:     cfg.MaxContextPoolSize,
		pendingConfined: make(map[*ContextHolder]*taskFIFO),
		shutdownMgr:     shutdown.NewManager(),
		ownsBacking:     ownsBacking,
	}, nil
}

// Submit schedules an unconfined task: it may run on any free holder.
func (e *Executor) Submit(ctx context.Context, task Task) (*Future, error) {
	if task == nil {
		return nil, fmt.Errorf("guestexec: task must not be nil")
	}

	e.mu.Lock()
	if e.shutdownMgr.IsShuttingDown() {
		e.mu.Unlock()
		return nil, ErrExecutorShutdown
	}

	future, taskCtx := newFuture(ctx)
	st := &submittedTask{fn: task, future: future, ctx: taskCtx}
	e.pendingUnconfined.push(st)
	e.recordQueueDepthLocked()
	e.drain()
	e.mu.Unlock()

	return future, nil
}

// SubmitPinned schedules a confined task: it runs only on the holder
// identified by pin, after any tasks already queued for that holder.
func (e *Executor) SubmitPinned(ctx context.Context, pin PinnedContext, task Task) (*Future, error) {
	if task == nil {
		return nil, fmt.Errorf("guestexec: task must not be nil")
	}
	if !pin.Valid() {
		return nil, fmt.Errorf("guestexec: pin is not valid")
	}

	e.mu.Lock()
	future, taskCtx := newFuture(ctx)

	if e.shutdownMgr.IsShuttingDown() {
		e.mu.Unlock()
		future.complete(nil, ErrPinClosed)
		return future, nil
	}

	st := &submittedTask{fn: task, future: future, ctx: taskCtx, pinHolder: pin.holder}
	q, ok := e.pendingConfined[pin.holder]
	if !ok {
		q = &taskFIFO{}
		e.pendingConfined[pin.holder] = q
	}
	q.push(st)
	e.pendingConfinedCount++
	e.recordQueueDepthLocked()
	e.drain()
	e.mu.Unlock()

	return future, nil
}

// ExecuteDirect schedules a task that bypasses context acquisition
// entirely: it runs directly on the backing worker pool with no access to
// ContextLocal or CurrentPin.
func (e *Executor) ExecuteDirect(ctx context.Context, task Task) (*Future, error) {
	if task == nil {
		return nil, fmt.Errorf("guestexec: task must not be nil")
	}

	e.mu.Lock()
	if e.shutdownMgr.IsShuttingDown() {
		e.mu.Unlock()
		return nil, ErrExecutorShutdown
	}
	e.mu.Unlock()

	future, taskCtx := newFuture(ctx)
	err := e.backing.Execute(func() {
		e.runDirect(task, taskCtx, future)
	})
	if err != nil {
		future.complete(nil, err)
		return future, nil
	}
	return future, nil
}

func (e *Executor) runDirect(task Task, ctx context.Context, future *Future) {
	result, err := e.invoke(task, ctx)
	if e.metrics != nil {
		e.metrics.recordCompletion(err)
	}
	future.complete(result, err)
}

// invoke runs fn, converting any panic into an error instead of letting it
// escape the worker goroutine.
func (e *Executor) invoke(fn Task, ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guestexec: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// drain is the scheduling pass described in the design: confined tasks
// first, then unconfined tasks from the free pool, then pool growth for
// any unconfined tasks still waiting. Must be called with e.mu held, and
// never blocks.
func (e *Executor) drain() {
	e.confinedFirstPass()
	e.unconfinedFromPoolPass()
	e.growPass()
	e.recordQueueDepthLocked()
}

func (e *Executor) confinedFirstPass() {
	if len(e.pool) == 0 || e.pendingConfinedCount == 0 {
		return
	}
	// Rebuild e.pool in a fresh backing array from the holders left unused;
	// a holder whose dispatch is rejected is appended back by dispatchLocked.
	candidates := e.pool
	e.pool = make([]*ContextHolder, 0, len(candidates))
	for _, h := range candidates {
		q, ok := e.pendingConfined[h]
		if ok && !q.empty() {
			t := q.pop()
			e.pendingConfinedCount--
			if q.empty() {
				delete(e.pendingConfined, h)
			}
			e.dispatchLocked(t, h)
			continue
		}
		e.pool = append(e.pool, h)
	}
}

func (e *Executor) unconfinedFromPoolPass() {
	for len(e.pool) > 0 && !e.pendingUnconfined.empty() {
		h := e.pool[len(e.pool)-1]
		e.pool = e.pool[:len(e.pool)-1]
		t := e.pendingUnconfined.pop()
		e.dispatchLocked(t, h)
	}
}

func (e *Executor) growPass() {
	for !e.pendingUnconfined.empty() && e.poolSize < e.maxPoolSize {
		e.poolSize++
		t := e.pendingUnconfined.pop()
		e.dispatchLocked(t, nil)
	}
}

// dispatchLocked hands (t, h) to the backing worker pool. Must be called
// with e.mu held; the submission to the backing pool itself is
// non-blocking, so the lock is never held across blocking work.
func (e *Executor) dispatchLocked(t *submittedTask, h *ContextHolder) {
	grew := h == nil
	err := e.backing.Execute(func() {
		e.runPinned(t, h)
	})
	if err != nil {
		// Submission itself was rejected: undo any bookkeeping that
		// assumed the dispatch would happen and fail the task.
		if h != nil {
			e.pool = append(e.pool, h)
		} else if grew {
			e.poolSize--
		}
		t.future.complete(nil, err)
		return
	}
	if e.metrics != nil {
		e.metrics.recordDispatch()
	}
}

// runPinned executes (t, holder) on a worker goroutine — §4.1.2 of the
// design. holder is nil exactly when this task caused pool growth; a fresh
// ContextHolder is created for it here, on the worker, never under the
// executor lock.
func (e *Executor) runPinned(t *submittedTask, holder *ContextHolder) {
	fresh := holder == nil
	if fresh {
		holder = newHolder()
		// Register before the task body runs: Shutdown/ShutdownNow snapshot
		// allHolders to decide what to close with cancelRunning=true, and a
		// holder must be visible to that snapshot for the whole time its
		// first task could be in flight, not just after it returns.
		e.mu.Lock()
		e.allHolders = append(e.allHolders, holder)
		e.mu.Unlock()
	}

	bindCurrentHolder(holder)
	defer unbindCurrentHolder()

	factoryFailed := false
	enterFailed := false
	var result any
	var taskErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				taskErr = fmt.Errorf("guestexec: task panicked: %v", r)
			}
		}()

		handle := holder.getContext()
		if handle == nil {
			ctxHandle, ferr := e.factory()
			if ferr != nil {
				factoryFailed = true
				taskErr = fmt.Errorf("%w: %w", ErrFactoryFailure, ferr)
				return
			}
			holder.setContext(ctxHandle)
			handle = ctxHandle
		}

		if err := handle.Enter(); err != nil {
			enterFailed = true
			taskErr = fmt.Errorf("guestexec: context enter failed: %w", err)
			return
		}
		defer func() {
			if lerr := handle.Leave(); lerr != nil {
				log.Warnf("guestexec: context leave failed: %v", lerr)
			}
		}()

		result, taskErr = t.fn(t.ctx)
	}()

	usable := !factoryFailed && !enterFailed

	e.mu.Lock()
	shuttingDown := e.shutdownMgr.IsShuttingDown()
	if usable {
		if !shuttingDown {
			e.pool = append(e.pool, holder)
		}
	} else {
		// Factory or Enter failed: the reserved pool slot is forfeit
		// rather than decremented (see design notes, open question 1/2)
		// — a failed factory may be nondeterministic, and a holder whose
		// Enter failed is not safe to hand to another task.
		log.Errorf("guestexec: holder %s unusable (factoryFailed=%v enterFailed=%v), forfeiting slot", holder.id, factoryFailed, enterFailed)
	}
	// Once shutting down this holder never returns to the pool, so confined
	// tasks still queued for it can never dispatch: fail them with ErrPinClosed.
	var orphaned []*submittedTask
	if shuttingDown {
		if q, ok := e.pendingConfined[holder]; ok {
			orphaned = q.drainAll()
			e.pendingConfinedCount -= len(orphaned)
			delete(e.pendingConfined, holder)
		}
	}
	e.drain()
	e.mu.Unlock()

	for _, st := range orphaned {
		st.future.complete(nil, ErrPinClosed)
	}

	if usable && shuttingDown {
		// Shutdown's close pass may have already run (or be running
		// concurrently) against this same holder via allHolders;
		// closeHolder's sync.Once keeps this idempotent either way.
		e.closeHolder(holder)
	}

	if e.metrics != nil {
		e.metrics.recordCompletion(taskErr)
	}
	t.future.complete(result, taskErr)
}

// Shutdown refuses new submissions and closes every pooled or confined
// context with cancelRunning=true. It does not wait for running tasks.
func (e *Executor) Shutdown() {
	if !e.shutdownMgr.Shutdown() {
		return
	}

	e.mu.Lock()
	holders := append([]*ContextHolder(nil), e.allHolders...)
	e.mu.Unlock()

	e.closeHolders(holders)

	if e.ownsBacking {
		e.backing.Shutdown()
	}
}

// ShutdownNow does everything Shutdown does, and additionally drains and
// returns every task that had not yet been dispatched.
func (e *Executor) ShutdownNow() []Task {
	if !e.shutdownMgr.Shutdown() {
		return nil
	}

	e.mu.Lock()
	holders := append([]*ContextHolder(nil), e.allHolders...)

	unstarted := e.pendingUnconfined.drainAll()
	for h, q := range e.pendingConfined {
		unstarted = append(unstarted, q.drainAll()...)
		delete(e.pendingConfined, h)
	}
	e.pendingConfinedCount = 0
	e.mu.Unlock()

	tasks := make([]Task, 0, len(unstarted))
	for _, st := range unstarted {
		st.future.complete(nil, ErrShutdownInProgress)
		tasks = append(tasks, st.fn)
	}

	e.closeHolders(holders)

	if e.ownsBacking {
		e.backing.ShutdownNow()
	}

	return tasks
}

func (e *Executor) closeHolders(holders []*ContextHolder) {
	for _, h := range holders {
		e.closeHolder(h)
	}
}

// closeHolder closes h's context with cancelRunning=true, at most once. A
// holder registered in allHolders before its first task completes can be
// closed from here (a shutdown pass) and from runPinned's late-close
// fallback; closeOnce makes whichever happens first win.
func (e *Executor) closeHolder(h *ContextHolder) {
	handle := h.getContext()
	if handle == nil {
		return
	}
	h.closeOnce.Do(func() {
		if err := handle.Close(true); err != nil {
			log.Warnf("guestexec: error closing context %s during shutdown: %v", h.id, err)
		}
	})
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (e *Executor) IsShutdown() bool {
	return e.shutdownMgr.IsShuttingDown()
}

// IsTerminated reports whether the executor is shut down and its backing
// worker pool has finished running every dispatched task.
func (e *Executor) IsTerminated() bool {
	if !e.IsShutdown() {
		return false
	}
	return e.backing.IsTerminated()
}

// AwaitTermination blocks until IsTerminated() or ctx is done.
func (e *Executor) AwaitTermination(ctx context.Context) error {
	return e.backing.AwaitTermination(ctx)
}

// OnDispatchThread reports whether the calling goroutine currently has an
// active holder, i.e. is running inside a context-aware task.
func (e *Executor) OnDispatchThread() bool {
	return currentHolder() != nil
}

func (e *Executor) recordQueueDepthLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.setPoolSize(e.poolSize, e.maxPoolSize)
	e.metrics.setQueueDepth(e.pendingUnconfined.len() + e.pendingConfinedCount)
}
