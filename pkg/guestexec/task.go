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

import "context"

// Task is the unit of work submitted to the executor. It receives the
// context the caller submitted with and returns an arbitrary result.
type Task func(ctx context.Context) (any, error)

// Future mirrors parallel.IFuture: a handle to a task's eventual result.
// Cancel is a best-effort signal only: it cancels the context handed to the
// task and makes Get return at once, but the executor neither removes a
// queued task nor interrupts a running one.
type Future struct {
	done   chan struct{}
	cancel context.CancelFunc
	ctx    context.Context

	result any
	err    error
}

func newFuture(ctx context.Context) (*Future, context.Context) {
	taskCtx, cancel := context.WithCancel(ctx)
	return &Future{
		done:   make(chan struct{}),
		cancel: cancel,
		ctx:    taskCtx,
	}, taskCtx
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
	f.cancel()
}

// Get blocks until the task completes (or its context is cancelled) and
// returns its result.
func (f *Future) Get() (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-f.ctx.Done():
		select {
		case <-f.done:
			return f.result, f.err
		default:
		}
		return nil, f.ctx.Err()
	}
}

// IsDone reports whether the task has completed or its context has ended.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	case <-f.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel requests cancellation of the task's context. The task itself still
// runs (or keeps running) unless it checks that context.
func (f *Future) Cancel() {
	f.cancel()
}

// submittedTask bundles a Task with its bookkeeping: the future the
// submitter is waiting on, the pin it was submitted with (nil for
// unconfined), and the context it was submitted under.
type submittedTask struct {
	fn     Task
	future *Future
	ctx    context.Context
	// pinHolder is set for confined tasks; it identifies the exact holder
	// this task must run on.
	pinHolder *ContextHolder
}
