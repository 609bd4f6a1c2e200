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

import "errors"

var (
	// ErrNoActiveContext is returned by ContextLocal.Get/Set/Clear and by
	// PinnedContext.Current when the calling goroutine has no active
	// holder (i.e. is not running inside a context-aware task).
	ErrNoActiveContext = errors.New("guestexec: no active context on this goroutine")

	// ErrExecutorShutdown is returned by Submit/ExecuteDirect once Shutdown
	// or ShutdownNow has been called. SubmitPinned instead returns a future
	// failed with ErrPinClosed.
	ErrExecutorShutdown = errors.New("guestexec: executor is shut down")

	// ErrPinClosed is the failure recorded on a confined task's future
	// when its pin refers to a holder that was closed by shutdown before
	// the task could dispatch.
	ErrPinClosed = errors.New("guestexec: pinned context was closed")

	// ErrFactoryFailure wraps a failure returned by the ContextFactory.
	// The task's error wraps both ErrFactoryFailure and the factory's own
	// error, so either can be matched with errors.Is or errors.As.
	ErrFactoryFailure = errors.New("guestexec: context factory failed")

	// ErrShutdownInProgress is the failure recorded on the future of any
	// task still queued (not yet dispatched) when ShutdownNow runs.
	ErrShutdownInProgress = errors.New("guestexec: shutdown in progress, task discarded")
)

// RejectedExecutionError is returned when the backing worker pool refuses
// to accept a dispatched unit of work.
type RejectedExecutionError struct {
	Cause error
}

func (e *RejectedExecutionError) Error() string {
	return "guestexec: backing worker pool rejected task: " + e.Cause.Error()
}

func (e *RejectedExecutionError) Unwrap() error {
	return e.Cause
}
