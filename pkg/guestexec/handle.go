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

// Package guestexec coordinates dispatch of tasks across a bounded pool of
// non-reentrant, stateful guest contexts (guest-language interpreter
// instances, or any other heavyweight resource that must not be entered by
// two goroutines at once).
package guestexec

// ContextHandle wraps a single guest execution context. Implementations are
// supplied by the caller; the executor never constructs one directly, it
// only calls enter/leave/close around the dynamic extent of a task.
//
// enter and leave must be paired on the same goroutine: a context must not
// be entered on thread A while it is still entered (not yet left) on
// thread B.
type ContextHandle interface {
	// Enter marks the context as entered on the calling goroutine. Must be
	// followed by Leave on the same goroutine before any other goroutine
	// may enter it.
	Enter() error
	// Leave reverses Enter.
	Leave() error
	// Close disposes of the context. If cancelRunning is true, any task
	// currently running against this context should be interrupted;
	// otherwise behavior after Close is undefined.
	Close(cancelRunning bool) error
}

// ContextFactory produces a new ContextHandle on demand. Called on the
// worker goroutine that first uses a given holder, never under the
// executor lock.
type ContextFactory func() (ContextHandle, error)
