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

// PinnedContext is an opaque reference to the exact ContextHolder the
// calling goroutine is currently running on. It compares equal (==) to
// another PinnedContext iff both wrap the same holder, regardless of which
// task obtained it — this is pointer identity, not value equality on some
// derived id.
//
// A PinnedContext does not own the holder; it must not be retained past
// the lifetime of the executor it came from. Passing a stale PinnedContext
// to SubmitPinned after the executor has shut down fails with
// ErrPinClosed rather than corrupting state.
type PinnedContext struct {
	holder *ContextHolder
}

// CurrentPin returns the PinnedContext identifying the holder the calling
// goroutine is currently running a task on. Fails with ErrNoActiveContext
// if the goroutine is not inside a context-aware task.
func CurrentPin() (PinnedContext, error) {
	h := currentHolder()
	if h == nil {
		return PinnedContext{}, ErrNoActiveContext
	}
	return PinnedContext{holder: h}, nil
}

// Valid reports whether p wraps a holder at all (as opposed to the zero
// value of PinnedContext).
func (p PinnedContext) Valid() bool {
	return p.holder != nil
}

// OnDispatchThread reports whether the calling goroutine currently has an
// active holder, i.e. is running inside a context-aware task dispatched by
// some Executor. Equivalent to (*Executor).OnDispatchThread, provided as a
// package-level function since the active-holder registry is shared across
// every Executor in the process.
func OnDispatchThread() bool {
	return currentHolder() != nil
}
