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
	"sync"

	"github.com/google/uuid"
)

// localKey is the identity key used by ContextLocal[T]; every ContextLocal
// embeds a distinct *localKey so two locals never collide even if they
// happen to store the same Go type.
type localKey struct{}

// ContextHolder pairs a guest context with the per-context local storage
// that survives across tasks pinned to it. A holder is either free (sitting
// in the executor's pool) or in-use (removed from the pool while a task
// runs on it); the executor's lock is the only thing that ever moves a
// holder between those two states.
type ContextHolder struct {
	// id is only for diagnostics (log lines, metrics labels); pin/local
	// identity is always the *ContextHolder pointer itself, never this.
	id uuid.UUID

	// contextMu guards context/initialized: a holder is registered in
	// allHolders (and so reachable from a concurrent shutdown pass) before
	// its first task has created its context, so the worker goroutine
	// assigning context for the first time can race with closeHolder
	// reading it.
	contextMu   sync.Mutex
	context     ContextHandle
	initialized bool

	// closeOnce guards Close: a holder is registered in allHolders before
	// its first task runs, so a shutdown pass can race with the
	// late-close fallback in runPinned over the same holder.
	closeOnce sync.Once

	// locals is mutated only while this holder is in-use on the goroutine
	// doing the mutating (invariant 5 in the design notes), so no lock is
	// needed here beyond the happens-before edge the executor's mutex
	// already establishes when the holder changes hands.
	locals map[*localKey]any
}

func newHolder() *ContextHolder {
	return &ContextHolder{id: uuid.New(), locals: make(map[*localKey]any)}
}

func (h *ContextHolder) get(k *localKey) (any, bool) {
	v, ok := h.locals[k]
	return v, ok
}

func (h *ContextHolder) set(k *localKey, v any) {
	h.locals[k] = v
}

func (h *ContextHolder) clear(k *localKey) {
	delete(h.locals, k)
}

// getContext returns the holder's context handle, or nil if none has been
// created yet.
func (h *ContextHolder) getContext() ContextHandle {
	h.contextMu.Lock()
	defer h.contextMu.Unlock()
	return h.context
}

// setContext installs the holder's context handle the first time it is
// created, on the worker goroutine running the holder's first task.
func (h *ContextHolder) setContext(handle ContextHandle) {
	h.contextMu.Lock()
	defer h.contextMu.Unlock()
	h.context = handle
	h.initialized = true
}
