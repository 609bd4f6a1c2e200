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

	"github.com/timandy/routine"
)

// activeHolders tracks, per goroutine id, the ContextHolder that goroutine
// is currently running a task on. Bucketed by goroutine id the same way
// the teacher's goroutine-local request context works, so ContextLocal and
// PinnedContext.Current stay off context.Context entirely (the spec
// requires this state be invisible to task signatures).
const bucketsSize = 128

type holderBucket struct {
	mu   sync.RWMutex
	data map[int64]*ContextHolder
}

var activeHolders [bucketsSize]*holderBucket

func init() {
	for i := range activeHolders {
		activeHolders[i] = &holderBucket{data: make(map[int64]*ContextHolder)}
	}
}

func bucketFor(goid int64) *holderBucket {
	idx := goid % bucketsSize
	if idx < 0 {
		idx += bucketsSize
	}
	return activeHolders[idx]
}

// bindCurrentHolder records h as the active holder for the calling
// goroutine. Called once at the start of task execution.
func bindCurrentHolder(h *ContextHolder) {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.mu.Lock()
	b.data[goid] = h
	b.mu.Unlock()
}

// unbindCurrentHolder clears the active holder for the calling goroutine.
// Called once at the end of task execution, regardless of outcome.
func unbindCurrentHolder() {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.mu.Lock()
	delete(b.data, goid)
	b.mu.Unlock()
}

// currentHolder returns the holder the calling goroutine is currently
// running a task on, or nil if none.
func currentHolder() *ContextHolder {
	goid := routine.Goid()
	b := bucketFor(goid)
	b.mu.RLock()
	h := b.data[goid]
	b.mu.RUnlock()
	return h
}

// ContextLocal is an identity-keyed per-context slot. Two ContextLocal[T]
// values are always distinct keys, even if created with the same T and the
// same zero value, because each wraps its own *localKey.
type ContextLocal[T any] struct {
	key *localKey
}

// NewContextLocal creates a fresh, independent context-local slot.
func NewContextLocal[T any]() *ContextLocal[T] {
	return &ContextLocal[T]{key: &localKey{}}
}

// Get returns the value stored under this local in the calling goroutine's
// active holder. Returns ErrNoActiveContext if the goroutine is not
// currently running a context-aware task.
func (l *ContextLocal[T]) Get() (T, error) {
	var zero T
	h := currentHolder()
	if h == nil {
		return zero, ErrNoActiveContext
	}
	v, ok := h.get(l.key)
	if !ok {
		return zero, nil
	}
	return v.(T), nil
}

// Set stores v under this local in the calling goroutine's active holder.
func (l *ContextLocal[T]) Set(v T) error {
	h := currentHolder()
	if h == nil {
		return ErrNoActiveContext
	}
	h.set(l.key, v)
	return nil
}

// Clear removes this local's value from the calling goroutine's active
// holder.
func (l *ContextLocal[T]) Clear() error {
	h := currentHolder()
	if h == nil {
		return ErrNoActiveContext
	}
	h.clear(l.key)
	return nil
}
