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

package coop

import (
	"context"

	"github.com/go-arcade/guestexec/pkg/guestexec"
	"github.com/go-arcade/guestexec/pkg/parallel"
)

// Awaitable is satisfied by both *guestexec.Future (the Pinned/Unpinned
// result) and parallel.IFuture (the None result), so CoopScheduler.Spawn
// can return one handle type regardless of dispatch mode.
type Awaitable interface {
	Get() (any, error)
	IsDone() bool
}

// CoopScheduler dispatches tasks according to the DispatchMode carried by
// the submitting context.Context, bridging call graphs that thread a
// context.Context rather than a PinnedContext to a guestexec.Executor.
type CoopScheduler struct {
	executor *guestexec.Executor
}

// NewCoopScheduler wraps executor.
func NewCoopScheduler(executor *guestexec.Executor) *CoopScheduler {
	return &CoopScheduler{executor: executor}
}

// Spawn reads the dispatch mode off ctx (see WithPinnedContext, WithUnpinned,
// WithNone) and hands task to the executor accordingly. Contexts that never
// had a mode installed default to Unpinned.
func (s *CoopScheduler) Spawn(ctx context.Context, task guestexec.Task) (Awaitable, error) {
	switch m := modeFrom(ctx).(type) {
	case Pinned:
		return s.executor.SubmitPinned(ctx, m.P, task)
	case Unpinned:
		return s.executor.Submit(ctx, task)
	default:
		// None bypasses the executor's backing worker pool entirely —
		// spawned on a bare tracked goroutine the same way parallel.Go
		// runs any other context-free unit of work.
		return parallel.Go(ctx, task), nil
	}
}
