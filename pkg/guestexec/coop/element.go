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

// Package coop bridges context.Context-carried dispatch intent to a
// guestexec.Executor, for callers whose call graph already threads a
// context.Context and would rather read dispatch mode off it than pass a
// PinnedContext through every signature.
package coop

import "github.com/go-arcade/guestexec/pkg/guestexec"

// DispatchMode selects how CoopScheduler.Spawn hands a task off. It is a
// closed tagged union (an unexported marker method, not an exported
// interface meant for external implementations) rather than a class
// hierarchy: exactly three shapes exist, matching guestexec's own
// confined/unconfined/direct task kinds.
type DispatchMode interface {
	dispatchMode()
}

// Pinned confines the task to the exact holder identified by P.
type Pinned struct {
	P guestexec.PinnedContext
}

func (Pinned) dispatchMode() {}

// Unpinned lets the task run on any free holder, growing the pool if one
// isn't available.
type Unpinned struct{}

func (Unpinned) dispatchMode() {}

// None bypasses context acquisition entirely. A task spawned under None
// never has a current holder: ContextLocal and CurrentPin both fail with
// ErrNoActiveContext if called from it.
type None struct{}

func (None) dispatchMode() {}
