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
)

type modeKey struct{}

// WithPinnedContext installs pin as the dispatch mode for ctx and anything
// spawned through a CoopScheduler using a descendant of ctx, until
// overridden by a nested WithPinnedContext/WithUnpinned/WithNone.
func WithPinnedContext(ctx context.Context, pin guestexec.PinnedContext) context.Context {
	return context.WithValue(ctx, modeKey{}, Pinned{P: pin})
}

// WithUnpinned marks ctx (and its descendants) for unconfined dispatch.
func WithUnpinned(ctx context.Context) context.Context {
	return context.WithValue(ctx, modeKey{}, Unpinned{})
}

// WithNone marks ctx (and its descendants) for direct dispatch, bypassing
// context acquisition.
func WithNone(ctx context.Context) context.Context {
	return context.WithValue(ctx, modeKey{}, None{})
}

// modeFrom reads the dispatch mode carried by ctx, defaulting to Unpinned
// when none was ever installed.
func modeFrom(ctx context.Context) DispatchMode {
	if m, ok := ctx.Value(modeKey{}).(DispatchMode); ok {
		return m
	}
	return Unpinned{}
}
