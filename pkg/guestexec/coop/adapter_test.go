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
	"errors"
	"testing"

	"github.com/go-arcade/guestexec/pkg/guestexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{}

func (fakeHandle) Enter() error     { return nil }
func (fakeHandle) Leave() error     { return nil }
func (fakeHandle) Close(bool) error { return nil }

func newTestExecutor(t *testing.T, maxSize int) *guestexec.Executor {
	t.Helper()
	exec, err := guestexec.New(guestexec.Config{
		MaxContextPoolSize: maxSize,
		ContextFactory:     func() (guestexec.ContextHandle, error) { return fakeHandle{}, nil },
	})
	require.NoError(t, err)
	return exec
}

func TestSpawnDefaultsToUnpinned(t *testing.T) {
	exec := newTestExecutor(t, 1)
	defer exec.ShutdownNow()
	sched := NewCoopScheduler(exec)

	awaitable, err := sched.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		if !guestexec.OnDispatchThread() {
			return nil, errors.New("should be running confined through the executor")
		}
		return "ran", nil
	})
	require.NoError(t, err)

	result, err := awaitable.Get()
	require.NoError(t, err)
	assert.Equal(t, "ran", result)
}

func TestSpawnUnpinnedUsesExecutor(t *testing.T) {
	exec := newTestExecutor(t, 1)
	defer exec.ShutdownNow()
	sched := NewCoopScheduler(exec)

	ctx := WithUnpinned(context.Background())
	awaitable, err := sched.Spawn(ctx, func(ctx context.Context) (any, error) {
		return guestexec.OnDispatchThread(), nil
	})
	require.NoError(t, err)

	result, err := awaitable.Get()
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestSpawnPinnedRunsOnPinnedHolder(t *testing.T) {
	exec := newTestExecutor(t, 2)
	defer exec.ShutdownNow()
	sched := NewCoopScheduler(exec)

	unpinned := WithUnpinned(context.Background())
	first, err := sched.Spawn(unpinned, func(ctx context.Context) (any, error) {
		return guestexec.CurrentPin()
	})
	require.NoError(t, err)
	res, err := first.Get()
	require.NoError(t, err)
	pin := res.(guestexec.PinnedContext)

	pinnedCtx := WithPinnedContext(context.Background(), pin)
	second, err := sched.Spawn(pinnedCtx, func(ctx context.Context) (any, error) {
		return guestexec.CurrentPin()
	})
	require.NoError(t, err)
	res2, err := second.Get()
	require.NoError(t, err)
	assert.Equal(t, pin, res2.(guestexec.PinnedContext))
}
