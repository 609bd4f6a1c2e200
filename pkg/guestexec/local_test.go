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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLocalFailsOffDispatchThread(t *testing.T) {
	local := NewContextLocal[int]()

	_, err := local.Get()
	assert.True(t, errors.Is(err, ErrNoActiveContext))

	err = local.Set(7)
	assert.True(t, errors.Is(err, ErrNoActiveContext))

	err = local.Clear()
	assert.True(t, errors.Is(err, ErrNoActiveContext))
}

func TestContextLocalRoundTripsWithinATask(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	local := NewContextLocal[string]()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		if _, gerr := local.Get(); gerr != nil {
			return nil, gerr
		}
		if serr := local.Set("hello"); serr != nil {
			return nil, serr
		}
		return local.Get()
	})
	require.NoError(t, err)

	result, err := future.Get()
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestContextLocalSurvivesAcrossPinnedTasksOnSameHolder(t *testing.T) {
	exec, _ := newTestExecutor(t, 2)
	defer exec.ShutdownNow()

	local := NewContextLocal[int]()
	var pin PinnedContext

	first, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, perr := CurrentPin()
		if perr != nil {
			return nil, perr
		}
		pin = p
		return nil, local.Set(99)
	})
	require.NoError(t, err)
	_, err = first.Get()
	require.NoError(t, err)

	second, err := exec.SubmitPinned(context.Background(), pin, func(ctx context.Context) (any, error) {
		return local.Get()
	})
	require.NoError(t, err)
	result, err := second.Get()
	require.NoError(t, err)
	assert.Equal(t, 99, result)
}

func TestDistinctContextLocalsDoNotCollide(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	a := NewContextLocal[int]()
	b := NewContextLocal[int]()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		if err := a.Set(1); err != nil {
			return nil, err
		}
		if err := b.Set(2); err != nil {
			return nil, err
		}
		av, err := a.Get()
		if err != nil {
			return nil, err
		}
		bv, err := b.Get()
		if err != nil {
			return nil, err
		}
		return [2]int{av, bv}, nil
	})
	require.NoError(t, err)

	result, err := future.Get()
	require.NoError(t, err)
	assert.Equal(t, [2]int{1, 2}, result)
}

func TestContextLocalClear(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	local := NewContextLocal[int]()

	future, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		if err := local.Set(5); err != nil {
			return nil, err
		}
		if err := local.Clear(); err != nil {
			return nil, err
		}
		return local.Get()
	})
	require.NoError(t, err)

	result, err := future.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, result)
}
