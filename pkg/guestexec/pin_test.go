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

func TestCurrentPinFailsOffDispatchThread(t *testing.T) {
	_, err := CurrentPin()
	assert.True(t, errors.Is(err, ErrNoActiveContext))
	assert.False(t, OnDispatchThread())
}

func TestZeroPinnedContextIsInvalid(t *testing.T) {
	var p PinnedContext
	assert.False(t, p.Valid())
}

func TestPinIdentityAcrossTasksOnSameHolder(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)
	defer exec.ShutdownNow()

	var first, second PinnedContext

	f1, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, perr := CurrentPin()
		first = p
		return nil, perr
	})
	require.NoError(t, err)
	_, err = f1.Get()
	require.NoError(t, err)

	f2, err := exec.SubmitPinned(context.Background(), first, func(ctx context.Context) (any, error) {
		assert.True(t, OnDispatchThread())
		p, perr := CurrentPin()
		second = p
		return nil, perr
	})
	require.NoError(t, err)
	_, err = f2.Get()
	require.NoError(t, err)

	assert.True(t, first.Valid())
	assert.True(t, second.Valid())
	assert.Equal(t, first, second)
}

func TestPinFromDifferentHoldersAreDistinct(t *testing.T) {
	exec, _ := newTestExecutor(t, 2)
	defer exec.ShutdownNow()

	gateA := make(chan struct{})
	gateB := make(chan struct{})
	var pinA, pinB PinnedContext

	fa, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, _ := CurrentPin()
		pinA = p
		<-gateA
		return nil, nil
	})
	require.NoError(t, err)

	fb, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, _ := CurrentPin()
		pinB = p
		<-gateB
		return nil, nil
	})
	require.NoError(t, err)

	// Both tasks now hold their own holder concurrently (pool size 2), so
	// each recorded a distinct pin before either was released.
	close(gateA)
	close(gateB)
	_, err = fa.Get()
	require.NoError(t, err)
	_, err = fb.Get()
	require.NoError(t, err)

	assert.NotEqual(t, pinA, pinB)
}
