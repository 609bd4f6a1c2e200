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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-arcade/guestexec/pkg/log"
	"github.com/panjf2000/ants/v2"
)

// BackingWorkerPool is the external collaborator that gives the executor
// real OS-thread parallelism. It is deliberately narrow: the executor only
// ever needs to hand it non-blocking units of work and ask about its
// lifecycle.
type BackingWorkerPool interface {
	// Execute schedules fn to run. Returns an error if the pool refuses
	// (e.g. it is full in non-blocking mode, or already shut down).
	Execute(fn func()) error
	Shutdown()
	ShutdownNow()
	AwaitTermination(ctx context.Context) error
	IsShutdown() bool
	IsTerminated() bool
}

// antsWorkerPool is the default BackingWorkerPool, built on two
// panjf2000/ants pools — a primary one sized to the context pool capacity
// and a larger overflow one. Execute does not tell context-bound dispatch
// and ExecuteDirect tasks apart: every task goes to the primary pool first
// and to the overflow pool only when the primary one is full. Mirrors the
// General/K8s split in internal/pkg/worker.Pools from the teacher pack.
type antsWorkerPool struct {
	pooled *ants.Pool
	direct *ants.Pool

	// shuttingDown is read from Execute/IsShutdown/IsTerminated on
	// arbitrary goroutines while Shutdown/ShutdownNow write it from
	// whichever goroutine calls them — an atomic.Bool instead of a plain
	// bool.
	shuttingDown atomic.Bool
}

// directPoolFactor sizes the overflow ants pool relative to the primary
// one; Execute falls back to it when the primary pool is full.
const directPoolFactor = 4

// NewAntsWorkerPool builds the default BackingWorkerPool sized for a
// context pool of the given capacity.
func NewAntsWorkerPool(maxContextPoolSize int) (BackingWorkerPool, error) {
	if maxContextPoolSize <= 0 {
		return nil, errors.New("guestexec: maxContextPoolSize must be >= 1")
	}

	panicHandler := func(p any) {
		log.Errorf("guestexec: worker panic recovered: %v", p)
	}

	pooled, err := ants.NewPool(maxContextPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("guestexec: failed to create pooled worker pool: %w", err)
	}

	direct, err := ants.NewPool(maxContextPoolSize*directPoolFactor,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		pooled.Release()
		return nil, fmt.Errorf("guestexec: failed to create direct worker pool: %w", err)
	}

	return &antsWorkerPool{pooled: pooled, direct: direct}, nil
}

func (p *antsWorkerPool) Execute(fn func()) error {
	if p.shuttingDown.Load() {
		return &RejectedExecutionError{Cause: errors.New("pool is shutting down")}
	}
	if err := p.pooled.Submit(fn); err != nil {
		if err == ants.ErrPoolOverload {
			// fall back to the larger direct pool rather than rejecting
			// outright — context-bound dispatch is already serialized by
			// the executor lock, so at most maxContextPoolSize of these
			// run concurrently regardless of which ants pool runs them.
			if err2 := p.direct.Submit(fn); err2 == nil {
				return nil
			}
		}
		return &RejectedExecutionError{Cause: err}
	}
	return nil
}

func (p *antsWorkerPool) Shutdown() {
	p.shuttingDown.Store(true)
	p.pooled.Release()
	p.direct.Release()
}

func (p *antsWorkerPool) ShutdownNow() {
	p.shuttingDown.Store(true)
	p.pooled.Release()
	p.direct.Release()
}

func (p *antsWorkerPool) AwaitTermination(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.pooled.Running() == 0 && p.direct.Running() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *antsWorkerPool) IsShutdown() bool {
	return p.shuttingDown.Load()
}

func (p *antsWorkerPool) IsTerminated() bool {
	return p.shuttingDown.Load() && p.pooled.Running() == 0 && p.direct.Running() == 0
}
