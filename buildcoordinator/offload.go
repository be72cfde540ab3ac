package buildcoordinator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Offloader bounds how many synchronous, potentially-blocking operations
// may execute concurrently when invoked from the coordinator's
// cooperative call paths (the coordinator runs its sandbox backend
// commands through it), so slow operations can't starve every other
// in-flight request.
type Offloader struct {
	sem *semaphore.Weighted
}

// NewOffloader returns an Offloader permitting at most maxConcurrent
// simultaneous offloaded operations.
func NewOffloader(maxConcurrent int64) *Offloader {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Offloader{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run acquires a slot, runs fn, and releases the slot. It returns ctx's
// error without running fn if ctx is done before a slot frees up.
func (o *Offloader) Run(ctx context.Context, fn func() error) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.sem.Release(1)
	return fn()
}
