package sync

import (
	"context"
	gosync "sync"
)

// Scope is a process-lifetime execution context for durability-critical
// writes. Work submitted here runs on the scope's own context, so a caller
// whose context is cancelled mid-flight (a torn-down UI, a timed-out request)
// cannot abort a write that must complete.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewScope creates a scope tied to the process, not to any caller.
func NewScope() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{ctx: ctx, cancel: cancel}
}

// Do submits fn to the scope and waits for it to finish, returning fn's
// error. The explicit submit-then-await split is the point: fn runs under the
// scope's context, and keeps running to completion even if the submitting
// caller has long since gone away.
func (s *Scope) Do(fn func(ctx context.Context) error) error {
	errCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		errCh <- fn(s.ctx)
	}()
	return <-errCh
}

// Shutdown waits for in-flight work and then releases the scope. Only meant
// for orderly process exit.
func (s *Scope) Shutdown() {
	s.wg.Wait()
	s.cancel()
}
