package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/program-enrollment-api/pkg/errors"
	"github.com/noah-isme/program-enrollment-api/pkg/jobs"
)

type jobSubmitter interface {
	Submit(ctx context.Context, job jobs.Job) error
}

// workflowScope owns every outstanding operation of one workflow: pooled jobs run under its
// context and their results are delivered through its dispatcher. Closing it cancels both.
type workflowScope struct {
	ctx          context.Context
	cancel       context.CancelFunc
	dispatcher   *Dispatcher
	pool         jobSubmitter
	fetchTimeout time.Duration
	closeOnce    sync.Once
}

func newWorkflowScope(parent context.Context, pool jobSubmitter, fetchTimeout time.Duration) *workflowScope {
	ctx, cancel := context.WithCancel(parent)
	s := &workflowScope{
		ctx:          ctx,
		cancel:       cancel,
		dispatcher:   NewDispatcher(),
		pool:         pool,
		fetchTimeout: fetchTimeout,
	}
	go s.dispatcher.Run(ctx)
	return s
}

// post delivers fn to the dispatcher goroutine.
func (s *workflowScope) post(fn func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	return s.dispatcher.Post(fn)
}

// submit runs fn on the pool under the scope context without waiting for it.
func (s *workflowScope) submit(jobType string, fn func(context.Context) error) error {
	return submitJob(s.ctx, s.pool, s.fetchTimeout, jobType, fn)
}

// call runs fn on the dispatcher and waits for it to finish.
func (s *workflowScope) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		fn()
		close(finished)
	}) {
		return appErrors.ErrWorkflowClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.dispatcher.Done():
		select {
		case <-finished:
			return nil
		default:
			return appErrors.ErrWorkflowClosed
		}
	}
}

// close cancels the scope and waits for the dispatcher to stop. Safe to call repeatedly.
func (s *workflowScope) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.dispatcher.Done()
	})
}

func (s *workflowScope) closed() bool {
	return s.ctx.Err() != nil
}

func submitJob(ctx context.Context, pool jobSubmitter, timeout time.Duration, jobType string, fn func(context.Context) error) error {
	return pool.Submit(ctx, jobs.Job{
		ID:   uuid.NewString(),
		Type: jobType,
		Run: func(jobCtx context.Context) error {
			if timeout > 0 {
				var cancel context.CancelFunc
				jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
				defer cancel()
			}
			return fn(jobCtx)
		},
	})
}

// awaitOnPool runs fetch on the pool and blocks the caller until it returns or ctx ends.
func awaitOnPool[T any](ctx context.Context, pool jobSubmitter, timeout time.Duration, jobType string, fetch func(context.Context) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	results := make(chan result, 1)
	var zero T
	err := submitJob(ctx, pool, timeout, jobType, func(jobCtx context.Context) error {
		value, err := fetch(jobCtx)
		results <- result{value: value, err: err}
		return err
	})
	if err != nil {
		return zero, err
	}
	select {
	case r := <-results:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
