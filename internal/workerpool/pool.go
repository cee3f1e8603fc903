// Package workerpool runs submitted tasks on a fixed number of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("workerpool: queue full")
	ErrClosed    = errors.New("workerpool: closed")
)

// Task is one unit of work. ctx is cancelled when the pool shuts down or the
// task timeout elapses.
type Task func(ctx context.Context) error

// Handle tracks a submitted task.
type Handle struct {
	Name string

	done chan struct{}
	err  error
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the task error once Done is closed.
func (h *Handle) Result() error {
	<-h.done
	return h.err
}

// Wait blocks until the task finishes or ctx is done. A ctx error does not
// stop the task.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

type job struct {
	task   Task
	handle *Handle
}

type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Logger      zerolog.Logger
}

// Pool is a bounded worker pool. Tasks run under the pool's own context, not
// the submitter's, so a run outlives the HTTP request that started it.
type Pool struct {
	jobs    chan job
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts opts.Workers goroutines.
func New(opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	queue := opts.QueueSize
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:    make(chan job, queue),
		timeout: opts.TaskTimeout,
		logger:  opts.Logger.With().Str("component", "workerpool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(name string, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	h := &Handle{Name: name, done: make(chan struct{})}
	select {
	case p.jobs <- job{task: task, handle: h}:
		return h, nil
	default:
		return nil, ErrQueueFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.handle.finish(p.run(j))
	}
}

func (p *Pool) run(j job) (err error) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("task", j.handle.Name).Interface("panic", r).Msg("task panicked")
			err = fmt.Errorf("workerpool: task %s panicked: %v", j.handle.Name, r)
		}
	}()
	return j.task(ctx)
}

// Close stops accepting tasks and waits for queued and running tasks. When ctx
// ends first, running tasks are cancelled and Close returns ctx.Err() once
// they have returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
