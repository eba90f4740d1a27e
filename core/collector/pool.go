package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"vdi-inventory/core/identity"
)

// Status is the terminal state of a submitted task.
type Status string

const (
	// StatusCompleted means the work function returned a result in time.
	StatusCompleted Status = "completed"
	// StatusTimedOut means the task exceeded the per-task deadline and its
	// slot was handed to the next queued task. The remote call may still be
	// running on the far end; its result is discarded.
	StatusTimedOut Status = "timed_out"
	// StatusFailed means the work function returned an error.
	StatusFailed Status = "failed"
)

// WorkFunc fetches one device's data. It must honor ctx: when the per-task
// deadline passes the pool stops waiting, whether or not the function
// returns.
type WorkFunc[R any] func(ctx context.Context) (R, error)

// Outcome is the settled result of one submission.
type Outcome[R any] struct {
	Key     identity.Key
	Status  Status
	Result  R
	Err     error
	Elapsed time.Duration
}

// Pool runs submitted work functions across a fixed number of concurrent
// slots, each invocation under its own deadline. A slot is occupied from the
// moment a task starts until it completes or its deadline elapses; a hung
// remote call therefore costs at most one deadline of scheduling time.
//
// There is no retry. A TimedOut or Failed outcome is terminal for that
// submission; callers resubmit explicitly if they want another attempt.
type Pool[R any] struct {
	maxConcurrency int
	taskTimeout    time.Duration
	log            *zap.Logger

	mu      sync.Mutex
	queue   []poolTask[R]
	drained bool
}

type poolTask[R any] struct {
	key identity.Key
	fn  WorkFunc[R]
}

// New creates a pool. maxConcurrency and taskTimeout fall back to the config
// defaults when zero or negative.
func New[R any](maxConcurrency int, taskTimeout time.Duration, log *zap.Logger) *Pool[R] {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool[R]{
		maxConcurrency: maxConcurrency,
		taskTimeout:    taskTimeout,
		log:            log,
	}
}

// Submit enqueues work for one device. Submissions after Drain are ignored.
func (p *Pool[R]) Submit(key identity.Key, fn WorkFunc[R]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drained {
		p.log.Warn("Submission after drain ignored", zap.String("device", key.String()))
		return
	}
	p.queue = append(p.queue, poolTask[R]{key: key, fn: fn})
}

// Drain runs everything submitted so far and blocks until every task has
// settled. It returns one outcome per submission, keyed by the canonical
// device key. Cancelling ctx abandons tasks that have not started yet; they
// settle as Failed with the context error.
func (p *Pool[R]) Drain(ctx context.Context) map[string]Outcome[R] {
	p.mu.Lock()
	tasks := p.queue
	p.queue = nil
	p.drained = true
	p.mu.Unlock()

	outcomes := make(map[string]Outcome[R], len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	workers := p.maxConcurrency
	if len(tasks) < workers {
		workers = len(tasks)
	}

	taskCh := make(chan poolTask[R])
	resultCh := make(chan Outcome[R], len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				resultCh <- p.run(ctx, t)
			}
		}()
	}

	// Feed tasks; once the batch context dies, remaining tasks settle
	// immediately without occupying a slot.
	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				resultCh <- Outcome[R]{Key: t.key, Status: StatusFailed, Err: ctx.Err()}
			}
		}
	}()

	wg.Wait()
	close(resultCh)

	for o := range resultCh {
		outcomes[o.Key.String()] = o
	}
	return outcomes
}

// run executes one task under its own deadline. The work function runs in a
// nested goroutine so the slot can be reclaimed when the deadline elapses
// even if the remote call never returns; the buffered channel lets an
// abandoned call finish without leaking its goroutine.
func (p *Pool[R]) run(ctx context.Context, t poolTask[R]) Outcome[R] {
	taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	type reply struct {
		result R
		err    error
	}
	done := make(chan reply, 1)
	started := time.Now()

	go func() {
		r, err := t.fn(taskCtx)
		done <- reply{result: r, err: err}
	}()

	select {
	case rep := <-done:
		elapsed := time.Since(started)
		if rep.err != nil {
			if errors.Is(rep.err, context.DeadlineExceeded) {
				return Outcome[R]{Key: t.key, Status: StatusTimedOut, Err: rep.err, Elapsed: elapsed}
			}
			return Outcome[R]{Key: t.key, Status: StatusFailed, Err: rep.err, Elapsed: elapsed}
		}
		return Outcome[R]{Key: t.key, Status: StatusCompleted, Result: rep.result, Elapsed: elapsed}

	case <-taskCtx.Done():
		elapsed := time.Since(started)
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			p.log.Debug("Task abandoned on deadline",
				zap.String("device", t.key.String()),
				zap.Duration("elapsed", elapsed),
			)
			return Outcome[R]{Key: t.key, Status: StatusTimedOut, Err: taskCtx.Err(), Elapsed: elapsed}
		}
		return Outcome[R]{Key: t.key, Status: StatusFailed, Err: taskCtx.Err(), Elapsed: elapsed}
	}
}

// Tally counts outcomes by status.
func Tally[R any](outcomes map[string]Outcome[R]) (completed, timedOut, failed int) {
	for _, o := range outcomes {
		switch o.Status {
		case StatusCompleted:
			completed++
		case StatusTimedOut:
			timedOut++
		case StatusFailed:
			failed++
		}
	}
	return completed, timedOut, failed
}
