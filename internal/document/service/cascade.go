package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docspace/pkg/logger"
)

var ErrQueueClosed = errors.New("cascade queue closed")

// Cascade tracks one background update of a subtree's archived flag.
// The root document itself is patched before the cascade is queued.
type Cascade struct {
	RootID   string
	Archived bool

	done     chan struct{}
	affected []string
	err      error
}

func newCascade(rootID string, archived bool) *Cascade {
	return &Cascade{RootID: rootID, Archived: archived, done: make(chan struct{})}
}

// Done is closed once every descendant has been visited or the cascade failed.
func (c *Cascade) Done() <-chan struct{} { return c.done }

// Wait blocks until the cascade finishes or ctx ends.
func (c *Cascade) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is only meaningful after Done is closed.
func (c *Cascade) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Affected lists the descendants updated so far; stable after Done.
func (c *Cascade) Affected() []string {
	select {
	case <-c.done:
		return c.affected
	default:
		return nil
	}
}

// CascadeQueue applies cascades one at a time in submission order, so an
// archive followed by a restore of the same subtree lands in that order.
type CascadeQueue struct {
	repo       Repository
	jobs       chan *Cascade
	onComplete func(*Cascade)

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewCascadeQueue(repo Repository, size int, onComplete func(*Cascade)) *CascadeQueue {
	if size < 1 {
		size = 1
	}
	return &CascadeQueue{
		repo:       repo,
		jobs:       make(chan *Cascade, size),
		onComplete: onComplete,
	}
}

// Start launches the worker. Calling it twice is a no-op.
func (q *CascadeQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.worker()
}

// Stop refuses new jobs and waits for queued ones to finish.
func (q *CascadeQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	started := q.started
	close(q.jobs)
	q.mu.Unlock()

	if !started {
		// Nobody will drain the channel; run what is left inline.
		for c := range q.jobs {
			q.run(context.Background(), c)
		}
		return
	}
	q.wg.Wait()
}

// Submit queues c. After Stop it returns ErrQueueClosed and the cascade
// has already been applied synchronously.
func (q *CascadeQueue) Submit(c *Cascade) error {
	q.mu.RLock()
	if !q.closed {
		q.jobs <- c
		q.mu.RUnlock()
		return nil
	}
	q.mu.RUnlock()

	q.run(context.Background(), c)
	return ErrQueueClosed
}

func (q *CascadeQueue) worker() {
	defer q.wg.Done()
	for c := range q.jobs {
		// Cascades outlive the request that triggered them.
		q.run(context.Background(), c)
	}
}

// run walks the subtree below c.RootID with an explicit stack. The visited
// set makes a cycle in stored parent links terminate instead of spinning.
func (q *CascadeQueue) run(ctx context.Context, c *Cascade) {
	defer func() {
		close(c.done)
		if q.onComplete != nil {
			q.onComplete(c)
		}
	}()

	visited := map[string]bool{c.RootID: true}
	stack := []string{c.RootID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := q.repo.ChildIDs(ctx, id)
		if err != nil {
			c.err = fmt.Errorf("cascade from %s: children of %s: %w", c.RootID, id, err)
			logger.Sugar.Errorf("Cascade aborted, subtree left partially updated: %v", c.err)
			return
		}

		fresh := make([]string, 0, len(children))
		for _, child := range children {
			if visited[child] {
				logger.Sugar.Warnf("Cascade from %s: document %s reached twice, parent links form a cycle", c.RootID, child)
				continue
			}
			visited[child] = true
			fresh = append(fresh, child)
		}
		if len(fresh) == 0 {
			continue
		}

		if err := q.repo.SetArchived(ctx, fresh, c.Archived); err != nil {
			c.err = fmt.Errorf("cascade from %s: update children of %s: %w", c.RootID, id, err)
			logger.Sugar.Errorf("Cascade aborted, subtree left partially updated: %v", c.err)
			return
		}
		c.affected = append(c.affected, fresh...)
		stack = append(stack, fresh...)
	}

	logger.Sugar.Debugf("Cascade from %s set archived=%t on %d descendants", c.RootID, c.Archived, len(c.affected))
}
