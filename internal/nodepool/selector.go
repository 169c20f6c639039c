// Package nodepool chooses execution nodes for node-bound stages.
//
// A Selector never remembers a previous answer: every call lists the pool
// again, so the node for the prepare stage and the node for the run stage are
// chosen independently. Callers that need the same node twice must not rely
// on getting it.
package nodepool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// DefaultPollInterval is used when blocking acquisition is enabled without an
// explicit interval.
const DefaultPollInterval = 2 * time.Second

// Pool is a source of currently available execution nodes.
type Pool interface {
	Nodes(ctx context.Context) ([]node.ExecutionNode, error)
}

// PoolFunc adapts a function to the Pool interface.
type PoolFunc func(ctx context.Context) ([]node.ExecutionNode, error)

// Nodes implements Pool.
func (f PoolFunc) Nodes(ctx context.Context) ([]node.ExecutionNode, error) { return f(ctx) }

// Close releases the pool's resources if it holds any.
func Close(p Pool) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Options tunes node acquisition.
type Options struct {
	// AcquireTimeout bounds how long Select waits for a matching node. Zero
	// means fail immediately.
	AcquireTimeout time.Duration
	// PollInterval is the pause between pool listings while waiting.
	PollInterval time.Duration
	// Constraint optionally narrows the candidates further.
	Constraint *Constraint
}

// Selector picks a node for a platform request.
type Selector struct {
	pool Pool
	opts Options

	mu   sync.Mutex
	next int
}

// NewSelector creates a selector over the given pool.
func NewSelector(pool Pool, opts Options) *Selector {
	if opts.AcquireTimeout > 0 && opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Selector{pool: pool, opts: opts}
}

// Select returns a node matching the request. Candidates are rotated so that
// consecutive calls spread over the pool.
func (s *Selector) Select(ctx context.Context, req platform.Request) (node.ExecutionNode, error) {
	logger := ctxlog.FromContext(ctx)

	var deadline time.Time
	if s.opts.AcquireTimeout > 0 {
		deadline = time.Now().Add(s.opts.AcquireTimeout)
	}

	for attempt := 1; ; attempt++ {
		candidates, err := s.candidates(ctx, req)
		if err != nil {
			return node.ExecutionNode{}, err
		}
		if len(candidates) > 0 {
			n := s.pick(candidates)
			logger.Debug("Selected execution node.", "request", req, "node", n.ID, "os", n.OS, "candidates", len(candidates))
			return n, nil
		}

		if deadline.IsZero() || !time.Now().Before(deadline) {
			return node.ExecutionNode{}, &UnavailableError{Request: req}
		}
		logger.Debug("No matching node yet, waiting.", "request", req, "attempt", attempt, "poll_interval", s.opts.PollInterval)

		wait := s.opts.PollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return node.ExecutionNode{}, fmt.Errorf("node acquisition interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Selector) candidates(ctx context.Context, req platform.Request) ([]node.ExecutionNode, error) {
	nodes, err := s.pool.Nodes(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to list node pool: %w", err)
		}
		return nil, &UnavailableError{Request: req, Err: fmt.Errorf("failed to list node pool: %w", err)}
	}

	var out []node.ExecutionNode
	for _, n := range nodes {
		if !req.Matches(n.OS) {
			continue
		}
		ok, err := s.opts.Constraint.Allows(n)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Selector) pick(candidates []node.ExecutionNode) node.ExecutionNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := candidates[s.next%len(candidates)]
	s.next++
	return n
}
