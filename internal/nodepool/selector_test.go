package nodepool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lin1 = node.ExecutionNode{ID: "lin-1", OS: platform.Linux, Label: "gpu-a"}
	lin2 = node.ExecutionNode{ID: "lin-2", OS: platform.Linux}
	win1 = node.ExecutionNode{ID: "win-1", OS: platform.Windows}
)

func staticPool(nodes ...node.ExecutionNode) Pool {
	return PoolFunc(func(context.Context) ([]node.ExecutionNode, error) { return nodes, nil })
}

func TestSelect_MatchesRequestedFamily(t *testing.T) {
	s := NewSelector(staticPool(lin1, win1, lin2), Options{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		n, err := s.Select(ctx, platform.RequestWindows)
		require.NoError(t, err)
		assert.Equal(t, "win-1", n.ID)
	}
	for i := 0; i < 4; i++ {
		n, err := s.Select(ctx, platform.RequestLinux)
		require.NoError(t, err)
		assert.Equal(t, platform.Linux, n.OS)
	}
}

func TestSelect_AnyRotatesAcrossPool(t *testing.T) {
	s := NewSelector(staticPool(lin1, win1), Options{})
	ctx := context.Background()

	first, err := s.Select(ctx, platform.RequestAny)
	require.NoError(t, err)
	second, err := s.Select(ctx, platform.RequestAny)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSelect_ListsPoolOnEveryCall(t *testing.T) {
	var calls atomic.Int32
	pool := PoolFunc(func(context.Context) ([]node.ExecutionNode, error) {
		calls.Add(1)
		return []node.ExecutionNode{lin1}, nil
	})
	s := NewSelector(pool, Options{})

	for i := 0; i < 3; i++ {
		_, err := s.Select(context.Background(), platform.RequestLinux)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestSelect_UnavailableImmediately(t *testing.T) {
	s := NewSelector(staticPool(lin1), Options{})

	_, err := s.Select(context.Background(), platform.RequestWindows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeUnavailable)

	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, platform.RequestWindows, ue.Request)
}

func TestSelect_PoolFailureIsUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewSelector(PoolFunc(func(context.Context) ([]node.ExecutionNode, error) { return nil, boom }), Options{})

	_, err := s.Select(context.Background(), platform.RequestAny)
	assert.ErrorIs(t, err, ErrNodeUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestSelect_WaitsForNodeToAppear(t *testing.T) {
	var calls atomic.Int32
	pool := PoolFunc(func(context.Context) ([]node.ExecutionNode, error) {
		if calls.Add(1) < 3 {
			return nil, nil
		}
		return []node.ExecutionNode{win1}, nil
	})
	s := NewSelector(pool, Options{AcquireTimeout: time.Second, PollInterval: 5 * time.Millisecond})

	n, err := s.Select(context.Background(), platform.RequestWindows)
	require.NoError(t, err)
	assert.Equal(t, "win-1", n.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSelect_GivesUpAfterTimeout(t *testing.T) {
	s := NewSelector(staticPool(lin1), Options{AcquireTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	start := time.Now()
	_, err := s.Select(context.Background(), platform.RequestWindows)
	assert.ErrorIs(t, err, ErrNodeUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSelect_CancelWhileWaiting(t *testing.T) {
	s := NewSelector(staticPool(), Options{AcquireTimeout: time.Minute, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Select(ctx, platform.RequestAny)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNodeUnavailable)
}

func TestSelect_Constraint(t *testing.T) {
	c, err := CompileConstraint("node.label.startsWith('gpu')")
	require.NoError(t, err)
	s := NewSelector(staticPool(lin2, lin1), Options{Constraint: c})

	for i := 0; i < 3; i++ {
		n, err := s.Select(context.Background(), platform.RequestLinux)
		require.NoError(t, err)
		assert.Equal(t, "lin-1", n.ID)
	}

	_, err = s.Select(context.Background(), platform.RequestWindows)
	assert.ErrorIs(t, err, ErrNodeUnavailable)
}

func TestCompileConstraint_Errors(t *testing.T) {
	_, err := CompileConstraint("node.label.startsWith(")
	assert.Error(t, err)

	_, err = CompileConstraint("'just a string'")
	assert.Error(t, err)
}

func TestConstraint_NilAllowsAll(t *testing.T) {
	var c *Constraint
	ok, err := c.Allows(win1)
	require.NoError(t, err)
	assert.True(t, ok)
}

type closingPool struct {
	Pool
	err    error
	closed bool
}

func (p *closingPool) Close() error {
	p.closed = true
	return p.err
}

func TestClose(t *testing.T) {
	assert.NoError(t, Close(staticPool(lin1)))

	p := &closingPool{Pool: staticPool(lin1), err: errors.New("conn reset")}
	assert.EqualError(t, Close(p), "conn reset")
	assert.True(t, p.closed)
}
