package staticpool

import (
	"context"
	"testing"

	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/registry"
	"github.com/specialistvlad/dungeonjob/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p, err := New(&Input{Nodes: []NodeInput{
		{ID: "lin-1", OS: "linux"},
		{ID: "win-1", OS: "Windows", Label: "gpu"},
	}})
	require.NoError(t, err)

	nodes, err := p.Nodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []node.ExecutionNode{
		{ID: "lin-1", OS: platform.Linux},
		{ID: "win-1", OS: platform.Windows, Label: "gpu"},
	}, nodes)

	nodes[0].ID = "mutated"
	again, _ := p.Nodes(context.Background())
	assert.Equal(t, "lin-1", again[0].ID)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&Input{Nodes: []NodeInput{{ID: "a", OS: "linux"}, {ID: "a", OS: "linux"}}})
	assert.ErrorContains(t, err, "duplicate node")

	_, err = New(&Input{Nodes: []NodeInput{{ID: "mac", OS: "darwin"}}})
	assert.ErrorContains(t, err, "unknown os family")
}

func TestRegister(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	r := registry.New()
	(&Module{}).Register(r)

	f, ok := r.Pools["static"]
	require.True(t, ok)
	pool, err := f.Create(ctx, f.NewInput())
	require.NoError(t, err)
	nodes, err := pool.Nodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Contains(t, logs.String(), "declares no nodes")
}
