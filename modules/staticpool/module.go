// Package staticpool provides a node pool whose members are declared in the
// pipeline file:
//
//	pool "static" {
//	  node "lin-1" { os = "linux" }
//	  node "win-1" {
//	    os    = "windows"
//	    label = "gpu"
//	  }
//	}
package staticpool

import (
	"context"
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// NodeInput is one `node` block.
type NodeInput struct {
	ID    string `hcl:"id,label"`
	OS    string `hcl:"os"`
	Label string `hcl:"label,optional"`
}

// Input defines the body of a `pool "static"` block.
type Input struct {
	Nodes []NodeInput `hcl:"node,block"`
}

// Pool is a fixed list of nodes.
type Pool struct {
	nodes []node.ExecutionNode
}

// New validates the declared nodes and builds a Pool.
func New(in *Input) (*Pool, error) {
	seen := make(map[string]struct{}, len(in.Nodes))
	nodes := make([]node.ExecutionNode, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		if _, dup := seen[n.ID]; dup {
			return nil, fmt.Errorf("static pool: duplicate node '%s'", n.ID)
		}
		seen[n.ID] = struct{}{}
		family, err := platform.ParseFamily(n.OS)
		if err != nil {
			return nil, fmt.Errorf("static pool: node '%s': %w", n.ID, err)
		}
		nodes = append(nodes, node.ExecutionNode{ID: n.ID, OS: family, Label: n.Label})
	}
	return &Pool{nodes: nodes}, nil
}

// Nodes implements nodepool.Pool.
func (p *Pool) Nodes(context.Context) ([]node.ExecutionNode, error) {
	return append([]node.ExecutionNode(nil), p.nodes...), nil
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPool("static", &registry.PoolFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (nodepool.Pool, error) {
			p, err := New(input.(*Input))
			if err != nil {
				return nil, err
			}
			if len(p.nodes) == 0 {
				ctxlog.FromContext(ctx).Warn("Static pool declares no nodes; every job will be node_unavailable.")
			}
			return p, nil
		},
	})
}
