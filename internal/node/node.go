// Package node describes execution nodes and the transport used to drive them.
package node

import (
	"context"
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// ExecutionNode is a physical or virtual agent capable of running one stage.
// From the orchestrator's point of view nodes are stateless: two stages never
// assume they observe the same node, filesystem, or prior side effects.
type ExecutionNode struct {
	// ID is the unique identifier of the node within its pool.
	ID string `json:"id"`
	// OS is the operating system family the node runs.
	OS platform.Family `json:"os"`
	// Label is a free-form tag used by selection constraints.
	Label string `json:"label"`
}

// String returns a human-readable description of the node.
func (n ExecutionNode) String() string {
	if n.Label == "" {
		return fmt.Sprintf("%s(%s)", n.ID, n.OS)
	}
	return fmt.Sprintf("%s(%s,%s)", n.ID, n.OS, n.Label)
}

// ExecResult is the outcome of a process that ran to completion on a node.
type ExecResult struct {
	ExitCode int
	// Output is a bounded tail of the combined stdout and stderr.
	Output string
}

// Agent is the narrow transport between the orchestrator and a node. Every
// call names its target node explicitly; an Agent never remembers which node
// a previous call used.
type Agent interface {
	// Exec runs the command in the node's workspace and waits for it. A
	// non-zero exit is reported through ExecResult, not as an error; the error
	// is reserved for failures to start or talk to the process.
	Exec(ctx context.Context, n ExecutionNode, cmd platform.Command) (*ExecResult, error)
	// Fetch reads the named files from the node's workspace. Files that do not
	// exist are skipped.
	Fetch(ctx context.Context, n ExecutionNode, names []string) ([]model.Artifact, error)
	// Remove deletes the named files from the node's workspace. Missing files
	// are not an error.
	Remove(ctx context.Context, n ExecutionNode, names []string) error
}
