// Package envprep installs the simulator's dependencies on a node.
package envprep

import (
	"context"
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// PrepError reports that the install command exited unsuccessfully or could
// not be started on the node. In the latter case ExitCode is -1 and Err holds
// the start failure.
type PrepError struct {
	NodeID   string
	ExitCode int
	// Output is the tail of the install command's combined output.
	Output string
	Err    error
}

func (e *PrepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("environment preparation failed on node '%s': %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("environment preparation failed on node '%s' with exit code %d", e.NodeID, e.ExitCode)
}

func (e *PrepError) Unwrap() error { return e.Err }

// Preparer runs the per-OS install command. It holds no per-node state, so
// preparing the same node twice simply runs the install again.
type Preparer struct {
	agent      node.Agent
	toolchains map[platform.Family]platform.Toolchain
}

// New creates a Preparer. Families missing from toolchains, and empty
// toolchain fields, use the platform defaults.
func New(agent node.Agent, toolchains map[platform.Family]platform.Toolchain) *Preparer {
	return &Preparer{agent: agent, toolchains: toolchains}
}

// Prepare installs dependencies on n.
func (p *Preparer) Prepare(ctx context.Context, n node.ExecutionNode) error {
	logger := ctxlog.FromContext(ctx).With("node", n.ID, "os", n.OS)

	capability, err := platform.For(n.OS)
	if err != nil {
		return fmt.Errorf("failed to resolve platform for node '%s': %w", n.ID, err)
	}
	cmd := capability.BuildInstallCommand(p.toolchains[n.OS])

	logger.Debug("Installing dependencies.", "argv", cmd.Argv())
	res, err := p.agent.Exec(ctx, n, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("failed to run install command on node '%s': %w", n.ID, err)
		}
		return &PrepError{NodeID: n.ID, ExitCode: -1, Output: err.Error(), Err: err}
	}
	if res.ExitCode != 0 {
		return &PrepError{NodeID: n.ID, ExitCode: res.ExitCode, Output: res.Output}
	}
	logger.Debug("Dependencies installed.", "output", res.Output)
	return nil
}
