// Package localexecutor provides an in-process node.Agent that runs commands
// on the local machine. Each node ID gets its own workspace directory under a
// common root, so nodes in a local pool do not share files with each other.
package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// DefaultOutputLimit is the number of trailing output bytes kept per process.
const DefaultOutputLimit = 16 * 1024

// Executor implements node.Agent for local execution.
type Executor struct {
	root        string
	outputLimit int
}

// New creates a local executor whose node workspaces live under root.
func New(root string) *Executor {
	return &Executor{root: root, outputLimit: DefaultOutputLimit}
}

var _ node.Agent = (*Executor)(nil)

// Workspace returns the directory used as the working directory for the node.
func (e *Executor) Workspace(n node.ExecutionNode) (string, error) {
	if err := checkName(n.ID); err != nil {
		return "", fmt.Errorf("invalid node id: %w", err)
	}
	return filepath.Join(e.root, n.ID), nil
}

// Exec runs cmd inside the node's workspace and waits for it to exit.
func (e *Executor) Exec(ctx context.Context, n node.ExecutionNode, cmd platform.Command) (*node.ExecResult, error) {
	logger := ctxlog.FromContext(ctx).With("node", n.ID)

	dir, err := e.Workspace(n)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace for node '%s': %w", n.ID, err)
	}

	proc := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	proc.Dir = dir
	proc.Env = buildEnv(os.Environ(), cmd.Env, n)
	out := newTailBuffer(e.outputLimit)
	proc.Stdout = out
	proc.Stderr = out

	logger.Debug("Starting process.", "path", cmd.Path, "args", cmd.Args, "dir", dir)
	runErr := proc.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("process on node '%s' interrupted: %w", n.ID, ctxErr)
	}

	result := &node.ExecResult{Output: out.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to start '%s' on node '%s': %w", cmd.Path, n.ID, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	logger.Debug("Process exited.", "exit_code", result.ExitCode)
	return result, nil
}

// Fetch reads the named files from the node's workspace, skipping missing ones.
func (e *Executor) Fetch(ctx context.Context, n node.ExecutionNode, names []string) ([]model.Artifact, error) {
	dir, err := e.Workspace(n)
	if err != nil {
		return nil, err
	}
	var files []model.Artifact
	for _, name := range names {
		if err := checkName(name); err != nil {
			return nil, fmt.Errorf("invalid artifact name: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			ctxlog.FromContext(ctx).Debug("Artifact not produced, skipping.", "node", n.ID, "file", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s' on node '%s': %w", name, n.ID, err)
		}
		files = append(files, model.Artifact{Name: name, Data: data})
	}
	return files, nil
}

// Remove deletes the named files from the node's workspace.
func (e *Executor) Remove(ctx context.Context, n node.ExecutionNode, names []string) error {
	dir, err := e.Workspace(n)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := checkName(name); err != nil {
			return fmt.Errorf("invalid artifact name: %w", err)
		}
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove '%s' on node '%s': %w", name, n.ID, err)
		}
	}
	return nil
}

// checkName rejects anything that is not a single path element.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("'%s' is not a plain file name", name)
	}
	return nil
}

func buildEnv(base []string, extra map[string]string, n node.ExecutionNode) []string {
	env := append([]string(nil), base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return append(env, "DUNGEONJOB_NODE_ID="+n.ID, "DUNGEONJOB_NODE_OS="+string(n.OS))
}
