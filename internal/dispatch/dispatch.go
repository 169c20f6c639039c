// Package dispatch runs the simulator on a node and collects what it wrote.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

const (
	// DefaultReportFile is the HTML report the simulator writes.
	DefaultReportFile = "battle_report.html"
	// DefaultLogFile is the plain-text battle log the simulator writes.
	DefaultLogFile = "game_log.txt"

	battleDateLayout = "2006-01-02"
)

// RunError reports a simulator exit code outside the success set, or a
// simulator that could not be started (ExitCode -1, Err set).
type RunError struct {
	NodeID   string
	ExitCode int
	// Stderr holds the tail of the combined process output.
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("simulation failed on node '%s': %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("simulation failed on node '%s' with exit code %d", e.NodeID, e.ExitCode)
}

func (e *RunError) Unwrap() error { return e.Err }

// Config controls how the simulator is invoked.
type Config struct {
	Toolchains map[platform.Family]platform.Toolchain
	// SuccessExitCodes lists the exit codes treated as success. Empty means {0}.
	SuccessExitCodes []int
	ReportFile       string
	LogFile          string
	// Now supplies the battle date. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher builds and executes the simulator command on a given node.
type Dispatcher struct {
	agent node.Agent
	cfg   Config
}

// New creates a Dispatcher, filling unset config fields with defaults.
func New(agent node.Agent, cfg Config) *Dispatcher {
	if len(cfg.SuccessExitCodes) == 0 {
		cfg.SuccessExitCodes = []int{0}
	}
	if cfg.ReportFile == "" {
		cfg.ReportFile = DefaultReportFile
	}
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultLogFile
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{agent: agent, cfg: cfg}
}

// ExpectedFiles returns the artifact names the simulator is expected to write.
func (d *Dispatcher) ExpectedFiles() []string {
	return []string{d.cfg.ReportFile, d.cfg.LogFile}
}

// Run clears stale artifacts on n, runs the simulator there, and returns the
// files it produced. A run that produced none of the expected files yields an
// empty set, not an error.
func (d *Dispatcher) Run(ctx context.Context, n node.ExecutionNode, p params.JobParameters) (*model.ArtifactSet, error) {
	logger := ctxlog.FromContext(ctx).With("node", n.ID, "os", n.OS)

	capability, err := platform.For(n.OS)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve platform for node '%s': %w", n.ID, err)
	}

	expected := d.ExpectedFiles()
	if err := d.agent.Remove(ctx, n, expected); err != nil {
		return nil, fmt.Errorf("failed to clear stale artifacts on node '%s': %w", n.ID, err)
	}

	inv := p.Invocation(d.cfg.Now().Format(battleDateLayout))
	cmd := capability.BuildRunCommand(d.cfg.Toolchains[n.OS], inv)
	logger.Debug("Launching simulation.", "argv", cmd.Argv())

	res, err := d.agent.Exec(ctx, n, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to run simulation on node '%s': %w", n.ID, err)
		}
		return nil, &RunError{NodeID: n.ID, ExitCode: -1, Stderr: err.Error(), Err: err}
	}
	if !slices.Contains(d.cfg.SuccessExitCodes, res.ExitCode) {
		return nil, &RunError{NodeID: n.ID, ExitCode: res.ExitCode, Stderr: res.Output}
	}
	logger.Debug("Simulation finished.", "exit_code", res.ExitCode, "output", res.Output)

	files, err := d.agent.Fetch(ctx, n, expected)
	if err != nil {
		return nil, fmt.Errorf("failed to collect artifacts from node '%s': %w", n.ID, err)
	}
	set := model.NewArtifactSet(n.ID, files)
	if set.Empty() {
		logger.Warn("Simulation produced no artifacts.")
	}
	return set, nil
}
