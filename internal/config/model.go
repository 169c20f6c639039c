package config

import (
	"time"

	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// Pipeline is the unified, format-agnostic description of how jobs run.
type Pipeline struct {
	Simulation *Simulation
	Toolchains map[platform.Family]platform.Toolchain
	Pool       *Pool
	Archive    *Backend
	Notifiers  []*Backend
}

// Simulation configures the simulator invocation and artifact handling.
type Simulation struct {
	// WorkDir is the root under which local node workspaces are created.
	WorkDir          string
	ReportFile       string
	LogFile          string
	SuccessExitCodes []int
	// UploadConcurrency bounds parallel artifact uploads.
	UploadConcurrency int
}

// Pool selects the node pool backend and how nodes are acquired from it.
type Pool struct {
	Backend
	AcquireTimeout time.Duration
	PollInterval   time.Duration
	// Constraint is an optional CEL expression over each candidate node.
	Constraint string
}

// Backend is a pluggable component chosen by name. Settings holds the
// format-specific body that a Decoder binds to the module's input struct.
type Backend struct {
	Type     string
	Settings any
	// Source locates the block for error messages.
	Source string
}
