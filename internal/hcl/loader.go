package hcl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/config"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/fsutil"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader whose `env` object reflects os.Environ.
func NewLoader() *Loader {
	return NewLoaderWithEnv(environ())
}

// NewLoaderWithEnv creates a loader with an explicit `env` object.
func NewLoaderWithEnv(env map[string]string) *Loader {
	return &Loader{env: env}
}

// Load orchestrates the entire HCL configuration loading process. Paths may be
// files or directories; directories are searched recursively for .hcl files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Pipeline, config.Decoder, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no .hcl pipeline files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "files", files)

	evalCtx := newEvalContext(l.env)
	parser := hclparse.NewParser()
	pipeline := &config.Pipeline{
		Simulation: &config.Simulation{},
		Toolchains: make(map[platform.Family]platform.Toolchain),
	}
	var seenSimulation bool

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, sim := range root.Simulations {
			if seenSimulation {
				return nil, nil, fmt.Errorf("%s: duplicate 'simulation' block", file)
			}
			seenSimulation = true
			if err := translateSimulation(sim, pipeline.Simulation); err != nil {
				return nil, nil, fmt.Errorf("%s: simulation block: %w", file, err)
			}
		}
		for _, tc := range root.Toolchains {
			family, err := platform.ParseFamily(tc.OS)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: toolchain block: %w", file, err)
			}
			if _, dup := pipeline.Toolchains[family]; dup {
				return nil, nil, fmt.Errorf("%s: duplicate toolchain for '%s'", file, family)
			}
			pipeline.Toolchains[family] = translateToolchain(tc)
		}
		for _, p := range root.Pools {
			if pipeline.Pool != nil {
				return nil, nil, fmt.Errorf("%s: only one 'pool' block is allowed", file)
			}
			pool, err := translatePool(p, file, evalCtx)
			if err != nil {
				return nil, nil, err
			}
			pipeline.Pool = pool
		}
		for _, a := range root.Archives {
			if pipeline.Archive != nil {
				return nil, nil, fmt.Errorf("%s: only one 'archive' block is allowed", file)
			}
			pipeline.Archive = translateBackend(a, file, evalCtx)
		}
		for _, n := range root.Notifiers {
			pipeline.Notifiers = append(pipeline.Notifiers, translateBackend(n, file, evalCtx))
		}
	}

	if pipeline.Pool == nil {
		return nil, nil, fmt.Errorf("pipeline must declare a 'pool' block")
	}
	if pipeline.Archive == nil {
		return nil, nil, fmt.Errorf("pipeline must declare an 'archive' block")
	}

	logger.Debug("HCL loading complete.",
		"pool", pipeline.Pool.Type,
		"archive", pipeline.Archive.Type,
		"notifiers", len(pipeline.Notifiers),
		"toolchains", len(pipeline.Toolchains))
	return pipeline, NewConverter(), nil
}

func translateSimulation(b *simulationBlock, out *config.Simulation) error {
	if b.WorkDir != nil {
		out.WorkDir = *b.WorkDir
	}
	report, log := dispatch.DefaultReportFile, dispatch.DefaultLogFile
	if b.ReportFile != nil {
		report = *b.ReportFile
		out.ReportFile = report
	}
	if b.LogFile != nil {
		log = *b.LogFile
		out.LogFile = log
	}
	if err := checkArtifactName(report); err != nil {
		return fmt.Errorf("invalid report_file: %w", err)
	}
	if err := checkArtifactName(log); err != nil {
		return fmt.Errorf("invalid log_file: %w", err)
	}
	if report == log {
		return fmt.Errorf("report_file and log_file must differ, both are '%s'", report)
	}
	if b.UploadConcurrency != nil {
		out.UploadConcurrency = *b.UploadConcurrency
	}
	out.SuccessExitCodes = b.SuccessExitCodes
	return nil
}

// checkArtifactName accepts plain file names other than the manifest's.
func checkArtifactName(name string) error {
	switch {
	case name == "", name == ".", name == "..", strings.ContainsAny(name, `/\`):
		return fmt.Errorf("'%s' is not a plain file name", name)
	case name == archive.ManifestName:
		return fmt.Errorf("'%s' is reserved for the archive manifest", name)
	}
	return nil
}

func translateToolchain(b *toolchainBlock) platform.Toolchain {
	tc := platform.Toolchain{
		Interpreter: b.Interpreter,
		Install:     b.Install,
		ExtraArgs:   b.ExtraArgs,
		Env:         b.Env,
	}
	if b.Program != nil {
		tc.Program = *b.Program
	}
	return tc
}

func translatePool(b *poolBlock, file string, evalCtx *hcl.EvalContext) (*config.Pool, error) {
	pool := &config.Pool{Backend: *translateBackend(&backendBlock{Type: b.Type, Remain: b.Remain}, file, evalCtx)}
	var err error
	if b.AcquireTimeout != nil {
		if pool.AcquireTimeout, err = time.ParseDuration(*b.AcquireTimeout); err != nil {
			return nil, fmt.Errorf("%s: pool '%s': invalid acquire_timeout: %w", file, b.Type, err)
		}
	}
	if b.PollInterval != nil {
		if pool.PollInterval, err = time.ParseDuration(*b.PollInterval); err != nil {
			return nil, fmt.Errorf("%s: pool '%s': invalid poll_interval: %w", file, b.Type, err)
		}
	}
	if b.Constraint != nil {
		pool.Constraint = *b.Constraint
	}
	return pool, nil
}

func translateBackend(b *backendBlock, file string, evalCtx *hcl.EvalContext) *config.Backend {
	return &config.Backend{
		Type:     b.Type,
		Settings: &settings{body: b.Remain, evalCtx: evalCtx},
		Source:   file,
	}
}
