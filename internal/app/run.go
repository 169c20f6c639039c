package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/envprep"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
	"github.com/specialistvlad/dungeonjob/internal/localexecutor"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/sequencer"
	"github.com/specialistvlad/dungeonjob/internal/tracing"
)

// Run executes one job with the given raw parameters. The returned error is
// reserved for failures to set up the backends; every job outcome, including
// validation failures, is reported through the Report.
func (a *App) Run(ctx context.Context, raw params.Raw) (*sequencer.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	tracingCfg := a.config.Tracing
	if tracingCfg.Writer == nil {
		tracingCfg.Writer = os.Stderr
	}
	tp, err := tracing.NewProvider(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Tracing shutdown failed.", "error", err)
		}
	}()

	store, closeStore, err := OpenStore(ctx, a.config.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	defer closeStore()

	if a.config.StatusPort > 0 {
		srv := newStatusServer(ctx, store, a.config.StatusPort)
		srv.start()
		defer srv.close()
	}

	seq, cleanup, err := a.buildSequencer(ctx, store, tp)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	a.logger.Info("🚀 Dispatching job...", "pool", a.pipeline.Pool.Type, "archive", a.pipeline.Archive.Type)
	report := seq.Run(ctx, raw)
	a.logger.Debug("App.Run method finished.", "job_id", report.JobID, "outcome", report.Outcome)
	return report, nil
}

// buildSequencer wires the stage components from the pipeline definition.
func (a *App) buildSequencer(ctx context.Context, store jobstore.Store, tp *tracing.Provider) (*sequencer.Sequencer, func(), error) {
	sim := a.pipeline.Simulation

	pool, err := a.buildPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	closePool := func() {
		if err := nodepool.Close(pool); err != nil {
			a.logger.Warn("Closing node pool failed.", "error", err)
		}
	}
	var constraint *nodepool.Constraint
	if a.pipeline.Pool.Constraint != "" {
		constraint, err = nodepool.CompileConstraint(a.pipeline.Pool.Constraint)
		if err != nil {
			closePool()
			return nil, nil, fmt.Errorf("failed to compile pool constraint: %w", err)
		}
	}
	selector := nodepool.NewSelector(pool, nodepool.Options{
		AcquireTimeout: a.pipeline.Pool.AcquireTimeout,
		PollInterval:   a.pipeline.Pool.PollInterval,
		Constraint:     constraint,
	})

	agent := a.agent
	if agent == nil {
		agent = a.localAgent(ctx)
	}

	archiveStore, err := a.buildArchive(ctx)
	if err != nil {
		closePool()
		return nil, nil, err
	}
	runner := dispatch.New(agent, dispatch.Config{
		Toolchains:       a.pipeline.Toolchains,
		SuccessExitCodes: sim.SuccessExitCodes,
		ReportFile:       sim.ReportFile,
		LogFile:          sim.LogFile,
		Now:              a.now,
	})
	entryPoint := sim.ReportFile
	if entryPoint == "" {
		entryPoint = dispatch.DefaultReportFile
	}
	publisher := archive.NewPublisher(archiveStore, archive.Options{
		EntryPoint:  entryPoint,
		Concurrency: sim.UploadConcurrency,
		Now:         a.now,
	})

	notifiers, err := a.buildNotifiers(ctx)
	if err != nil {
		closePool()
		return nil, nil, err
	}
	cleanup := func() {
		if err := notifiers.Close(); err != nil {
			a.logger.Warn("Closing notifiers failed.", "error", err)
		}
		closePool()
	}

	seq := sequencer.New(sequencer.Deps{
		Selector:  selector,
		Preparer:  envprep.New(agent, a.pipeline.Toolchains),
		Runner:    runner,
		Publisher: publisher,
		Store:     store,
		Notifier:  notifiers,
		Tracer:    tp.Tracer(),
		Now:       a.now,
	})
	return seq, cleanup, nil
}

func (a *App) localAgent(ctx context.Context) node.Agent {
	root := a.pipeline.Simulation.WorkDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "dungeonjob")
	}
	ctxlog.FromContext(ctx).Debug("Using local executor.", "work_dir", root)
	return localexecutor.New(root)
}
