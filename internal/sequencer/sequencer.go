// Package sequencer drives one job through validate, prepare, run and
// publish.
//
// The two node-bound stages are bound independently: a node is selected
// immediately before each stage and passed to it explicitly. Nothing produced
// on the prepare node is assumed to be visible on the run node, which is why
// publication happens inside the run stage on the artifacts captured from the
// run node, before that stage ends.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/envprep"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/notify"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Selector picks a node for a platform request.
type Selector interface {
	Select(ctx context.Context, req platform.Request) (node.ExecutionNode, error)
}

// Preparer installs dependencies on a node.
type Preparer interface {
	Prepare(ctx context.Context, n node.ExecutionNode) error
}

// Runner executes the simulator on a node and returns its artifacts.
type Runner interface {
	Run(ctx context.Context, n node.ExecutionNode, p params.JobParameters) (*model.ArtifactSet, error)
}

// Publisher archives an artifact set.
type Publisher interface {
	Publish(ctx context.Context, jobID string, set *model.ArtifactSet) (*archive.Receipt, error)
}

// Deps are the collaborators of a Sequencer. Selector, Preparer, Runner and
// Publisher are required; the rest fall back to no-ops.
type Deps struct {
	Selector  Selector
	Preparer  Preparer
	Runner    Runner
	Publisher Publisher

	Store    jobstore.Store
	Notifier notify.Notifier
	Tracer   trace.Tracer
	NewID    func() string
	Now      func() time.Time
}

// Sequencer runs jobs. It is safe for concurrent use when its dependencies
// are; each Run call owns its job exclusively.
type Sequencer struct {
	deps Deps
}

// New creates a Sequencer.
func New(deps Deps) *Sequencer {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Sequencer{deps: deps}
}

// Report is the final account of one job.
type Report struct {
	JobID   string
	State   State
	Outcome Outcome
	// Reason is the human-readable cause of a failed or degraded job.
	Reason  string
	Err     error
	Params  *params.JobParameters
	Stages  []model.StageResult
	Receipt *archive.Receipt
}

// ExitCode returns the process exit code for the report's outcome.
func (r *Report) ExitCode() int {
	return r.Outcome.ExitCode()
}

// Run executes one job to a terminal state. It never returns a nil report.
func (s *Sequencer) Run(ctx context.Context, raw params.Raw) *Report {
	j := &job{
		seq:    s,
		report: &Report{JobID: s.deps.NewID(), State: StateInit},
	}
	j.record = &jobstore.Record{ID: j.report.JobID, State: string(StateInit), Created: s.deps.Now()}

	ctx = ctxlog.WithJob(ctx, j.report.JobID)
	ctx, span := s.deps.Tracer.Start(ctx, tracing.SpanJob, trace.WithAttributes(
		attribute.String(tracing.AttrJobID, j.report.JobID),
	))
	defer span.End()
	j.span = span

	logger := ctxlog.FromContext(ctx)
	logger.Info("▶️ Starting job.")
	j.persist(ctx, notify.Event{})

	j.execute(ctx, raw)

	span.SetAttributes(attribute.String(tracing.AttrJobOutcome, string(j.report.Outcome)))
	if j.report.Err != nil {
		span.RecordError(j.report.Err)
		span.SetStatus(codes.Error, j.report.Reason)
	}
	switch j.report.Outcome {
	case OutcomeSucceeded:
		logger.Info("🏁 Job finished.", "outcome", j.report.Outcome)
	case OutcomeDegraded:
		logger.Warn("🏁 Job finished without publishing artifacts.", "outcome", j.report.Outcome, "reason", j.report.Reason)
	default:
		logger.Error("🔥 Job failed.", "outcome", j.report.Outcome, "state", j.report.State, "reason", j.report.Reason)
	}
	return j.report
}

// job carries the mutable state of one Run call.
type job struct {
	seq    *Sequencer
	report *Report
	record *jobstore.Record
	span   trace.Span
}

func (j *job) execute(ctx context.Context, raw params.Raw) {
	deps := j.seq.deps
	logger := ctxlog.FromContext(ctx)

	p, err := params.Validate(raw)
	if err != nil {
		j.fail(ctx, err)
		return
	}
	j.report.Params = &p
	j.record.Params = &p
	j.span.SetAttributes(attribute.String(tracing.AttrJobPlatform, string(p.Platform)))
	j.move(ctx, StateValidated, notify.Event{})

	prepNode, err := deps.Selector.Select(ctx, p.Platform)
	if err != nil {
		j.fail(ctx, err)
		return
	}
	j.move(ctx, StateNodeBoundPrepare, nodeEvent(model.StagePrepare, prepNode))

	err = j.stage(ctx, model.StagePrepare, prepNode, func(ctx context.Context, res *model.StageResult) error {
		return deps.Preparer.Prepare(ctx, prepNode)
	})
	if err != nil {
		j.fail(ctx, err)
		return
	}
	j.move(ctx, StatePrepared, notify.Event{})

	runNode, err := deps.Selector.Select(ctx, p.Platform)
	if err != nil {
		j.fail(ctx, err)
		return
	}
	if p.Platform == platform.RequestAny && runNode.OS != prepNode.OS {
		logger.Warn("Prepare and run stages landed on different OS families.",
			"prepare_node", prepNode.ID, "prepare_os", prepNode.OS,
			"run_node", runNode.ID, "run_os", runNode.OS)
	}
	j.move(ctx, StateNodeBoundRun, nodeEvent(model.StageRun, runNode))

	var publishErr error
	err = j.stage(ctx, model.StageRun, runNode, func(ctx context.Context, res *model.StageResult) error {
		set, err := deps.Runner.Run(ctx, runNode, p)
		if err != nil {
			return err
		}
		res.ProducedFiles = set.Names()
		j.move(ctx, StateExecuted, notify.Event{})

		receipt, err := deps.Publisher.Publish(ctx, j.report.JobID, set)
		if err != nil {
			if Classify(err) == OutcomeCancelled {
				return err
			}
			publishErr = err
			res.Error = err.Error()
			return nil
		}
		j.report.Receipt = receipt
		j.record.Receipt = receipt
		j.move(ctx, StatePublished, notify.Event{})
		return nil
	})
	if err != nil {
		j.fail(ctx, err)
		return
	}

	if publishErr != nil {
		j.report.Err = publishErr
		j.report.Outcome = OutcomeDegraded
		j.report.Reason = publishErr.Error()
		j.move(ctx, StateDone, notify.Event{})
		return
	}
	j.report.Outcome = OutcomeSucceeded
	j.move(ctx, StateDone, notify.Event{})
}

// stage runs fn inside a traced span and appends its StageResult.
func (j *job) stage(ctx context.Context, name model.StageName, n node.ExecutionNode, fn func(context.Context, *model.StageResult) error) error {
	deps := j.seq.deps
	logger := ctxlog.FromContext(ctx).With("stage", name, "node", n.ID, "os", n.OS)
	ctx = ctxlog.WithLogger(ctx, logger)

	ctx, span := deps.Tracer.Start(ctx, tracing.SpanStagePrefix+string(name), trace.WithAttributes(
		attribute.String(tracing.AttrJobID, j.report.JobID),
		attribute.String(tracing.AttrStageName, string(name)),
		attribute.String(tracing.AttrNodeID, n.ID),
		attribute.String(tracing.AttrNodeOS, string(n.OS)),
	))
	defer span.End()

	logger.Info("🚀 Stage started.")
	res := model.StageResult{Stage: name, NodeID: n.ID, NodeOS: string(n.OS), Started: deps.Now()}
	err := fn(ctx, &res)
	res.Finished = deps.Now()
	span.SetAttributes(attribute.Int(tracing.AttrFileCount, len(res.ProducedFiles)))

	if err != nil {
		res.Status = model.StageFailed
		res.Error = err.Error()
		res.Output = stageOutput(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Stage failed.", "error", err, "duration", res.Duration())
	} else {
		res.Status = model.StageOK
		logger.Info("✅ Stage completed.", "duration", res.Duration(), "files", res.ProducedFiles)
	}
	j.report.Stages = append(j.report.Stages, res)
	j.record.Stages = append(j.record.Stages, res)
	return err
}

func (j *job) fail(ctx context.Context, err error) {
	j.report.Err = err
	j.report.Outcome = Classify(err)
	j.report.Reason = err.Error()
	j.move(ctx, StateFailed, notify.Event{})
}

// move performs a transition and publishes it to the store, notifiers and
// the job span.
func (j *job) move(ctx context.Context, to State, ev notify.Event) {
	from := j.report.State
	if !canMove(from, to) {
		panic(fmt.Sprintf("sequencer: illegal transition %s -> %s", from, to))
	}
	j.report.State = to
	ctxlog.FromContext(ctx).Debug("Job transition.", "from", from, "to", to)
	j.span.AddEvent(tracing.EventTransition, trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	j.persist(ctx, ev)
}

func (j *job) persist(ctx context.Context, ev notify.Event) {
	deps := j.seq.deps
	logger := ctxlog.FromContext(ctx)
	now := deps.Now()

	j.record.State = string(j.report.State)
	j.record.Outcome = string(j.report.Outcome)
	j.record.Reason = j.report.Reason
	j.record.Updated = now

	if deps.Store != nil {
		if err := deps.Store.Save(ctx, j.record); err != nil {
			logger.Warn("Failed to save job record.", "error", err)
		}
	}
	if deps.Notifier != nil {
		ev.JobID = j.report.JobID
		ev.State = string(j.report.State)
		ev.Outcome = string(j.report.Outcome)
		ev.Reason = j.report.Reason
		ev.Time = now
		if err := deps.Notifier.Notify(ctx, ev); err != nil {
			logger.Warn("Failed to deliver job event.", "error", err)
		}
	}
}

// stageOutput returns the process output carried by a stage error, if any.
func stageOutput(err error) string {
	var (
		pe *envprep.PrepError
		re *dispatch.RunError
	)
	switch {
	case errors.As(err, &pe):
		return pe.Output
	case errors.As(err, &re):
		return re.Stderr
	default:
		return ""
	}
}

func nodeEvent(stage model.StageName, n node.ExecutionNode) notify.Event {
	return notify.Event{Stage: string(stage), NodeID: n.ID, NodeOS: string(n.OS)}
}
