package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/envprep"
	"github.com/specialistvlad/dungeonjob/internal/inmemorystore"
	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/notify"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/testutil"
	"github.com/specialistvlad/dungeonjob/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

var (
	lin1 = node.ExecutionNode{ID: "lin-1", OS: platform.Linux}
	lin2 = node.ExecutionNode{ID: "lin-2", OS: platform.Linux}
	win1 = node.ExecutionNode{ID: "win-1", OS: platform.Windows}
)

// spySelector wraps a real selector and records every call.
type spySelector struct {
	inner    Selector
	calls    atomic.Int32
	recorder *testutil.Recorder
}

func (s *spySelector) Select(ctx context.Context, req platform.Request) (node.ExecutionNode, error) {
	s.calls.Add(1)
	if s.recorder != nil {
		s.recorder.Record("select")
	}
	return s.inner.Select(ctx, req)
}

// recordingStore records every Put into a shared recorder.
type recordingStore struct {
	*archive.MemoryStore
	recorder *testutil.Recorder
	err      error
}

func (s *recordingStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	if s.recorder != nil {
		s.recorder.Record("put:" + key)
	}
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Put(ctx, key, data, ct)
}

type fixture struct {
	agent    *testutil.FakeAgent
	selector *spySelector
	store    *recordingStore
	jobs     *inmemorystore.Store
	events   *notify.Recorder
	recorder *testutil.Recorder
	seq      *Sequencer
	ids      atomic.Int32
}

func newFixture(t *testing.T, nodes ...node.ExecutionNode) *fixture {
	t.Helper()
	rec := &testutil.Recorder{}
	f := &fixture{
		agent:    testutil.NewFakeAgent(),
		store:    &recordingStore{MemoryStore: archive.NewMemoryStore(), recorder: rec},
		jobs:     inmemorystore.New(),
		events:   &notify.Recorder{},
		recorder: rec,
	}
	f.agent.Recorder = rec
	f.agent.OnExec = simulator(0)
	pool := nodepool.PoolFunc(func(context.Context) ([]node.ExecutionNode, error) { return nodes, nil })
	f.selector = &spySelector{inner: nodepool.NewSelector(pool, nodepool.Options{}), recorder: rec}
	f.seq = f.build(Deps{})
	return f
}

func (f *fixture) build(override Deps) *Sequencer {
	deps := Deps{
		Selector:  f.selector,
		Preparer:  envprep.New(f.agent, nil),
		Runner:    dispatch.New(f.agent, dispatch.Config{Now: func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }}),
		Publisher: archive.NewPublisher(f.store, archive.Options{EntryPoint: dispatch.DefaultReportFile}),
		Store:     f.jobs,
		Notifier:  f.events,
		NewID:     func() string { return fmt.Sprintf("job-%d", f.ids.Add(1)) },
		Tracer:    override.Tracer,
	}
	if override.Publisher != nil {
		deps.Publisher = override.Publisher
	}
	return New(deps)
}

// simulator writes both artifacts on run and exits with code; installs always
// succeed.
func simulator(code int) testutil.ExecFunc {
	return func(_ node.ExecutionNode, cmd platform.Command, files map[string][]byte) (*node.ExecResult, error) {
		if isInstall(cmd) {
			return &node.ExecResult{}, nil
		}
		if code != 0 {
			return &node.ExecResult{ExitCode: code, Output: "Traceback: dragon"}, nil
		}
		files[dispatch.DefaultReportFile] = []byte("<html><title>Rin's battle</title></html>")
		files[dispatch.DefaultLogFile] = []byte("victory")
		return &node.ExecResult{}, nil
	}
}

func isInstall(cmd platform.Command) bool {
	return strings.Contains(strings.Join(cmd.Argv(), " "), "pip install")
}

func scenarioA() params.Raw {
	return params.Raw{ParticipantName: "Rin", Category: "A", Level: "10", Hardcore: false, Platform: "linux"}
}

func states(events []notify.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}

func TestScenarioA_HappyPath(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, win1, lin1)

	report := f.seq.Run(ctx, scenarioA())

	require.NoError(t, report.Err)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, OutcomeSucceeded, report.Outcome)
	assert.Equal(t, ExitOK, report.ExitCode())

	calls := f.agent.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, platform.Linux, c.Node.OS)
	}
	runArgs := calls[1].Cmd.Args
	assert.Contains(t, runArgs, "--hero_class=Warrior")
	assert.Contains(t, runArgs, "--level=10")
	assert.NotContains(t, runArgs, "--hardcore_mode")

	assert.Equal(t, []string{
		"job-1/battle_report.html",
		"job-1/game_log.txt",
		"job-1/manifest.json",
	}, f.store.Keys())
	require.NotNil(t, report.Receipt)
	assert.Equal(t, "Rin's battle", report.Receipt.Title)

	assert.Equal(t, []string{
		"Init", "Validated", "NodeBound(prepare)", "Prepared",
		"NodeBound(run)", "Executed", "Published", "Done",
	}, states(f.events.Events))

	require.Len(t, report.Stages, 2)
	assert.Equal(t, model.StagePrepare, report.Stages[0].Stage)
	assert.Equal(t, model.StageRun, report.Stages[1].Stage)
	assert.Equal(t, []string{"battle_report.html", "game_log.txt"}, report.Stages[1].ProducedFiles)

	rec, err := f.jobs.Get(ctx, report.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Done", rec.State)
	assert.Equal(t, "succeeded", rec.Outcome)
	assert.Len(t, rec.Stages, 2)
	require.NotNil(t, rec.Params)
	assert.Equal(t, "Rin", rec.Params.ParticipantName)
}

func TestScenarioB_InvalidLevelNeverSelects(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	raw := scenarioA()
	raw.Level = "150"

	report := f.seq.Run(ctx, raw)

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, OutcomeInvalid, report.Outcome)
	assert.Equal(t, ExitInvalid, report.ExitCode())
	var ve *params.ValidationError
	require.ErrorAs(t, report.Err, &ve)
	assert.Equal(t, "level", ve.Field)
	assert.Equal(t, int32(0), f.selector.calls.Load())
	assert.Empty(t, f.agent.Calls())
	assert.Equal(t, []string{"Init", "Failed"}, states(f.events.Events))
}

func TestScenarioC_RunFailureSkipsPublication(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	f.agent.OnExec = simulator(1)

	report := f.seq.Run(ctx, scenarioA())

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, OutcomeRunFailed, report.Outcome)
	assert.Equal(t, ExitRunFailed, report.ExitCode())
	var re *dispatch.RunError
	require.ErrorAs(t, report.Err, &re)
	assert.Equal(t, 1, re.ExitCode)
	assert.Empty(t, f.store.Keys())
	assert.Equal(t, -1, f.recorder.Index("put:job-1/game_log.txt"))

	require.Len(t, report.Stages, 2)
	assert.Equal(t, model.StageFailed, report.Stages[1].Status)
	assert.Equal(t, "Traceback: dragon", report.Stages[1].Output)
}

func TestScenarioD_PublishFailureIsDegraded(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	f.store.err = errors.New("access denied")

	report := f.seq.Run(ctx, scenarioA())

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, OutcomeDegraded, report.Outcome)
	assert.Equal(t, ExitDegraded, report.ExitCode())
	var pe *archive.PublishError
	require.ErrorAs(t, report.Err, &pe)
	var re *dispatch.RunError
	assert.False(t, errors.As(report.Err, &re))
	assert.Equal(t, model.StageOK, report.Stages[1].Status)
	assert.Contains(t, report.Stages[1].Error, "access denied")
	assert.NotContains(t, states(f.events.Events), "Published")
}

func TestPrepareFailureStopsJob(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	f.agent.OnExec = func(_ node.ExecutionNode, cmd platform.Command, _ map[string][]byte) (*node.ExecResult, error) {
		return &node.ExecResult{ExitCode: 1, Output: "pip exploded"}, nil
	}

	report := f.seq.Run(ctx, scenarioA())

	assert.Equal(t, OutcomePrepFailed, report.Outcome)
	assert.Equal(t, ExitPrepFailed, report.ExitCode())
	assert.Len(t, f.agent.Calls(), 1, "run must not start after a failed preparation")
	assert.Equal(t, int32(1), f.selector.calls.Load())
	require.Len(t, report.Stages, 1)
	assert.Equal(t, "pip exploded", report.Stages[0].Output)
}

func TestStartFailuresAreStageFailures(t *testing.T) {
	testCases := []struct {
		name    string
		failRun bool
		want    Outcome
		code    int
		stages  int
	}{
		{"install binary missing", false, OutcomePrepFailed, ExitPrepFailed, 1},
		{"interpreter missing", true, OutcomeRunFailed, ExitRunFailed, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.LogContext(t)
			f := newFixture(t, lin1)
			f.agent.OnExec = func(_ node.ExecutionNode, cmd platform.Command, _ map[string][]byte) (*node.ExecResult, error) {
				if isInstall(cmd) != tc.failRun {
					return nil, fmt.Errorf("fork/exec %s: no such file or directory", cmd.Path)
				}
				return &node.ExecResult{}, nil
			}

			report := f.seq.Run(ctx, scenarioA())

			assert.Equal(t, tc.want, report.Outcome)
			assert.Equal(t, tc.code, report.ExitCode())
			assert.Contains(t, report.Reason, "no such file or directory")
			assert.Len(t, report.Stages, tc.stages)
		})
	}
}

func TestNoMatchingNode(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	raw := scenarioA()
	raw.Platform = "windows"

	report := f.seq.Run(ctx, raw)

	assert.Equal(t, OutcomeNodeUnavailable, report.Outcome)
	assert.Equal(t, ExitNodeUnavailable, report.ExitCode())
	assert.ErrorIs(t, report.Err, nodepool.ErrNodeUnavailable)
	assert.Empty(t, f.agent.Calls())
}

func TestSelectsNodeBeforeEachStage(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1, lin2)

	report := f.seq.Run(ctx, scenarioA())
	require.Equal(t, OutcomeSucceeded, report.Outcome)

	assert.Equal(t, int32(2), f.selector.calls.Load())
	calls := f.agent.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "lin-1", calls[0].Node.ID)
	assert.Equal(t, "lin-2", calls[1].Node.ID)
	assert.Equal(t, "lin-2", report.Receipt.NodeID, "artifacts must come from the run node")
	assert.Equal(t, "lin-1", report.Stages[0].NodeID)
	assert.Equal(t, "lin-2", report.Stages[1].NodeID)
}

func TestAnyPlatformMayChangeFamilyBetweenStages(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	f := newFixture(t, lin1, win1)
	raw := scenarioA()
	raw.Platform = "any"

	report := f.seq.Run(ctx, raw)
	require.Equal(t, OutcomeSucceeded, report.Outcome)

	calls := f.agent.Calls()
	assert.Equal(t, platform.Linux, calls[0].Node.OS)
	assert.Equal(t, platform.Windows, calls[1].Node.OS)
	assert.Equal(t, "py", calls[1].Cmd.Path)
	assert.Contains(t, logs.String(), "different OS families")
}

func TestPublishHappensBeforeNextSelect(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)

	require.Equal(t, OutcomeSucceeded, f.seq.Run(ctx, scenarioA()).Outcome)
	require.Equal(t, OutcomeSucceeded, f.seq.Run(ctx, scenarioA()).Outcome)

	events := f.recorder.Events()
	runDone := f.recorder.Index("fetch:lin-1")
	publish := f.recorder.Index("put:job-1/manifest.json")
	require.NotEqual(t, -1, runDone)
	require.NotEqual(t, -1, publish)

	nextSelect := -1
	seen := 0
	for i, ev := range events {
		if ev == "select" {
			seen++
			if seen == 3 {
				nextSelect = i
				break
			}
		}
	}
	require.NotEqual(t, -1, nextSelect)
	assert.Less(t, runDone, publish)
	assert.Less(t, publish, nextSelect)
}

func TestCancellation(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	ctx, cancel := context.WithCancel(ctx)
	f := newFixture(t, lin1)
	f.agent.OnExec = func(_ node.ExecutionNode, cmd platform.Command, _ map[string][]byte) (*node.ExecResult, error) {
		cancel()
		return nil, context.Canceled
	}

	report := f.seq.Run(ctx, scenarioA())

	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, OutcomeCancelled, report.Outcome)
	assert.Equal(t, ExitCancelled, report.ExitCode())
	assert.Empty(t, f.store.Keys())
}

func TestEmptyArtifactSetStillSucceeds(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f := newFixture(t, lin1)
	f.agent.OnExec = func(node.ExecutionNode, platform.Command, map[string][]byte) (*node.ExecResult, error) {
		return &node.ExecResult{}, nil
	}

	report := f.seq.Run(ctx, scenarioA())

	assert.Equal(t, OutcomeSucceeded, report.Outcome)
	assert.True(t, report.Receipt.Empty())
	assert.Empty(t, f.store.Keys())
}

func TestSpans(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	exp := tracetest.NewInMemoryExporter()
	f := newFixture(t, lin1)
	seq := f.build(Deps{Tracer: tracing.NewProviderWithExporter(tracing.Config{}, exp).Tracer()})

	report := seq.Run(ctx, scenarioA())
	require.Equal(t, OutcomeSucceeded, report.Outcome)

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"stage.prepare", "stage.run", "job.run"}, names)
}

func TestLevelOutOfRangeNeverSelectsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		level := rapid.OneOf(
			rapid.IntRange(-1_000_000, params.MinLevel-1),
			rapid.IntRange(params.MaxLevel+1, 1_000_000),
		).Draw(t, "level")

		agent := testutil.NewFakeAgent()
		spy := &spySelector{inner: nodepool.NewSelector(nodepool.PoolFunc(func(context.Context) ([]node.ExecutionNode, error) {
			return []node.ExecutionNode{lin1}, nil
		}), nodepool.Options{})}
		seq := New(Deps{
			Selector:  spy,
			Preparer:  envprep.New(agent, nil),
			Runner:    dispatch.New(agent, dispatch.Config{}),
			Publisher: archive.NewPublisher(archive.NewMemoryStore(), archive.Options{}),
		})

		raw := scenarioA()
		raw.Level = fmt.Sprint(level)
		report := seq.Run(context.Background(), raw)

		if report.Outcome != OutcomeInvalid {
			t.Fatalf("level %d: outcome %s, want invalid", level, report.Outcome)
		}
		if n := spy.calls.Load(); n != 0 {
			t.Fatalf("level %d: selector called %d times", level, n)
		}
	})
}
