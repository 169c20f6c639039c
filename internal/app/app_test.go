package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/dispatch"
	"github.com/specialistvlad/dungeonjob/internal/hcl"
	"github.com/specialistvlad/dungeonjob/internal/inmemorystore"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/nodepool"
	"github.com/specialistvlad/dungeonjob/internal/params"
	"github.com/specialistvlad/dungeonjob/internal/platform"
	"github.com/specialistvlad/dungeonjob/internal/registry"
	"github.com/specialistvlad/dungeonjob/internal/sequencer"
	"github.com/specialistvlad/dungeonjob/internal/testutil"
	"github.com/specialistvlad/dungeonjob/modules/fsarchive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineTemplate = `
simulation {
  success_exit_codes = [0]
}

pool "static" {
  node "lin-1" { os = "linux" }
  node "win-1" { os = "windows" }
}

archive "fs" {
  dir = env.ARCHIVE_DIR
}
`

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.hcl"), []byte(content), 0o644))
	return dir
}

func battleSimulator(_ node.ExecutionNode, cmd platform.Command, files map[string][]byte) (*node.ExecResult, error) {
	if strings.Contains(strings.Join(cmd.Argv(), " "), "pip install") {
		return &node.ExecResult{}, nil
	}
	files[dispatch.DefaultReportFile] = []byte("<html><head><title>Ada's battle</title></head></html>")
	files[dispatch.DefaultLogFile] = []byte("the dragon falls")
	return &node.ExecResult{}, nil
}

func TestRun_EndToEnd(t *testing.T) {
	archiveDir := t.TempDir()
	stateDB := filepath.Join(t.TempDir(), "jobs.db")
	cfg, err := NewConfig(Config{PipelinePath: writePipeline(t, pipelineTemplate), StateDB: stateDB})
	require.NoError(t, err)

	a, logs := SetupAppTest(t, cfg, map[string]string{"ARCHIVE_DIR": archiveDir})
	agent := testutil.NewFakeAgent()
	agent.OnExec = battleSimulator
	a.UseAgent(agent)
	a.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	report, err := a.Run(context.Background(), params.Raw{
		ParticipantName: "Ada", Category: "B", Level: "42", Hardcore: true, Platform: "windows",
	})
	require.NoError(t, err)
	require.Equal(t, sequencer.OutcomeSucceeded, report.Outcome, report.Reason)
	assert.Equal(t, 0, report.ExitCode())

	calls := agent.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "win-1", calls[1].Node.ID)
	assert.Contains(t, calls[1].Cmd.Argv(), "--battle_date=2026-10-19")

	jobDir := filepath.Join(archiveDir, report.JobID)
	assert.FileExists(t, filepath.Join(jobDir, dispatch.DefaultReportFile))
	assert.FileExists(t, filepath.Join(jobDir, dispatch.DefaultLogFile))
	raw, err := os.ReadFile(filepath.Join(jobDir, archive.ManifestName))
	require.NoError(t, err)
	var m archive.Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "Ada's battle", m.Title)
	assert.Equal(t, "win-1", m.NodeID)

	rec, err := LookupJob(context.Background(), stateDB, report.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Done", rec.State)
	assert.Equal(t, "succeeded", rec.Outcome)
	assert.Len(t, rec.Stages, 2)

	assert.Contains(t, logs.String(), "Dispatching job")
}

func TestRun_ValidationFailureTouchesNoNode(t *testing.T) {
	cfg, err := NewConfig(Config{PipelinePath: writePipeline(t, pipelineTemplate)})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg, map[string]string{"ARCHIVE_DIR": t.TempDir()})
	agent := testutil.NewFakeAgent()
	a.UseAgent(agent)

	report, err := a.Run(context.Background(), params.Raw{ParticipantName: "Ada", Category: "B", Level: "101", Platform: "linux"})
	require.NoError(t, err)
	assert.Equal(t, sequencer.OutcomeInvalid, report.Outcome)
	assert.Equal(t, sequencer.ExitInvalid, report.ExitCode())
	assert.Empty(t, agent.Calls())
}

// trackedPool is a one-node pool that records whether it was closed.
type trackedPool struct {
	closed int
}

func (p *trackedPool) Nodes(context.Context) ([]node.ExecutionNode, error) {
	return []node.ExecutionNode{{ID: "lin-1", OS: platform.Linux}}, nil
}

func (p *trackedPool) Close() error {
	p.closed++
	return nil
}

type trackedPoolModule struct {
	pool *trackedPool
}

func (m *trackedPoolModule) Register(r *registry.Registry) {
	r.RegisterPool("tracked", &registry.PoolFactory{
		NewInput: func() any { return new(struct{}) },
		Create: func(context.Context, any) (nodepool.Pool, error) {
			return m.pool, nil
		},
	})
}

func TestRun_ClosesPool(t *testing.T) {
	pipeline := strings.Replace(pipelineTemplate, `pool "static" {
  node "lin-1" { os = "linux" }
  node "win-1" { os = "windows" }
}`, `pool "tracked" {}`, 1)
	cfg, err := NewConfig(Config{PipelinePath: writePipeline(t, pipeline)})
	require.NoError(t, err)
	mod := &trackedPoolModule{pool: &trackedPool{}}
	a, _ := SetupAppTest(t, cfg, map[string]string{"ARCHIVE_DIR": t.TempDir()}, mod, &fsarchive.Module{})
	agent := testutil.NewFakeAgent()
	agent.OnExec = battleSimulator
	a.UseAgent(agent)

	report, err := a.Run(context.Background(), params.Raw{ParticipantName: "Ada", Category: "A", Level: "3", Platform: "linux"})
	require.NoError(t, err)
	assert.Equal(t, sequencer.OutcomeSucceeded, report.Outcome, report.Reason)
	assert.Equal(t, 1, mod.pool.closed)
}

func TestRun_BadBackendSettings(t *testing.T) {
	pipeline := strings.Replace(pipelineTemplate, "dir = env.ARCHIVE_DIR", "", 1)
	cfg, err := NewConfig(Config{PipelinePath: writePipeline(t, pipeline)})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg, nil)
	a.UseAgent(testutil.NewFakeAgent())

	_, err = a.Run(context.Background(), params.Raw{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode 'fs' block")
}

func TestNewApp_PanicsOnUnknownBackend(t *testing.T) {
	pipeline := strings.Replace(pipelineTemplate, `archive "fs"`, `archive "gcs"`, 1)
	cfg, err := NewConfig(Config{PipelinePath: writePipeline(t, pipeline)})
	require.NoError(t, err)

	assert.PanicsWithError(t, "registry validation failed:\n- archive backend 'gcs' is not registered (available: fs, memory, presigned, s3)", func() {
		NewApp(io.Discard, cfg, hcl.NewLoaderWithEnv(nil))
	})
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	_, err = NewConfig(Config{PipelinePath: "p", LogLevel: "loud"})
	assert.ErrorContains(t, err, "invalid log-level")

	_, err = NewConfig(Config{PipelinePath: "p", LogFormat: "xml"})
	assert.ErrorContains(t, err, "invalid log-format")

	cfg, err := NewConfig(Config{PipelinePath: "p"})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestStatusRouter(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	store := inmemorystore.New()
	require.NoError(t, store.Save(ctx, &jobstore.Record{ID: "running", State: "Prepared"}))
	require.NoError(t, store.Save(ctx, &jobstore.Record{ID: "done", State: "Done", Outcome: "succeeded"}))
	cache := gocache.New(time.Minute, time.Minute)

	srv := httptest.NewServer(newStatusRouter(ctx, store, cache))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK\n", body)

	code, body = get("/jobs/running")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"state":"Prepared"`)
	_, cached := cache.Get("running")
	assert.False(t, cached, "non-terminal records must not be cached")

	code, _ = get("/jobs/done")
	assert.Equal(t, http.StatusOK, code)
	_, cached = cache.Get("done")
	assert.True(t, cached)

	code, body = get("/jobs/ghost")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "job not found")
}

func TestLookupJob_NoDatabase(t *testing.T) {
	_, err := LookupJob(context.Background(), "", "x")
	assert.ErrorContains(t, err, "no state database")
}

func ExampleNewConfig() {
	cfg, err := NewConfig(Config{PipelinePath: "pipeline.hcl", LogLevel: "debug"})
	fmt.Println(cfg.LogLevel, cfg.LogFormat, err)
	// Output: debug text <nil>
}
