package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/dungeonjob/internal/model"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// ExecCall is one recorded invocation of FakeAgent.Exec.
type ExecCall struct {
	Node node.ExecutionNode
	Cmd  platform.Command
}

// ExecFunc scripts the behaviour of a fake process. It may write files into
// the node's workspace through the supplied map.
type ExecFunc func(n node.ExecutionNode, cmd platform.Command, files map[string][]byte) (*node.ExecResult, error)

// FakeAgent is an in-memory node.Agent. Every node has an isolated file map,
// and every call is appended to an ordered event log.
type FakeAgent struct {
	mu     sync.Mutex
	files  map[string]map[string][]byte
	calls  []ExecCall
	events []string

	// OnExec decides the outcome of Exec. The default exits 0 and writes
	// nothing.
	OnExec ExecFunc
	// Recorder, when set, receives the same events as the agent's own log.
	Recorder *Recorder
}

var _ node.Agent = (*FakeAgent)(nil)

// NewFakeAgent creates an agent with empty workspaces.
func NewFakeAgent() *FakeAgent {
	return &FakeAgent{files: make(map[string]map[string][]byte)}
}

// Exec implements node.Agent.
func (a *FakeAgent) Exec(ctx context.Context, n node.ExecutionNode, cmd platform.Command) (*node.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, ExecCall{Node: n, Cmd: cmd})
	a.record(fmt.Sprintf("exec:%s:%s", n.ID, cmd.Path))
	if a.OnExec == nil {
		return &node.ExecResult{}, nil
	}
	return a.OnExec(n, cmd, a.workspace(n.ID))
}

// Fetch implements node.Agent.
func (a *FakeAgent) Fetch(ctx context.Context, n node.ExecutionNode, names []string) ([]model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("fetch:" + n.ID)
	var out []model.Artifact
	for _, name := range names {
		if data, ok := a.files[n.ID][name]; ok {
			out = append(out, model.Artifact{Name: name, Data: append([]byte(nil), data...)})
		}
	}
	return out, nil
}

// Remove implements node.Agent.
func (a *FakeAgent) Remove(ctx context.Context, n node.ExecutionNode, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("remove:" + n.ID)
	for _, name := range names {
		delete(a.files[n.ID], name)
	}
	return nil
}

// PutFile seeds a file into a node's workspace.
func (a *FakeAgent) PutFile(nodeID, name string, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workspace(nodeID)[name] = data
}

// Files returns the sorted names present in a node's workspace.
func (a *FakeAgent) Files(nodeID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.files[nodeID]))
	for name := range a.files[nodeID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calls returns a copy of every recorded Exec call.
func (a *FakeAgent) Calls() []ExecCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ExecCall(nil), a.calls...)
}

// Events returns the ordered event log.
func (a *FakeAgent) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func (a *FakeAgent) workspace(nodeID string) map[string][]byte {
	ws, ok := a.files[nodeID]
	if !ok {
		ws = make(map[string][]byte)
		a.files[nodeID] = ws
	}
	return ws
}

func (a *FakeAgent) record(event string) {
	a.events = append(a.events, event)
	if a.Recorder != nil {
		a.Recorder.Record(event)
	}
}

// Recorder is a shared, ordered event log used to assert cross-component
// ordering in tests.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Index returns the position of the first event equal to e, or -1.
func (r *Recorder) Index(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ev := range r.events {
		if ev == e {
			return i
		}
	}
	return -1
}
