package model

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
)

// fakeResolver resolves locators from an in-memory table.
type fakeResolver struct {
	mu    sync.Mutex
	decls map[string]*decl.Declaration
	errs  map[string]error
	calls map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		decls: make(map[string]*decl.Declaration),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (r *fakeResolver) add(locator string, d *decl.Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decls[locator] = d
}

func (r *fakeResolver) fail(locator string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[locator] = err
}

func (r *fakeResolver) callCount(locator string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[locator]
}

func (r *fakeResolver) Resolve(_ context.Context, locator string) (*decl.Declaration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[locator]++
	if err, ok := r.errs[locator]; ok {
		return nil, err
	}
	if d, ok := r.decls[locator]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown locator: %s", locator)
}

// recorderHook records every event it receives, in order, and can be
// armed to veto specific event types.
type recorderHook struct {
	mu     sync.Mutex
	events []Event
	veto   map[EventType]error
}

func newRecorderHook() *recorderHook {
	return &recorderHook{veto: make(map[EventType]error)}
}

func (h *recorderHook) HandleEvent(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.veto[event.Type]; ok {
		return err
	}
	h.events = append(h.events, event)
	return nil
}

func (h *recorderHook) vetoType(t EventType, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.veto[t] = err
}

func (h *recorderHook) liftVeto(t EventType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.veto, t)
}

// snapshot returns "type moniker" strings for every recorded event.
func (h *recorderHook) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = fmt.Sprintf("%s %s", e.Type, e.Moniker)
	}
	return out
}

func (h *recorderHook) recorded() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// indexOf returns the position of the first "type moniker" entry or -1.
func indexOf(entries []string, want string) int {
	for i, e := range entries {
		if e == want {
			return i
		}
	}
	return -1
}

// fakeProgram is a stoppable program handle.
type fakeProgram struct {
	mu      sync.Mutex
	stopped bool
}

func (p *fakeProgram) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *fakeProgram) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeRunner counts runs per moniker.
type fakeRunner struct {
	mu       sync.Mutex
	runs     map[string]int
	programs map[string]*fakeProgram
	err      error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		runs:     make(map[string]int),
		programs: make(map[string]*fakeProgram),
	}
}

func (r *fakeRunner) Run(_ context.Context, moniker Moniker, _ *decl.Declaration) (ProgramHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.runs[moniker.String()]++
	p := &fakeProgram{}
	r.programs[moniker.String()] = p
	return p, nil
}

func (r *fakeRunner) runCount(m string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[m]
}

func (r *fakeRunner) program(m string) *fakeProgram {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.programs[m]
}

// newTestModel builds a model with the given resolver and runner and a
// recorder hook registered for all event types.
func newTestModel(t *testing.T, resolver Resolver, runner Runner) (*Model, *recorderHook) {
	t.Helper()
	m, err := NewModel(Config{
		RootLocator: "test://root",
		Resolver:    resolver,
		Runner:      runner,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	hook := newRecorderHook()
	m.Hooks().RegisterHook(AllEventTypes(), hook)
	return m, hook
}

// mustResolve resolves the instance or fails the test.
func mustResolve(t *testing.T, m *Model, inst *ComponentInstance) {
	t.Helper()
	if err := m.Resolve(context.Background(), inst); err != nil {
		t.Fatalf("Resolve(%s): %v", inst.Moniker(), err)
	}
}

// leafDecl returns a declaration with no children.
func leafDecl() *decl.Declaration {
	return &decl.Declaration{}
}

// programDecl returns a declaration with a wasm program.
func programDecl() *decl.Declaration {
	return &decl.Declaration{
		Program: &decl.Program{Runner: "wasm", Binary: "bin/app.wasm"},
	}
}
