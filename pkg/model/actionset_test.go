package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// blockingAction executes a caller-supplied body and counts
// executions.
type blockingAction struct {
	key   ActionKey
	count atomic.Int64
	body  func(ctx context.Context) error
}

func (a *blockingAction) Key() ActionKey {
	return a.key
}

func (a *blockingAction) Handle(ctx context.Context, _ *ComponentInstance) error {
	a.count.Add(1)
	if a.body != nil {
		return a.body(ctx)
	}
	return nil
}

func testInstance(t *testing.T) *ComponentInstance {
	t.Helper()
	m, _ := newTestModel(t, newFakeResolver(), nil)
	return m.Root()
}

func TestActionSetDeduplicatesConcurrentRegisters(t *testing.T) {
	inst := testInstance(t)
	release := make(chan struct{})
	action := &blockingAction{
		key: ActionKey{Kind: ActionResolve},
		body: func(context.Context) error {
			<-release
			return nil
		},
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = inst.Actions().Register(context.Background(), inst, action)
		}(i)
	}

	// Give every caller a chance to register before releasing.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := action.count.Load(); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d got error: %v", i, err)
		}
	}
}

func TestActionSetFansOutSharedError(t *testing.T) {
	inst := testInstance(t)
	boom := errors.New("boom")
	release := make(chan struct{})
	action := &blockingAction{
		key: ActionKey{Kind: ActionStart},
		body: func(context.Context) error {
			<-release
			return boom
		},
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = inst.Actions().Register(context.Background(), inst, action)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d: expected shared error, got %v", i, err)
		}
	}
	if got := action.count.Load(); got != 1 {
		t.Fatalf("expected 1 execution, got %d", got)
	}
}

func TestActionSetClearsEntryBeforeResult(t *testing.T) {
	inst := testInstance(t)
	action := &blockingAction{key: ActionKey{Kind: ActionDiscover}}

	if err := inst.Actions().Register(context.Background(), inst, action); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if n := inst.Actions().Inflight(); n != 0 {
		t.Fatalf("entry not cleared: %d in flight", n)
	}

	// A second identical request starts fresh rather than replaying.
	if err := inst.Actions().Register(context.Background(), inst, action); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if got := action.count.Load(); got != 2 {
		t.Fatalf("expected fresh execution on retry, got %d executions", got)
	}
}

func TestActionSetDistinguishesChildKeys(t *testing.T) {
	inst := testInstance(t)
	a := &blockingAction{key: ActionKey{Kind: ActionDeleteChild, Child: "a"}}
	b := &blockingAction{key: ActionKey{Kind: ActionDeleteChild, Child: "b"}}

	if err := inst.Actions().Register(context.Background(), inst, a); err != nil {
		t.Fatal(err)
	}
	if err := inst.Actions().Register(context.Background(), inst, b); err != nil {
		t.Fatal(err)
	}
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatalf("expected independent executions, got %d and %d", a.count.Load(), b.count.Load())
	}
}

// recordingObserver records observed actions and tags the context it
// hands to the action body.
type recordingObserver struct {
	mu    sync.Mutex
	began []ActionKey
	ended []ActionKey
	errs  []error
}

type observerCtxKey struct{}

func (o *recordingObserver) BeginAction(ctx context.Context, _ Moniker, key ActionKey) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.began = append(o.began, key)
	return context.WithValue(ctx, observerCtxKey{}, key)
}

func (o *recordingObserver) EndAction(_ context.Context, key ActionKey, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, key)
	o.errs = append(o.errs, err)
}

func TestActionSetNotifiesObserver(t *testing.T) {
	resolver := newFakeResolver()
	obs := &recordingObserver{}
	m, err := NewModel(Config{
		RootLocator: "test://root",
		Resolver:    resolver,
		Observer:    obs,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	inst := m.Root()

	var sawObserverCtx atomic.Bool
	ok := &blockingAction{
		key: ActionKey{Kind: ActionDiscover},
		body: func(ctx context.Context) error {
			// The action body runs on the context the observer derived.
			sawObserverCtx.Store(ctx.Value(observerCtxKey{}) != nil)
			return nil
		},
	}
	if err := inst.Actions().Register(context.Background(), inst, ok); err != nil {
		t.Fatalf("register: %v", err)
	}

	boom := errors.New("boom")
	failing := &blockingAction{
		key:  ActionKey{Kind: ActionStart},
		body: func(context.Context) error { return boom },
	}
	if err := inst.Actions().Register(context.Background(), inst, failing); !errors.Is(err, boom) {
		t.Fatalf("register: %v", err)
	}

	if !sawObserverCtx.Load() {
		t.Fatal("action body did not receive the observer's context")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []ActionKey{{Kind: ActionDiscover}, {Kind: ActionStart}}
	if len(obs.began) != 2 || obs.began[0] != want[0] || obs.began[1] != want[1] {
		t.Fatalf("began = %v", obs.began)
	}
	if len(obs.ended) != 2 || obs.ended[0] != want[0] || obs.ended[1] != want[1] {
		t.Fatalf("ended = %v", obs.ended)
	}
	if obs.errs[0] != nil || !errors.Is(obs.errs[1], boom) {
		t.Fatalf("observed errors = %v", obs.errs)
	}
}

func TestActionSetRunsToCompletionAfterCallerStopsWaiting(t *testing.T) {
	inst := testInstance(t)
	finished := make(chan struct{})
	release := make(chan struct{})
	action := &blockingAction{
		key: ActionKey{Kind: ActionPurge},
		body: func(ctx context.Context) error {
			<-release
			// The execution context must survive the caller's cancel.
			if err := ctx.Err(); err != nil {
				return err
			}
			close(finished)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	err := inst.Actions().Register(ctx, inst, action)
	close(release)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("action did not run to completion after caller cancelled")
	}
	// The caller may have observed either the result or its own
	// cancellation, depending on timing.
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}
}
