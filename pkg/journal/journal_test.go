package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/model"
)

// setupTestJournal creates an in-memory journal for testing.
func setupTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := NewJournal(Config{Path: ":memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	ctx := context.Background()
	if err := j.Init(ctx); err != nil {
		t.Fatalf("failed to initialize journal: %v", err)
	}
	if err := j.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate journal: %v", err)
	}

	t.Cleanup(func() { _ = j.Close() })
	return j
}

var testBase = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// testEvent builds an event with a deterministic id and timestamp.
func testEvent(t *testing.T, seq int, typ model.EventType, moniker string) model.Event {
	t.Helper()
	m, err := model.ParseMoniker(moniker)
	if err != nil {
		t.Fatalf("ParseMoniker(%q): %v", moniker, err)
	}
	return model.Event{
		ID:        fmt.Sprintf("ev-%04d", seq),
		Type:      typ,
		Moniker:   m,
		Timestamp: testBase.Add(time.Duration(seq) * time.Second),
	}
}

func TestJournalLifecycle(t *testing.T) {
	j, err := NewJournal(Config{Path: ":memory:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	ctx := context.Background()
	if err := j.Init(ctx); err != nil {
		t.Fatalf("failed to initialize journal: %v", err)
	}
	if err := j.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("failed to close journal: %v", err)
	}
}

func TestJournalRequiresPath(t *testing.T) {
	if _, err := NewJournal(Config{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordAndQueryEvents(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	seq := 0
	for _, step := range []model.EventType{
		model.EventTypeDiscovered,
		model.EventTypeResolved,
		model.EventTypeStarted,
		model.EventTypeDestroyed,
		model.EventTypePurged,
	} {
		seq++
		if err := j.HandleEvent(ctx, testEvent(t, seq, step, "/app")); err != nil {
			t.Fatalf("HandleEvent(%s): %v", step, err)
		}
	}

	events, err := j.EventsFor(ctx, "/app", 10)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("recorded %d events, want 5", len(events))
	}
	if events[0].Type != "discovered" || events[4].Type != "purged" {
		t.Errorf("event order = %s .. %s", events[0].Type, events[4].Type)
	}

	recent, err := j.RecentEvents(ctx, 2, 0)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 2 || recent[0].Type != "purged" {
		t.Errorf("recent = %+v", recent)
	}

	count, err := j.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestStateView(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	_ = j.HandleEvent(ctx, testEvent(t, 1, model.EventTypeDiscovered, "/app"))
	_ = j.HandleEvent(ctx, testEvent(t, 2, model.EventTypeResolved, "/app"))
	_ = j.HandleEvent(ctx, testEvent(t, 3, model.EventTypeStarted, "/app"))
	_ = j.HandleEvent(ctx, testEvent(t, 4, model.EventTypeDiscovered, "/db"))

	state, err := j.StateOf(ctx, "/app")
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if state.State != "resolved" || !state.Started {
		t.Errorf("state = %+v", state)
	}

	// Teardown clears the started flag.
	_ = j.HandleEvent(ctx, testEvent(t, 5, model.EventTypeDestroyed, "/app"))

	state, err = j.StateOf(ctx, "/app")
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if state.State != "destroyed" || state.Started {
		t.Errorf("state after destroy = %+v", state)
	}

	states, err := j.States(ctx)
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if len(states) != 2 || states[0].Moniker != "/app" || states[1].Moniker != "/db" {
		t.Errorf("states = %+v", states)
	}

	if _, err := j.StateOf(ctx, "/ghost"); err == nil {
		t.Error("expected error for unknown component")
	}
}

func TestFailedResolutionKeepsDiscovered(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	_ = j.HandleEvent(ctx, testEvent(t, 1, model.EventTypeDiscovered, "/app"))

	failed := testEvent(t, 2, model.EventTypeResolved, "/app")
	failed.Err = errors.New("manifest unavailable")
	_ = j.HandleEvent(ctx, failed)

	state, err := j.StateOf(ctx, "/app")
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if state.State != "discovered" {
		t.Errorf("state = %q, want discovered", state.State)
	}

	events, err := j.EventsFor(ctx, "/app", 10)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(events) != 2 || events[1].Error != "manifest unavailable" {
		t.Errorf("events = %+v", events)
	}
}

func TestRoutedEventCarriesSource(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	target, _ := model.ParseMoniker("/app")
	source, _ := model.ParseMoniker("/db/inner")
	ev := model.NewCapabilityRoutedEvent(target, source, "svc.db")
	ev.ID = "ev-route"
	ev.Timestamp = testBase

	if err := j.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	events, err := j.EventsFor(ctx, "/app", 10)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	if events[0].Capability != "svc.db" || events[0].Source != "/db/inner" {
		t.Errorf("routed event = %+v", events[0])
	}
}

func TestPruneBefore(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_ = j.HandleEvent(ctx, testEvent(t, i, model.EventTypeDiscovered, fmt.Sprintf("/c%d", i)))
	}

	pruned, err := j.PruneBefore(ctx, testBase.Add(3*time.Second))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	count, err := j.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 2 {
		t.Errorf("count after prune = %d, want 2", count)
	}
}

func TestPersistenceFailureDoesNotVeto(t *testing.T) {
	j := setupTestJournal(t)
	_ = j.Close()

	// The hook must swallow write failures rather than abort the
	// transition that produced the event.
	if err := j.HandleEvent(context.Background(), testEvent(t, 1, model.EventTypeDiscovered, "/app")); err != nil {
		t.Fatalf("HandleEvent after close returned %v", err)
	}
}

func TestJournalAttachesAsHook(t *testing.T) {
	j := setupTestJournal(t)

	hooks := model.NewHooks()
	j.Attach(hooks)

	if err := hooks.Dispatch(context.Background(), testEvent(t, 1, model.EventTypeDiscovered, "/app")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	state, err := j.StateOf(context.Background(), "/app")
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if state.State != "discovered" {
		t.Errorf("state = %q", state.State)
	}
}
