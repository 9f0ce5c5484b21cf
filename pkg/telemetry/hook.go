package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/openreef/reef/pkg/model"
)

// MetricsHook bridges lifecycle events into Prometheus collectors. It
// observes only and never vetoes a transition. The hook tracks each
// component's last observed state so the per-state gauge and the
// running-programs gauge stay consistent across teardown.
type MetricsHook struct {
	metrics *Metrics

	mu      sync.Mutex
	states  map[string]string
	counts  map[string]int
	started map[string]struct{}
}

// NewMetricsHook creates a hook that records lifecycle events on the
// given metrics collector.
func NewMetricsHook(metrics *Metrics) *MetricsHook {
	return &MetricsHook{
		metrics: metrics,
		states:  make(map[string]string),
		counts:  make(map[string]int),
		started: make(map[string]struct{}),
	}
}

// Attach subscribes the hook to every lifecycle event type and to veto
// notifications.
func (h *MetricsHook) Attach(hooks *model.Hooks) {
	hooks.RegisterHook(model.AllEventTypes(), h)
	hooks.ObserveVetoes(h.recordVeto)
}

// HandleEvent implements model.Hook.
func (h *MetricsHook) HandleEvent(ctx context.Context, event model.Event) error {
	h.metrics.RecordEvent(string(event.Type))

	if event.Err != nil {
		h.metrics.RecordError(errorClass(event.Err), model.ErrorCode(event.Err))
		return nil
	}

	switch event.Type {
	case model.EventTypeDiscovered:
		h.setState(event.Moniker, string(model.StateDiscovered))
	case model.EventTypeResolved:
		h.setState(event.Moniker, string(model.StateResolved))
	case model.EventTypeDestroyed:
		h.setState(event.Moniker, string(model.StateDestroyed))
		if h.dropStarted(event.Moniker) {
			h.metrics.RecordProgramStopped()
		}
	case model.EventTypePurged:
		h.setState(event.Moniker, string(model.StatePurged))
	case model.EventTypeStarted:
		h.metrics.RecordProgramStarted(string(event.Reason))
		h.markStarted(event.Moniker)
	case model.EventTypeCapabilityRouted:
		h.metrics.RecordRoute("ok")
	}

	return nil
}

// recordVeto counts a hook-aborted transition by event type.
func (h *MetricsHook) recordVeto(event model.Event) {
	h.metrics.RecordHookVeto(string(event.Type))
}

// setState moves the moniker to the new state and republishes the
// per-state component counts.
func (h *MetricsHook) setState(moniker model.Moniker, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := moniker.String()
	if prev, ok := h.states[key]; ok {
		if prev == state {
			return
		}
		h.counts[prev]--
		h.metrics.SetComponentCount(prev, float64(h.counts[prev]))
	}
	h.states[key] = state
	h.counts[state]++
	h.metrics.SetComponentCount(state, float64(h.counts[state]))
}

func (h *MetricsHook) markStarted(moniker model.Moniker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started[moniker.String()] = struct{}{}
}

// dropStarted reports whether the moniker was tracked as started and
// forgets it.
func (h *MetricsHook) dropStarted(moniker model.Moniker) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.started[moniker.String()]; !ok {
		return false
	}
	delete(h.started, moniker.String())
	return true
}

// errorClass extracts the classification label from an error chain.
func errorClass(err error) string {
	var me *model.ModelError
	if errors.As(err, &me) {
		return string(me.Class)
	}
	return "unknown"
}
