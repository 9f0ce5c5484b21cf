package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/model"
)

// Gate is a lifecycle hook that evaluates every dispatched event
// against the policy engine and vetoes transitions the policies deny.
type Gate struct {
	engine      *Engine
	logger      zerolog.Logger
	environment string
}

// NewGate creates a policy gate around an engine. The environment is
// surfaced to policies as input.context.environment.
func NewGate(engine *Engine, environment string, logger zerolog.Logger) *Gate {
	return &Gate{
		engine:      engine,
		logger:      logger.With().Str("component", "policy-gate").Logger(),
		environment: environment,
	}
}

// Attach registers the gate for all lifecycle event types.
func (g *Gate) Attach(hooks *model.Hooks) {
	hooks.RegisterHook(model.AllEventTypes(), g)
}

// HandleEvent evaluates the event against the loaded policies.
// A blocking violation is returned as an error, which aborts the
// transition.
func (g *Gate) HandleEvent(ctx context.Context, event model.Event) error {
	result, err := g.engine.Evaluate(ctx, g.buildInput(event))
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}

	for _, w := range result.Warnings {
		g.logger.Warn().
			Str("policy", w.Policy).
			Str("moniker", w.Moniker).
			Str("severity", string(w.Severity)).
			Msg(w.Message)
	}

	if result.Allowed {
		return nil
	}

	msgs := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		g.logger.Error().
			Str("policy", v.Policy).
			Str("moniker", v.Moniker).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}

	return model.NewPermanentError(
		fmt.Sprintf("denied by policy: %s", strings.Join(msgs, "; ")), nil)
}

// buildInput flattens a lifecycle event into policy input.
func (g *Gate) buildInput(event model.Event) *Input {
	in := &Input{
		Event: &EventInput{
			Type:         string(event.Type),
			Moniker:      event.Moniker.String(),
			InCollection: inCollection(event.Moniker),
			Reason:       string(event.Reason),
			Capability:   event.Capability,
		},
		Context: &Context{
			Environment: g.environment,
			Timestamp:   time.Now(),
		},
	}

	if event.Type == model.EventTypeCapabilityRouted {
		in.Event.Source = event.Source.String()
	}

	if event.Declaration != nil {
		if raw, err := json.Marshal(event.Declaration); err == nil {
			in.Declaration = raw
		}
	}

	return in
}

// inCollection reports whether any path segment of the moniker names a
// collection member.
func inCollection(m model.Moniker) bool {
	for _, name := range m.Path() {
		if name.Collection != "" {
			return true
		}
	}
	return false
}
