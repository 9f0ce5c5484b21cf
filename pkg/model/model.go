package model

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
)

// Resolver maps a component locator to its declaration. Resolution is
// side-effect-free from the model's perspective.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (*decl.Declaration, error)
}

// ProgramHandle represents a running component program.
type ProgramHandle interface {
	// Stop terminates the program.
	Stop(ctx context.Context) error
}

// Runner executes a component's program. A model without a runner
// treats every component as a pure routing node: starting succeeds
// without executing anything.
type Runner interface {
	Run(ctx context.Context, moniker Moniker, declaration *decl.Declaration) (ProgramHandle, error)
}

// TransportEndpoint is the opaque endpoint the transport layer hands
// to a routing function. The model never inspects it.
type TransportEndpoint interface{}

// Connector connects a consumer's endpoint to a provider component.
// The transport layer owns endpoint creation; the model only tells it
// which source to bind.
type Connector interface {
	Connect(ctx context.Context, source Moniker, capability string, endpoint TransportEndpoint) error
}

// Config configures a Model.
type Config struct {
	// RootLocator is the component locator of the root instance.
	RootLocator string

	// Resolver resolves component locators to declarations. Required.
	Resolver Resolver

	// Runner executes component programs. Optional.
	Runner Runner

	// Connector binds routed capabilities to endpoints. Optional.
	Connector Connector

	// Observer instruments lifecycle action executions. Optional.
	Observer ActionObserver

	// Logger is the base structured logger.
	Logger zerolog.Logger
}

// Model owns the root of the component tree, the hook registry, and
// the handles to the external collaborators. It replaces any notion of
// process-global registries: everything reachable from the tree is
// reachable through the Model.
type Model struct {
	root      *ComponentInstance
	hooks     *Hooks
	resolver  Resolver
	runner    Runner
	connector Connector
	observer  ActionObserver
	logger    zerolog.Logger
}

// NewModel creates a model with a root instance in the new state.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Resolver == nil {
		return nil, NewPermanentError("resolver is required", nil)
	}
	if cfg.RootLocator == "" {
		return nil, NewPermanentError("root locator is required", nil)
	}

	m := &Model{
		hooks:     NewHooks(),
		resolver:  cfg.Resolver,
		runner:    cfg.Runner,
		connector: cfg.Connector,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With().Str("component", "model").Logger(),
	}
	m.root = newInstance(m, RootMoniker(), cfg.RootLocator, nil)
	return m, nil
}

// Root returns the root instance.
func (m *Model) Root() *ComponentInstance {
	return m.root
}

// Hooks returns the model's hook registry.
func (m *Model) Hooks() *Hooks {
	return m.hooks
}

// Resolver returns the model's resolver handle.
func (m *Model) Resolver() Resolver {
	return m.resolver
}

// Discover announces the instance's existence. Idempotent.
func (m *Model) Discover(ctx context.Context, inst *ComponentInstance) error {
	return inst.actions.Register(ctx, inst, NewDiscoverAction())
}

// Resolve ensures the instance's declaration is resolved. Idempotent;
// a resolution failure leaves the instance discovered and retriable.
func (m *Model) Resolve(ctx context.Context, inst *ComponentInstance) error {
	return inst.actions.Register(ctx, inst, NewResolveAction())
}

// DeleteChild destroys the named child of parent (children first) and
// removes it from the live children map. Deleting an absent child is a
// successful no-op.
func (m *Model) DeleteChild(ctx context.Context, parent *ComponentInstance, child ChildName) error {
	return parent.actions.Register(ctx, parent, NewDeleteChildAction(child.String()))
}

// PurgeChild drives the named child of parent through terminal
// teardown: the whole subtree is destroyed bottom-up, then purged
// bottom-up. Purging an absent child is a successful no-op.
func (m *Model) PurgeChild(ctx context.Context, parent *ComponentInstance, child ChildName) error {
	return parent.actions.Register(ctx, parent, NewPurgeChildAction(child.String()))
}

// CreateChild creates a dynamic child in one of parent's declared
// collections. The child is announced (discovered) before CreateChild
// returns.
func (m *Model) CreateChild(ctx context.Context, parent *ComponentInstance, collection, name, locator string) (*ComponentInstance, error) {
	if err := m.Resolve(ctx, parent); err != nil {
		return nil, err
	}
	d := parent.Declaration()
	if d == nil {
		return nil, NewConflictError("parent not resolved", nil).
			WithMoniker(parent.moniker).
			WithOperation("create_child")
	}
	if !d.HasCollection(collection) {
		return nil, NewPermanentError("unknown collection", nil).
			WithCode(ErrCodeInstanceNotFound).
			WithMoniker(parent.moniker).
			WithOperation("create_child")
	}

	cn := NewCollectionChildName(collection, name)
	child := newInstance(m, parent.moniker.Child(cn), locator, parent)
	if !parent.addChild(cn.String(), child) {
		msg := "child already exists"
		if _, retained := parent.destroyedChild(cn.String()); retained {
			msg = "child name retained until purge"
		}
		return nil, NewConflictError(msg, nil).
			WithMoniker(parent.moniker.Child(cn)).
			WithOperation("create_child")
	}
	if err := m.Discover(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

// LookupInstance walks the tree from the root to the given moniker,
// resolving each intermediate instance on demand.
func (m *Model) LookupInstance(ctx context.Context, moniker Moniker) (*ComponentInstance, error) {
	current := m.root
	for _, cn := range moniker.Path() {
		if err := m.Resolve(ctx, current); err != nil {
			return nil, err
		}
		child, ok := current.liveChild(cn.String())
		if !ok {
			return nil, NewPermanentError("no such instance", nil).
				WithCode(ErrCodeInstanceNotFound).
				WithMoniker(moniker).
				WithOperation("lookup")
		}
		current = child
	}
	return current, nil
}

// Start ensures the component identified by moniker is executing. It
// resolves the instance on demand and is idempotent: concurrent calls
// for the same moniker observe the same running instance.
func (m *Model) Start(ctx context.Context, moniker Moniker, reason StartReason) (*ComponentInstance, error) {
	inst, err := m.LookupInstance(ctx, moniker)
	if err != nil {
		return nil, err
	}
	if err := inst.actions.Register(ctx, inst, NewStartAction(reason)); err != nil {
		return nil, err
	}
	return inst, nil
}

// Connect binds a routed capability to a consumer's endpoint through
// the configured connector.
func (m *Model) Connect(ctx context.Context, source Moniker, capability string, endpoint TransportEndpoint) error {
	if m.connector == nil {
		return NewPermanentError("no connector configured", nil).
			WithCode(ErrCodeRouting).
			WithMoniker(source).
			WithOperation("connect")
	}
	return m.connector.Connect(ctx, source, capability, endpoint)
}

// InstanceInfo is one node of a topology snapshot.
type InstanceInfo struct {
	// Moniker is the instance's absolute moniker.
	Moniker string `json:"moniker"`

	// Locator is the instance's component locator.
	Locator string `json:"locator"`

	// State is the instance's lifecycle state at snapshot time.
	State InstanceState `json:"state"`

	// Started reports whether the instance's program is executing.
	Started bool `json:"started"`
}

// Topology returns a depth-first snapshot of the live tree, parents
// before children, siblings in name order.
func (m *Model) Topology() []InstanceInfo {
	var out []InstanceInfo
	var walk func(inst *ComponentInstance)
	walk = func(inst *ComponentInstance) {
		out = append(out, InstanceInfo{
			Moniker: inst.moniker.String(),
			Locator: inst.locator,
			State:   inst.State(),
			Started: inst.IsStarted(),
		})
		children := inst.LiveChildren()
		names := make([]string, 0, len(children))
		for name := range children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			walk(children[name])
		}
	}
	walk(m.root)
	return out
}
