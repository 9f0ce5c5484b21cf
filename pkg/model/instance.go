package model

import (
	"sync"
	"weak"

	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/decl"
)

// ComponentInstance is one node in the component tree. Its state and
// children are mutated only by lifecycle actions while holding the
// instance's own short-lived lock; no operation holds two instances'
// locks at once.
type ComponentInstance struct {
	// Immutable after creation.
	model   *Model
	moniker Moniker
	locator string
	parent  weak.Pointer[ComponentInstance]
	actions *ActionSet

	// mu guards everything below. It is held only for short critical
	// sections; actions never hold two instances' locks at once.
	mu          sync.Mutex
	state       InstanceState
	declaration *decl.Declaration

	// children holds owning references to live children, keyed by the
	// child name string. Entries leave this map atomically with the
	// child's destroyed transition.
	children map[string]*ComponentInstance

	// destroyed retains destroyed children until they are purged.
	destroyedChildren []*ComponentInstance

	// announcedChildren records static child names whose Discovered
	// event was already dispatched, so a retried resolution does not
	// announce the same child twice.
	announcedChildren map[string]struct{}

	started     bool
	startReason StartReason
	program     ProgramHandle
}

// newInstance creates an instance in the new state. parent is nil for
// the root.
func newInstance(m *Model, moniker Moniker, locator string, parent *ComponentInstance) *ComponentInstance {
	inst := &ComponentInstance{
		model:    m,
		moniker:  moniker,
		locator:  locator,
		actions:  NewActionSet(),
		state:    StateNew,
		children: make(map[string]*ComponentInstance),
	}
	if parent != nil {
		inst.parent = weak.Make(parent)
	}
	return inst
}

// Moniker returns the instance's absolute moniker.
func (c *ComponentInstance) Moniker() Moniker {
	return c.moniker
}

// Locator returns the component locator the resolver uses for this
// instance.
func (c *ComponentInstance) Locator() string {
	return c.locator
}

// State returns the instance's current lifecycle state.
func (c *ComponentInstance) State() InstanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Declaration returns the resolved declaration, or nil if the instance
// is not resolved.
func (c *ComponentInstance) Declaration() *decl.Declaration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declaration
}

// Parent returns the parent instance. The second return is false for
// the root or when the parent is already gone.
func (c *ComponentInstance) Parent() (*ComponentInstance, bool) {
	p := c.parent.Value()
	return p, p != nil
}

// Actions returns the instance's action set.
func (c *ComponentInstance) Actions() *ActionSet {
	return c.actions
}

// IsStarted reports whether the instance's program is executing.
func (c *ComponentInstance) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// StartReason returns why the instance was first started; empty if it
// never started.
func (c *ComponentInstance) StartReason() StartReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startReason
}

// LiveChildren returns a snapshot of the live children keyed by child
// name string.
func (c *ComponentInstance) LiveChildren() map[string]*ComponentInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*ComponentInstance, len(c.children))
	for k, v := range c.children {
		out[k] = v
	}
	return out
}

// liveChild returns the live child with the given name.
func (c *ComponentInstance) liveChild(name string) (*ComponentInstance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	child, ok := c.children[name]
	return child, ok
}

// childAnnounced reports whether a Discovered event was already
// dispatched for the named static child.
func (c *ComponentInstance) childAnnounced(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.announcedChildren[name]
	return ok
}

// markChildAnnounced records that the named static child's Discovered
// event was dispatched.
func (c *ComponentInstance) markChildAnnounced(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.announcedChildren == nil {
		c.announcedChildren = make(map[string]struct{})
	}
	c.announcedChildren[name] = struct{}{}
}

// destroyedChild returns the destroyed-but-unpurged child with the
// given name.
func (c *ComponentInstance) destroyedChild(name string) (*ComponentInstance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.destroyedChildren {
		if d.moniker.Leaf().String() == name {
			return d, true
		}
	}
	return nil, false
}

// destroyedChildNames returns a snapshot of the names of destroyed
// children awaiting purge.
func (c *ComponentInstance) destroyedChildNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.destroyedChildren))
	for _, d := range c.destroyedChildren {
		names = append(names, d.moniker.Leaf().String())
	}
	return names
}

// retireChild moves a destroyed child out of the live children map,
// retaining it until purge. The move happens atomically with respect
// to the parent's lock.
func (c *ComponentInstance) retireChild(name string, child *ComponentInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.children[name]; ok && current == child {
		delete(c.children, name)
		c.destroyedChildren = append(c.destroyedChildren, child)
	}
}

// dropDestroyedChild removes a purged child from the retained list.
func (c *ComponentInstance) dropDestroyedChild(child *ComponentInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.destroyedChildren[:0]
	for _, d := range c.destroyedChildren {
		if d != child {
			kept = append(kept, d)
		}
	}
	c.destroyedChildren = kept
}

// addChild inserts a live child. It reports false if the instance is
// past resolution, a live child with the same name already exists, or
// a destroyed child with the same name is still retained. A retained
// name stays taken until purge so purge-scoped work cannot be
// confused between the old instance and a new one.
func (c *ComponentInstance) addChild(name string, child *ComponentInstance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return false
	}
	if _, ok := c.children[name]; ok {
		return false
	}
	for _, d := range c.destroyedChildren {
		if d.moniker.Leaf().String() == name {
			return false
		}
	}
	c.children[name] = child
	return true
}

// logger returns the model logger scoped to this instance.
func (c *ComponentInstance) logger() *zerolog.Logger {
	l := c.model.logger.With().Str("moniker", c.moniker.String()).Logger()
	return &l
}
