package routing

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openreef/reef/pkg/decl"
	"github.com/openreef/reef/pkg/model"
	"github.com/openreef/reef/pkg/telemetry"
)

// Router resolves capability requests by statically walking the
// declared offer/expose edges of the component tree. It performs no
// IPC itself: a successful walk produces a Route bound to the concrete
// source, and the transport only opens when the Route is invoked.
type Router struct {
	model  *model.Model
	logger zerolog.Logger
}

// NewRouter creates a router over the given model.
func NewRouter(m *model.Model, logger zerolog.Logger) *Router {
	return &Router{
		model:  m,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Route resolves a use-direction request: the component identified by
// requester consumes the named capability. Every instance on the walk
// is resolved on demand. Routing errors are returned to the caller and
// never mutate tree state.
func (r *Router) Route(ctx context.Context, requester model.Moniker, capability string) (*Route, error) {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		var span trace.Span
		ctx, span = tel.Tracer.StartRouteSpan(ctx, requester.String(), capability)
		defer span.End()
	}

	inst, err := r.resolvedInstance(ctx, requester)
	if err != nil {
		return nil, err
	}

	use, ok := findUse(inst.Declaration(), capability)
	if !ok {
		return nil, routingError(requester, capability, "no use declaration for capability")
	}

	var route *Route
	switch use.From.Kind {
	case decl.RefFramework:
		route = &Route{router: r, capability: capability, source: requester, framework: true}
	case decl.RefParent:
		route, err = r.walkOffers(ctx, inst, capability)
		if err != nil {
			return nil, err
		}
	default:
		return nil, routingError(requester, capability, "unroutable use source "+use.From.String())
	}

	// The routed binding is observable (and vetoable) before any
	// transport is opened.
	event := model.NewCapabilityRoutedEvent(requester, route.source, capability)
	if err := r.model.Hooks().Dispatch(ctx, event); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("requester", requester.String()).
		Str("capability", capability).
		Str("source", route.source.String()).
		Bool("framework", route.framework).
		Msg("Capability routed")
	return route, nil
}

// RouteExposed resolves a parent-direction request into a component's
// exposed capability: the walk starts at the target and follows its
// expose chain downward to the providing descendant.
func (r *Router) RouteExposed(ctx context.Context, target model.Moniker, capability string) (*Route, error) {
	inst, err := r.resolvedInstance(ctx, target)
	if err != nil {
		return nil, err
	}

	route, err := r.walkExposes(ctx, inst, capability)
	if err != nil {
		return nil, err
	}

	event := model.NewCapabilityRoutedEvent(target, route.source, capability)
	if err := r.model.Hooks().Dispatch(ctx, event); err != nil {
		return nil, err
	}
	return route, nil
}

// walkOffers walks upward from the requesting instance through its
// ancestors' offers until the chain terminates.
func (r *Router) walkOffers(ctx context.Context, from *model.ComponentInstance, capability string) (*Route, error) {
	current := from
	for {
		parent, ok := current.Parent()
		if !ok {
			return nil, routingError(from.Moniker(), capability, "offer chain reached the root without a source")
		}
		if err := r.model.Resolve(ctx, parent); err != nil {
			return nil, err
		}

		offer, ok := findOffer(parent.Declaration(), capability, current.Moniker().Leaf())
		if !ok {
			return nil, routingError(from.Moniker(), capability,
				"no matching offer in "+parent.Moniker().String())
		}

		switch offer.From.Kind {
		case decl.RefSelf:
			return &Route{router: r, capability: capability, source: parent.Moniker()}, nil
		case decl.RefFramework:
			return &Route{router: r, capability: capability, source: parent.Moniker(), framework: true}, nil
		case decl.RefParent:
			current = parent
		case decl.RefChild:
			child, err := r.resolvedChild(ctx, parent, offer.From.Name)
			if err != nil {
				return nil, routingError(from.Moniker(), capability, err.Error())
			}
			return r.walkExposes(ctx, child, capability)
		default:
			return nil, routingError(from.Moniker(), capability,
				"unroutable offer source "+offer.From.String())
		}
	}
}

// walkExposes walks downward from an instance through expose
// declarations until a self-providing descendant is found.
func (r *Router) walkExposes(ctx context.Context, from *model.ComponentInstance, capability string) (*Route, error) {
	current := from
	for {
		if err := r.model.Resolve(ctx, current); err != nil {
			return nil, err
		}
		expose, ok := findExpose(current.Declaration(), capability)
		if !ok {
			return nil, routingError(from.Moniker(), capability,
				"no matching expose in "+current.Moniker().String())
		}
		switch expose.From.Kind {
		case decl.RefSelf:
			return &Route{router: r, capability: capability, source: current.Moniker()}, nil
		case decl.RefChild:
			child, err := r.resolvedChild(ctx, current, expose.From.Name)
			if err != nil {
				return nil, routingError(from.Moniker(), capability, err.Error())
			}
			current = child
		default:
			return nil, routingError(from.Moniker(), capability,
				"unroutable expose source "+expose.From.String())
		}
	}
}

// resolvedInstance looks up and resolves the instance at moniker.
func (r *Router) resolvedInstance(ctx context.Context, moniker model.Moniker) (*model.ComponentInstance, error) {
	inst, err := r.model.LookupInstance(ctx, moniker)
	if err != nil {
		return nil, err
	}
	if err := r.model.Resolve(ctx, inst); err != nil {
		return nil, err
	}
	if inst.Declaration() == nil {
		return nil, model.NewConflictError("instance not resolved", nil).
			WithCode(model.ErrCodeRouting).
			WithMoniker(moniker).
			WithOperation("route")
	}
	return inst, nil
}

// resolvedChild returns the named live child, resolved.
func (r *Router) resolvedChild(ctx context.Context, parent *model.ComponentInstance, name string) (*model.ComponentInstance, error) {
	child, ok := parent.LiveChildren()[name]
	if !ok {
		return nil, routingError(parent.Moniker(), name, "offer references missing child "+name)
	}
	if err := r.model.Resolve(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

// findUse returns the first use declaration for the capability.
func findUse(d *decl.Declaration, capability string) (decl.Use, bool) {
	for _, u := range d.Uses {
		if u.Capability == capability {
			return u, true
		}
	}
	return decl.Use{}, false
}

// findOffer returns the first offer for the capability addressed to
// the given child: either the child by name, or the child's
// collection. First match wins.
func findOffer(d *decl.Declaration, capability string, child model.ChildName) (decl.Offer, bool) {
	for _, o := range d.Offers {
		if o.Capability != capability {
			continue
		}
		switch o.To.Kind {
		case decl.RefChild:
			if child.Collection == "" && o.To.Name == child.Name {
				return o, true
			}
		case decl.RefCollection:
			if child.Collection != "" && o.To.Name == child.Collection {
				return o, true
			}
		}
	}
	return decl.Offer{}, false
}

// findExpose returns the first expose declaration for the capability.
func findExpose(d *decl.Declaration, capability string) (decl.Expose, bool) {
	for _, e := range d.Exposes {
		if e.Capability == capability {
			return e, true
		}
	}
	return decl.Expose{}, false
}

// routingError builds the standard routing failure.
func routingError(moniker model.Moniker, capability, message string) *model.ModelError {
	return model.NewPermanentError("routing failed: "+message, nil).
		WithCode(model.ErrCodeRouting).
		WithMoniker(moniker).
		WithOperation("route:" + capability)
}
