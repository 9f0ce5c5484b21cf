package routing

import (
	"context"

	"github.com/openreef/reef/pkg/model"
)

// Route is a capability request bound to its concrete source. The
// binding is lazy: no component starts and no transport opens until
// Open is invoked.
type Route struct {
	router     *Router
	capability string
	source     model.Moniker
	framework  bool
}

// Capability returns the routed capability identifier.
func (r *Route) Capability() string {
	return r.capability
}

// Source returns the moniker of the providing component. For
// framework capabilities this is the component the framework provides
// the capability at.
func (r *Route) Source() model.Moniker {
	return r.source
}

// IsFramework reports whether the capability is provided by the
// runtime itself rather than a component's program.
func (r *Route) IsFramework() bool {
	return r.framework
}

// Open starts the source component if it is not already running, then
// connects the caller's endpoint to the provider. Framework
// capabilities skip the start: the runtime serves them directly.
func (r *Route) Open(ctx context.Context, endpoint model.TransportEndpoint) error {
	if !r.framework {
		if _, err := r.router.model.Start(ctx, r.source, model.StartReasonCapabilityAccess); err != nil {
			return err
		}
	}
	return r.router.model.Connect(ctx, r.source, r.capability, endpoint)
}
