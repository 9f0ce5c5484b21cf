package decl

import (
	"encoding/json"
	"fmt"
)

// Declaration is the resolved, static description of a component: its
// program, statically declared children, collections, and capability
// routing edges. Once a component is resolved the declaration is
// treated as read-only by the rest of the runtime.
type Declaration struct {
	// Program describes the executable content of the component, if any.
	// Components without a program are pure routing/organizational nodes.
	Program *Program `json:"program,omitempty"`

	// Children are the statically declared child components.
	Children []Child `json:"children,omitempty"`

	// Collections are named groups for dynamically created children.
	Collections []Collection `json:"collections,omitempty"`

	// Uses are the capabilities this component consumes.
	Uses []Use `json:"uses,omitempty"`

	// Offers are the capabilities this component grants to children.
	Offers []Offer `json:"offers,omitempty"`

	// Exposes are the child capabilities this component republishes
	// to its parent.
	Exposes []Expose `json:"exposes,omitempty"`
}

// Program describes the executable content of a component.
type Program struct {
	// Runner names the runner responsible for executing the program
	// (e.g., "wasm").
	Runner string `json:"runner" validate:"required"`

	// Binary is the runner-relative path to the program binary.
	Binary string `json:"binary" validate:"required"`

	// Args are additional arguments passed to the program.
	Args []string `json:"args,omitempty"`

	// Environ are KEY=VALUE environment entries for the program.
	Environ []string `json:"environ,omitempty"`
}

// Child declares a statically defined child component.
type Child struct {
	// Name is the child identifier, unique among the parent's children.
	Name string `json:"name" validate:"required"`

	// Locator is the component locator the resolver uses to resolve
	// the child's declaration.
	Locator string `json:"locator" validate:"required"`
}

// Collection declares a named group for dynamically created children.
type Collection struct {
	// Name is the collection identifier, unique among the parent's
	// collections.
	Name string `json:"name" validate:"required"`
}

// Use declares a capability this component consumes.
type Use struct {
	// Capability is the capability identifier being consumed.
	Capability string `json:"capability" validate:"required"`

	// From is the routing source: parent or framework.
	From Ref `json:"from"`
}

// Offer declares a capability this component grants to a child or
// collection.
type Offer struct {
	// Capability is the capability identifier being offered.
	Capability string `json:"capability" validate:"required"`

	// From is where the capability comes from: parent, self, framework,
	// or a named child.
	From Ref `json:"from"`

	// To is the child or collection the capability is offered to.
	To Ref `json:"to"`
}

// Expose declares a capability this component republishes to its
// parent.
type Expose struct {
	// Capability is the capability identifier being exposed.
	Capability string `json:"capability" validate:"required"`

	// From is where the capability comes from: self or a named child.
	From Ref `json:"from"`
}

// RefKind identifies the kind of routing reference.
type RefKind string

const (
	// RefParent refers to the component's parent.
	RefParent RefKind = "parent"

	// RefSelf refers to the component itself.
	RefSelf RefKind = "self"

	// RefFramework refers to the runtime itself as the capability
	// source.
	RefFramework RefKind = "framework"

	// RefChild refers to a named child of the component.
	RefChild RefKind = "child"

	// RefCollection refers to a named collection of the component.
	RefCollection RefKind = "collection"
)

// Validate checks if the ref kind is one of the defined values.
func (k RefKind) Validate() error {
	switch k {
	case RefParent, RefSelf, RefFramework, RefChild, RefCollection:
		return nil
	default:
		return fmt.Errorf("invalid ref kind: %s", k)
	}
}

// Ref identifies one endpoint of a routing edge.
type Ref struct {
	// Kind is the kind of reference.
	Kind RefKind `json:"kind"`

	// Name is the child or collection name; empty for parent, self,
	// and framework refs.
	Name string `json:"name,omitempty"`
}

// ParentRef returns a ref to the component's parent.
func ParentRef() Ref { return Ref{Kind: RefParent} }

// SelfRef returns a ref to the component itself.
func SelfRef() Ref { return Ref{Kind: RefSelf} }

// FrameworkRef returns a ref to the runtime framework.
func FrameworkRef() Ref { return Ref{Kind: RefFramework} }

// ChildRef returns a ref to the named child.
func ChildRef(name string) Ref { return Ref{Kind: RefChild, Name: name} }

// CollectionRef returns a ref to the named collection.
func CollectionRef(name string) Ref { return Ref{Kind: RefCollection, Name: name} }

// String returns the ref in "kind" or "kind:name" form.
func (r Ref) String() string {
	if r.Name == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Name)
}

// Validate performs structural validation of the declaration:
// ref kinds are known, child and collection names are unique, and
// routing edges reference declared children/collections.
func (d *Declaration) Validate() error {
	children := make(map[string]bool, len(d.Children))
	for _, c := range d.Children {
		if c.Name == "" {
			return fmt.Errorf("child with empty name")
		}
		if children[c.Name] {
			return fmt.Errorf("duplicate child name: %s", c.Name)
		}
		children[c.Name] = true
	}

	collections := make(map[string]bool, len(d.Collections))
	for _, c := range d.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection with empty name")
		}
		if collections[c.Name] {
			return fmt.Errorf("duplicate collection name: %s", c.Name)
		}
		if children[c.Name] {
			return fmt.Errorf("collection name collides with child: %s", c.Name)
		}
		collections[c.Name] = true
	}

	for _, u := range d.Uses {
		if u.Capability == "" {
			return fmt.Errorf("use with empty capability")
		}
		if err := u.From.Kind.Validate(); err != nil {
			return err
		}
		if u.From.Kind != RefParent && u.From.Kind != RefFramework {
			return fmt.Errorf("use %s: from must be parent or framework, got %s", u.Capability, u.From)
		}
	}

	for _, o := range d.Offers {
		if o.Capability == "" {
			return fmt.Errorf("offer with empty capability")
		}
		if err := o.From.Kind.Validate(); err != nil {
			return err
		}
		if err := o.To.Kind.Validate(); err != nil {
			return err
		}
		switch o.To.Kind {
		case RefChild:
			if !children[o.To.Name] {
				return fmt.Errorf("offer %s: unknown target child %q", o.Capability, o.To.Name)
			}
		case RefCollection:
			if !collections[o.To.Name] {
				return fmt.Errorf("offer %s: unknown target collection %q", o.Capability, o.To.Name)
			}
		default:
			return fmt.Errorf("offer %s: to must be a child or collection, got %s", o.Capability, o.To)
		}
		if o.From.Kind == RefChild && !children[o.From.Name] {
			return fmt.Errorf("offer %s: unknown source child %q", o.Capability, o.From.Name)
		}
	}

	for _, e := range d.Exposes {
		if e.Capability == "" {
			return fmt.Errorf("expose with empty capability")
		}
		if err := e.From.Kind.Validate(); err != nil {
			return err
		}
		switch e.From.Kind {
		case RefSelf:
		case RefChild:
			if !children[e.From.Name] {
				return fmt.Errorf("expose %s: unknown source child %q", e.Capability, e.From.Name)
			}
		default:
			return fmt.Errorf("expose %s: from must be self or a child, got %s", e.Capability, e.From)
		}
	}

	return nil
}

// FindChild returns the statically declared child with the given name.
func (d *Declaration) FindChild(name string) (Child, bool) {
	for _, c := range d.Children {
		if c.Name == name {
			return c, true
		}
	}
	return Child{}, false
}

// HasCollection reports whether the declaration defines the named
// collection.
func (d *Declaration) HasCollection(name string) bool {
	for _, c := range d.Collections {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the declaration.
func (d *Declaration) Clone() *Declaration {
	raw, err := json.Marshal(d)
	if err != nil {
		// Declarations are plain data; marshal cannot fail.
		panic(fmt.Sprintf("decl: clone marshal: %v", err))
	}
	var out Declaration
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("decl: clone unmarshal: %v", err))
	}
	return &out
}
