package model

import (
	"fmt"
	"strings"
)

// ChildName identifies one child of a component: a name plus the
// optional collection the child was created in.
type ChildName struct {
	// Collection is the collection the child belongs to; empty for
	// statically declared children.
	Collection string `json:"collection,omitempty"`

	// Name is the child's name, unique within the parent.
	Name string `json:"name"`
}

// NewChildName creates a child name outside any collection.
func NewChildName(name string) ChildName {
	return ChildName{Name: name}
}

// NewCollectionChildName creates a child name inside a collection.
func NewCollectionChildName(collection, name string) ChildName {
	return ChildName{Collection: collection, Name: name}
}

// ParseChildName parses "name" or "collection:name".
func ParseChildName(s string) (ChildName, error) {
	if s == "" {
		return ChildName{}, fmt.Errorf("empty child name")
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		coll, name := s[:idx], s[idx+1:]
		if coll == "" || name == "" {
			return ChildName{}, fmt.Errorf("malformed child name: %q", s)
		}
		return ChildName{Collection: coll, Name: name}, nil
	}
	return ChildName{Name: s}, nil
}

// String returns "name" or "collection:name".
func (c ChildName) String() string {
	if c.Collection == "" {
		return c.Name
	}
	return c.Collection + ":" + c.Name
}

// IsZero reports whether the child name is empty.
func (c ChildName) IsZero() bool {
	return c.Name == "" && c.Collection == ""
}

// Moniker is the absolute path of child names identifying one component
// instance from the root. The root moniker is the empty path, rendered
// as "/". Monikers are immutable values.
type Moniker struct {
	path []ChildName
}

// RootMoniker returns the moniker of the root component.
func RootMoniker() Moniker {
	return Moniker{}
}

// ParseMoniker parses an absolute moniker such as "/" or
// "/core/coll:worker".
func ParseMoniker(s string) (Moniker, error) {
	if s == "" || s[0] != '/' {
		return Moniker{}, fmt.Errorf("moniker must be absolute: %q", s)
	}
	if s == "/" {
		return RootMoniker(), nil
	}
	segments := strings.Split(s[1:], "/")
	path := make([]ChildName, 0, len(segments))
	for _, seg := range segments {
		cn, err := ParseChildName(seg)
		if err != nil {
			return Moniker{}, fmt.Errorf("moniker %q: %w", s, err)
		}
		path = append(path, cn)
	}
	return Moniker{path: path}, nil
}

// String renders the moniker as an absolute path.
func (m Moniker) String() string {
	if len(m.path) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, cn := range m.path {
		b.WriteByte('/')
		b.WriteString(cn.String())
	}
	return b.String()
}

// IsRoot reports whether the moniker identifies the root component.
func (m Moniker) IsRoot() bool {
	return len(m.path) == 0
}

// Len returns the depth of the moniker (0 for the root).
func (m Moniker) Len() int {
	return len(m.path)
}

// Leaf returns the last child name. Calling Leaf on the root moniker
// returns the zero child name.
func (m Moniker) Leaf() ChildName {
	if len(m.path) == 0 {
		return ChildName{}
	}
	return m.path[len(m.path)-1]
}

// Parent returns the moniker with the last child name removed. The
// parent of the root is the root itself.
func (m Moniker) Parent() Moniker {
	if len(m.path) == 0 {
		return m
	}
	return Moniker{path: m.path[:len(m.path)-1:len(m.path)-1]}
}

// Child returns the moniker extended with the given child name.
func (m Moniker) Child(cn ChildName) Moniker {
	path := make([]ChildName, len(m.path)+1)
	copy(path, m.path)
	path[len(m.path)] = cn
	return Moniker{path: path}
}

// Path returns a copy of the moniker's child names from the root.
func (m Moniker) Path() []ChildName {
	out := make([]ChildName, len(m.path))
	copy(out, m.path)
	return out
}

// Equal reports whether two monikers identify the same instance.
func (m Moniker) Equal(other Moniker) bool {
	if len(m.path) != len(other.path) {
		return false
	}
	for i := range m.path {
		if m.path[i] != other.path[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether m is a strict ancestor of other.
func (m Moniker) IsAncestorOf(other Moniker) bool {
	if len(m.path) >= len(other.path) {
		return false
	}
	for i := range m.path {
		if m.path[i] != other.path[i] {
			return false
		}
	}
	return true
}
