package decl

import (
	"strings"
	"testing"
)

func validDecl() *Declaration {
	return &Declaration{
		Program: &Program{Runner: "wasm", Binary: "bin/echo.wasm"},
		Children: []Child{
			{Name: "logger", Locator: "cue://logger.cue"},
			{Name: "netstack", Locator: "cue://netstack.cue"},
		},
		Collections: []Collection{{Name: "workers"}},
		Uses: []Use{
			{Capability: "svc.time", From: ParentRef()},
			{Capability: "svc.introspect", From: FrameworkRef()},
		},
		Offers: []Offer{
			{Capability: "svc.log", From: ChildRef("logger"), To: ChildRef("netstack")},
			{Capability: "svc.net", From: ChildRef("netstack"), To: CollectionRef("workers")},
			{Capability: "svc.time", From: ParentRef(), To: CollectionRef("workers")},
		},
		Exposes: []Expose{
			{Capability: "svc.net", From: ChildRef("netstack")},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validDecl().Validate(); err != nil {
		t.Fatalf("expected valid declaration, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Declaration)
		wantSub string
	}{
		{
			name: "duplicate child",
			mutate: func(d *Declaration) {
				d.Children = append(d.Children, Child{Name: "logger", Locator: "cue://dup.cue"})
			},
			wantSub: "duplicate child",
		},
		{
			name: "offer to unknown child",
			mutate: func(d *Declaration) {
				d.Offers[0].To = ChildRef("ghost")
			},
			wantSub: "unknown target child",
		},
		{
			name: "offer from unknown child",
			mutate: func(d *Declaration) {
				d.Offers[0].From = ChildRef("ghost")
			},
			wantSub: "unknown source child",
		},
		{
			name: "use from self",
			mutate: func(d *Declaration) {
				d.Uses[0].From = SelfRef()
			},
			wantSub: "parent or framework",
		},
		{
			name: "expose from parent",
			mutate: func(d *Declaration) {
				d.Exposes[0].From = ParentRef()
			},
			wantSub: "self or a child",
		},
		{
			name: "collection name collides",
			mutate: func(d *Declaration) {
				d.Collections = append(d.Collections, Collection{Name: "logger"})
			},
			wantSub: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDecl()
			tt.mutate(d)
			err := d.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := validDecl()
	c := d.Clone()
	c.Children[0].Name = "mutated"
	if d.Children[0].Name != "logger" {
		t.Fatal("clone shares children with original")
	}
	if got, ok := d.FindChild("netstack"); !ok || got.Locator != "cue://netstack.cue" {
		t.Fatalf("FindChild returned %+v, %v", got, ok)
	}
	if !d.HasCollection("workers") || d.HasCollection("ghost") {
		t.Fatal("HasCollection mismatch")
	}
}

func TestRefString(t *testing.T) {
	if got := ChildRef("logger").String(); got != "child:logger" {
		t.Fatalf("ChildRef string = %q", got)
	}
	if got := ParentRef().String(); got != "parent" {
		t.Fatalf("ParentRef string = %q", got)
	}
}
