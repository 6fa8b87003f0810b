package build

import (
	"strings"
	"testing"

	"github.com/craterbuild/crater/src/common/errors"
)

func TestParams_Validate(t *testing.T) {
	valid := func() *Params {
		return &Params{
			Source:    SourceSpec{URI: "git://example.com/app.git", Ref: "main"},
			Platforms: []string{"x86_64", "aarch64"},
			Component: "app",
			Version:   "1.0",
			Release:   "2",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Params)
		problem string
	}{
		{"valid", func(p *Params) {}, ""},
		{"missing source uri", func(p *Params) { p.Source.URI = "" }, "source.uri"},
		{"no platforms", func(p *Params) { p.Platforms = nil }, "platform"},
		{"invalid platform name", func(p *Params) { p.Platforms = []string{"x86-64"} }, "invalid platform"},
		{"duplicate platform", func(p *Params) { p.Platforms = []string{"x86_64", "x86_64"} }, "twice"},
		{"missing component", func(p *Params) { p.Component = "" }, "component"},
		{"invalid component", func(p *Params) { p.Component = "My App" }, "invalid component"},
		{"missing version", func(p *Params) { p.Version = "" }, "version"},
		{"scratch and isolated", func(p *Params) { p.Scratch, p.Isolated = true, true }, "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.problem == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, errors.ErrInvalidBuildInput) {
				t.Fatalf("expected ErrInvalidBuildInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("expected message mentioning %q, got %q", tt.problem, err.Error())
			}
		})
	}
}

func TestParams_ValidateCollectsAllProblems(t *testing.T) {
	p := &Params{}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"source.uri", "platform", "component", "version"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected combined message to mention %q, got %q", want, msg)
		}
	}
}
