package build

import (
	"testing"

	"github.com/craterbuild/crater/src/common/errors"
)

func TestPluginConf_Policy(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name          string
		required      *bool
		allowedToFail *bool
		want          FailurePolicy
	}{
		{"defaults are mandatory", nil, nil, PolicyMandatory},
		{"explicit required", &yes, nil, PolicyMandatory},
		{"required but allowed to fail", &yes, &yes, PolicyOptionalLoud},
		{"allowed to fail only", nil, &yes, PolicyOptionalLoud},
		{"not required", &no, nil, PolicyOptionalSilent},
		{"not required wins over allowed to fail", &no, &yes, PolicyOptionalSilent},
		{"explicitly not allowed to fail", nil, &no, PolicyMandatory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := PluginConf{Name: "p", Required: tt.required, AllowedToFail: tt.allowedToFail}
			if got := pc.Policy(); got != tt.want {
				t.Errorf("Policy() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakePlugin{key: "known", phase: PhasePreBuild})

	if _, err := r.Resolve("known"); err != nil {
		t.Errorf("unexpected resolve error: %v", err)
	}
	if _, err := r.Resolve("unknown"); !errors.Is(err, errors.ErrUnknownPlugin) {
		t.Errorf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestRegistry_Validate(t *testing.T) {
	notRequired := false
	r := NewRegistry()
	r.Register(&fakePlugin{key: "pre", phase: PhasePreBuild})
	r.Register(&fakePlugin{key: "step", phase: PhaseBuildstep})

	tests := []struct {
		name    string
		conf    PipelineConf
		wantErr error
	}{
		{
			name: "valid pipeline",
			conf: PipelineConf{
				PhasePreBuild:  {{Name: "pre"}},
				PhaseBuildstep: {{Name: "step"}},
			},
		},
		{
			name: "missing required plugin",
			conf: PipelineConf{
				PhasePreBuild: {{Name: "ghost"}},
			},
			wantErr: errors.ErrMissingRequiredPlugin,
		},
		{
			name: "missing optional plugin is fine",
			conf: PipelineConf{
				PhasePreBuild: {{Name: "ghost", Required: &notRequired}},
			},
		},
		{
			name: "duplicate plugin across phases",
			conf: PipelineConf{
				PhasePreBuild: {{Name: "pre"}},
				PhaseExit:     {{Name: "pre"}},
			},
			wantErr: errors.ErrDuplicatePlugin,
		},
		{
			name: "duplicate plugin within a phase",
			conf: PipelineConf{
				PhasePreBuild: {{Name: "pre"}, {Name: "pre"}},
			},
			wantErr: errors.ErrDuplicatePlugin,
		},
		{
			name: "plugin under wrong phase",
			conf: PipelineConf{
				PhaseExit: {{Name: "pre"}},
			},
			wantErr: errors.ErrUnknownPlugin,
		},
		{
			name: "unknown phase name",
			conf: PipelineConf{
				Phase("warmup"): {{Name: "pre", Required: &notRequired}},
			},
			wantErr: errors.ErrInvalidBuildInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.conf)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
