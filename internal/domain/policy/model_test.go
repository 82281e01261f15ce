package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `required_tags:
  - Environment
  - Owner
  - CostCenter
defaults:
  Environment: production
  CostCenter: unassigned
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"Environment", "Owner", "CostCenter"}
	if len(spec.RequiredTags) != len(want) {
		t.Fatalf("RequiredTags = %v, want %v", spec.RequiredTags, want)
	}
	for i, tag := range want {
		if spec.RequiredTags[i] != tag {
			t.Errorf("RequiredTags[%d] = %q, want %q", i, spec.RequiredTags[i], tag)
		}
	}

	if v, ok := spec.DefaultFor("Environment"); !ok || v != "production" {
		t.Errorf("DefaultFor(Environment) = %q, %v; want production, true", v, ok)
	}
	if _, ok := spec.DefaultFor("Owner"); ok {
		t.Error("DefaultFor(Owner) should report no default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name: "valid",
			spec: Spec{
				RequiredTags: []string{"Environment", "Owner"},
				Defaults:     map[string]string{"Environment": "dev"},
			},
		},
		{
			name:    "no required tags",
			spec:    Spec{},
			wantErr: "at least one required tag",
		},
		{
			name:    "empty tag key",
			spec:    Spec{RequiredTags: []string{"Environment", ""}},
			wantErr: "empty tag key",
		},
		{
			name:    "duplicate tag key",
			spec:    Spec{RequiredTags: []string{"Owner", "Owner"}},
			wantErr: "duplicate required tag",
		},
		{
			name: "default for unknown tag",
			spec: Spec{
				RequiredTags: []string{"Owner"},
				Defaults:     map[string]string{"Team": "platform"},
			},
			wantErr: "not a required tag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequiresIsCaseSensitive(t *testing.T) {
	spec := Spec{RequiredTags: []string{"Environment"}}
	if !spec.Requires("Environment") {
		t.Error("Requires(Environment) = false, want true")
	}
	if spec.Requires("environment") {
		t.Error("Requires(environment) = true, want false for different case")
	}
}
