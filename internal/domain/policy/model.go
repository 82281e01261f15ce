package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Spec is the tagging policy for a scan run: the ordered set of required
// tag keys plus the default values written during remediation. A Spec is
// loaded once at run start and never reloaded mid-run.
type Spec struct {
	// RequiredTags lists the tag keys every resource must carry, in the
	// order they are reported when missing. Keys are case-sensitive.
	RequiredTags []string `json:"required_tags" yaml:"required_tags"`

	// Defaults maps a required tag key to the value written when the key
	// is absent from a resource. Keys without a default cannot be
	// remediated automatically.
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults"`
}

// Load reads a policy spec from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that the spec is well-formed.
func (s *Spec) Validate() error {
	if len(s.RequiredTags) == 0 {
		return fmt.Errorf("policy must declare at least one required tag")
	}
	seen := make(map[string]struct{}, len(s.RequiredTags))
	for _, key := range s.RequiredTags {
		if key == "" {
			return fmt.Errorf("policy contains an empty tag key")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate required tag key: %s", key)
		}
		seen[key] = struct{}{}
	}
	for key := range s.Defaults {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("default value declared for tag %q which is not a required tag", key)
		}
	}
	return nil
}

// Requires reports whether key is part of the policy.
func (s *Spec) Requires(key string) bool {
	for _, k := range s.RequiredTags {
		if k == key {
			return true
		}
	}
	return false
}

// DefaultFor returns the remediation default for key, if one is declared.
func (s *Spec) DefaultFor(key string) (string, bool) {
	v, ok := s.Defaults[key]
	return v, ok
}
