package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/ruteri/storage-control-plane/interfaces"
	"gopkg.in/yaml.v3"
)

// Selection thresholds. Several control-plane behaviors hinge on these exact
// values, so they are named here rather than inlined.
const (
	// HotAccessThreshold is the access count above which content is hot.
	HotAccessThreshold = 100

	// ColdAccessCeiling is the access count below which content may be cold.
	ColdAccessCeiling = 10

	// ColdStalenessAge is how long content must go unaccessed to be cold.
	ColdStalenessAge = 90 * 24 * time.Hour
)

// SelectionInput carries the object attributes policy predicates evaluate.
type SelectionInput struct {
	Size         int64
	Privacy      interfaces.PrivacyClass
	AccessCount  int64
	LastAccessed time.Time
}

// Registry holds the named pinning policies and selects one for an object.
// It is seeded at startup and read-only after, so no locking is needed.
type Registry struct {
	policies map[interfaces.PolicyID]interfaces.PinningPolicy
	rules    []rule
}

// rule pairs a selection predicate with the policy it selects. Rules are
// evaluated top to bottom and the first match wins.
type rule struct {
	policy interfaces.PolicyID
	match  func(SelectionInput) bool
}

// Defaults returns the built-in policy set.
func Defaults() []interfaces.PinningPolicy {
	return []interfaces.PinningPolicy{
		{ID: interfaces.PolicyHot, MinReplicas: 5, MaxReplicas: 8, Regions: []string{"us-east", "us-west", "eu-west", "ap-south"}},
		{ID: interfaces.PolicyCold, MinReplicas: 1, MaxReplicas: 1, Regions: []string{"us-east"}},
		{ID: interfaces.PolicyPublic, MinReplicas: 3, MaxReplicas: 5, Regions: []string{"us-east", "us-west", "eu-west"}},
		{ID: interfaces.PolicyDefault, MinReplicas: 2, MaxReplicas: 3, Regions: []string{"us-east", "eu-west"}},
	}
}

// NewRegistry creates a registry from the given policies. The set must
// include every built-in policy id; missing ones are filled from Defaults.
func NewRegistry(policies []interfaces.PinningPolicy) *Registry {
	byID := make(map[interfaces.PolicyID]interfaces.PinningPolicy)
	for _, p := range Defaults() {
		byID[p.ID] = p
	}
	for _, p := range policies {
		byID[p.ID] = p
	}

	r := &Registry{policies: byID}

	// Priority order: hot, cold, public, default. The trailing default rule
	// always matches, so selection never fails.
	r.rules = []rule{
		{interfaces.PolicyHot, func(in SelectionInput) bool {
			return in.AccessCount > HotAccessThreshold
		}},
		{interfaces.PolicyCold, func(in SelectionInput) bool {
			return in.AccessCount < ColdAccessCeiling &&
				!in.LastAccessed.IsZero() &&
				time.Since(in.LastAccessed) > ColdStalenessAge
		}},
		{interfaces.PolicyPublic, func(in SelectionInput) bool {
			return in.Privacy == interfaces.PrivacyPublic
		}},
		{interfaces.PolicyDefault, func(in SelectionInput) bool {
			return true
		}},
	}

	return r
}

// SelectPolicy evaluates the ordered rules and returns the first match.
// Pure function over the in-memory registry; no error path.
func (r *Registry) SelectPolicy(in SelectionInput) interfaces.PolicyID {
	for _, rule := range r.rules {
		if rule.match(in) {
			return rule.policy
		}
	}
	return interfaces.PolicyDefault
}

// PolicyByID returns the named policy.
func (r *Registry) PolicyByID(id interfaces.PolicyID) (interfaces.PinningPolicy, bool) {
	p, ok := r.policies[id]
	return p, ok
}

// HotCeiling returns the maximum replica count of the hot policy, the upper
// bound for access-driven adjustments.
func (r *Registry) HotCeiling() int {
	return r.policies[interfaces.PolicyHot].MaxReplicas
}

// ColdFloor returns the minimum replica count of the cold policy, the lower
// bound for access-driven adjustments.
func (r *Registry) ColdFloor() int {
	return r.policies[interfaces.PolicyCold].MinReplicas
}

// seedFile is the YAML shape of a policy seed file.
type seedFile struct {
	Policies []interfaces.PinningPolicy `yaml:"policies"`
}

// LoadFile reads a YAML policy seed file and returns a registry built from
// it. Policies absent from the file keep their built-in defaults.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for _, p := range seed.Policies {
		if p.MinReplicas < 0 || p.MaxReplicas < p.MinReplicas {
			return nil, fmt.Errorf("policy %s: invalid replica bounds [%d,%d]", p.ID, p.MinReplicas, p.MaxReplicas)
		}
	}

	return NewRegistry(seed.Policies), nil
}
