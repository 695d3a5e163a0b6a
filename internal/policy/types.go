package policy

import (
	"sort"

	"github.com/davidahmann/strix/pkg/types"
)

// Rule governs one (artifact type, environment) pair.
type Rule struct {
	RiskLevel         string            `json:"risk_level" yaml:"risk_level"`
	ApprovalsRequired int               `json:"approvals_required" yaml:"approvals_required"`
	Constraints       types.Constraints `json:"constraints" yaml:"constraints"`
}

type Key struct {
	ArtifactType string
	Environment  string
}

// Table maps artifact type to environment to Rule. A Table held by an Engine
// is never mutated; reloads replace it wholesale.
type Table map[string]map[string]Rule

// Lookup matches both keys exactly and case-sensitively.
func (t Table) Lookup(artifactType, environment string) (Rule, bool) {
	envs, ok := t[artifactType]
	if !ok {
		return Rule{}, false
	}
	rule, ok := envs[environment]
	return rule, ok
}

// Clone deep-copies the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for artifact, envs := range t {
		inner := make(map[string]Rule, len(envs))
		for env, rule := range envs {
			rule.Constraints = rule.Constraints.Clone()
			inner[env] = rule
		}
		out[artifact] = inner
	}
	return out
}

// Keys lists every (artifact type, environment) pair in sorted order.
func (t Table) Keys() []Key {
	keys := make([]Key, 0, len(t))
	for artifact, envs := range t {
		for env := range envs {
			keys = append(keys, Key{ArtifactType: artifact, Environment: env})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ArtifactType != keys[j].ArtifactType {
			return keys[i].ArtifactType < keys[j].ArtifactType
		}
		return keys[i].Environment < keys[j].Environment
	})
	return keys
}

// EmptyArtifactTypes lists artifact types with no environments. They are
// legal but can never match.
func (t Table) EmptyArtifactTypes() []string {
	var out []string
	for artifact, envs := range t {
		if len(envs) == 0 {
			out = append(out, artifact)
		}
	}
	sort.Strings(out)
	return out
}

func (t Table) view() map[string]any {
	out := make(map[string]any, len(t))
	for artifact, envs := range t {
		inner := make(map[string]any, len(envs))
		for env, rule := range envs {
			inner[env] = map[string]any{
				"risk_level":         rule.RiskLevel,
				"approvals_required": rule.ApprovalsRequired,
				"constraints":        rule.Constraints.View(),
			}
		}
		out[artifact] = inner
	}
	return out
}
