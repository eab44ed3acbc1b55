package ecs

import (
	"fmt"
	"maps"
	"slices"
)

// RequiredRule says that adding Trigger to an entity also adds Required,
// built by Factory, unless the entity already has it.
type RequiredRule struct {
	Trigger  string
	Required string
	Factory  func() any
}

// RequiredComponents holds the required-component rules of a storage. The
// rules form a DAG over component names; registration rejects any edge that
// would close a cycle.
type RequiredComponents struct {
	rules map[string][]RequiredRule
}

func newRequiredComponents() *RequiredComponents {
	return &RequiredComponents{rules: make(map[string][]RequiredRule)}
}

// Register adds a rule. It fails without changing anything on
// self-reference, on a duplicate trigger/required pair, or when required
// already (transitively) requires trigger.
func (rc *RequiredComponents) Register(rule RequiredRule) error {
	if rule.Factory == nil {
		return fmt.Errorf("%w: nil factory for %q -> %q", ErrComponentType, rule.Trigger, rule.Required)
	}
	if rule.Trigger == rule.Required {
		return fmt.Errorf("%w: %q", ErrRequiredSelf, rule.Trigger)
	}
	for _, existing := range rc.rules[rule.Trigger] {
		if existing.Required == rule.Required {
			return fmt.Errorf("%w: %q -> %q", ErrRequiredDuplicate, rule.Trigger, rule.Required)
		}
	}
	if path, ok := rc.path(rule.Required, rule.Trigger); ok {
		return fmt.Errorf("%w: %q -> %v", ErrRequiredCycle, rule.Trigger, path)
	}

	rc.rules[rule.Trigger] = append(rc.rules[rule.Trigger], rule)
	return nil
}

// path searches the rule graph depth-first for a route from -> to. Visited
// nodes are skipped, so shared sub-graphs are walked once.
func (rc *RequiredComponents) path(from, to string) ([]string, bool) {
	visited := make(map[string]bool)
	var walk func(node string, trail []string) ([]string, bool)
	walk = func(node string, trail []string) ([]string, bool) {
		trail = append(trail, node)
		if node == to {
			return trail, true
		}
		if visited[node] {
			return nil, false
		}
		visited[node] = true
		for _, rule := range rc.rules[node] {
			if found, ok := walk(rule.Required, trail); ok {
				return found, true
			}
		}
		return nil, false
	}
	return walk(from, nil)
}

// RulesFor returns the rules triggered by name in registration order.
func (rc *RequiredComponents) RulesFor(name string) []RequiredRule {
	return rc.rules[name]
}

// Closure returns every component transitively required by name, in the
// order they would be added.
func (rc *RequiredComponents) Closure(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	var walk func(string)
	walk = func(node string) {
		for _, rule := range rc.rules[node] {
			if seen[rule.Required] {
				continue
			}
			seen[rule.Required] = true
			out = append(out, rule.Required)
			walk(rule.Required)
		}
	}
	walk(name)
	return out
}

func (rc *RequiredComponents) clone() *RequiredComponents {
	out := newRequiredComponents()
	for trigger, rules := range rc.rules {
		out.rules[trigger] = slices.Clone(rules)
	}
	return out
}

// Len returns the number of registered rules.
func (rc *RequiredComponents) Len() int {
	n := 0
	for rules := range maps.Values(rc.rules) {
		n += len(rules)
	}
	return n
}
