package proxy

import (
	"fmt"
	"sync/atomic"
)

// Snapshot is an immutable, validated view of the current profiles and
// rules, safely shareable across goroutines.
type Snapshot struct {
	Profiles ProfileRegistry
	Router   Router
}

// Resolve looks up the profile for host, returning a *ResolveError if the
// router names a profile the registry doesn't carry. Validation guarantees
// this never happens in practice; surfacing it as an error rather than a
// panic keeps the bug contained to a single request (§7: treated as 502).
func (s *Snapshot) Resolve(host string) (Profile, error) {
	name := s.Router.Resolve(host)
	p, ok := s.Profiles.Lookup(name)
	if !ok {
		return Profile{}, &ResolveError{Host: host, Profile: name}
	}
	return p, nil
}

// Validate checks the invariants from §4.5: the default and every rule's
// profile name must be registered, and every profile must itself be legal.
// It returns the full list of violations rather than stopping at the
// first, matching Config{Validation{reasons}}.
func Validate(profiles ProfileRegistry, router Router) []string {
	var reasons []string

	if _, ok := profiles.Lookup(router.Default); !ok {
		reasons = append(reasons, fmt.Sprintf("switch.default %q is not a registered profile", router.Default))
	}
	for _, rule := range router.Rules {
		if _, ok := profiles.Lookup(rule.Profile); !ok {
			reasons = append(reasons, fmt.Sprintf("rule %q references unregistered profile %q", rule.Pattern, rule.Profile))
		}
	}
	for name, p := range profiles {
		reasons = append(reasons, p.validate(name)...)
	}
	return reasons
}

// Cell holds the currently active Snapshot. A single writer swaps it
// atomically via Store; readers call Load once per request and hold the
// result for the request's lifetime so that in-flight handlers never
// observe a mix of old and new configuration.
type Cell struct {
	ptr atomic.Pointer[Snapshot]
}

// NewCell creates a Cell holding initial.
func NewCell(initial *Snapshot) *Cell {
	c := &Cell{}
	c.ptr.Store(initial)
	return c
}

// Load returns the currently installed snapshot.
func (c *Cell) Load() *Snapshot { return c.ptr.Load() }

// Store atomically replaces the active snapshot. Previously loaded handles
// remain valid: handlers holding them keep using the snapshot they
// captured at accept time.
func (c *Cell) Store(s *Snapshot) { c.ptr.Store(s) }
