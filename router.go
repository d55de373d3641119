package proxy

// Rule pairs a compiled Pattern with the profile name it routes matching
// hosts to.
type Rule struct {
	Pattern Pattern
	Profile string
}

// Router is an ordered rule list plus a default profile name.
type Router struct {
	Default string
	Rules   []Rule
}

// Resolve returns the profile name for host: the first rule whose pattern
// matches, tie-broken by declared order, or Default if none match. O(n) in
// rule count.
func (r Router) Resolve(host string) string {
	for _, rule := range r.Rules {
		if rule.Pattern.Matches(host) {
			return rule.Profile
		}
	}
	return r.Default
}
