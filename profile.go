package proxy

import "fmt"

// Scheme names which upstream transport a Profile describes.
type Scheme string

const (
	SchemeDirect Scheme = "direct"
	SchemeHttp   Scheme = "http"
	SchemeSocks5 Scheme = "socks5"
)

// Profile is a tagged variant with three cases: Direct carries no fields;
// Http and Socks5 carry the upstream proxy's host and port. Dispatch on
// Scheme is a small switch, never inheritance.
type Profile struct {
	Scheme Scheme
	Host   string
	Port   int
}

func (p Profile) validate(name string) []string {
	var reasons []string
	switch p.Scheme {
	case SchemeDirect:
	case SchemeHttp, SchemeSocks5:
		if p.Host == "" {
			reasons = append(reasons, fmt.Sprintf("profile %q: scheme %q requires host", name, p.Scheme))
		}
		if p.Port < 1 || p.Port > 65535 {
			reasons = append(reasons, fmt.Sprintf("profile %q: scheme %q has invalid port %d", name, p.Scheme, p.Port))
		}
	default:
		reasons = append(reasons, fmt.Sprintf("profile %q: unknown scheme %q", name, p.Scheme))
	}
	return reasons
}

// ProfileRegistry maps a profile name to its Profile, validated at load
// time so that Router.Resolve followed by Lookup cannot fail at request
// time unless a bug exists.
type ProfileRegistry map[string]Profile

// Lookup returns the profile registered under name.
func (r ProfileRegistry) Lookup(name string) (Profile, bool) {
	p, ok := r[name]
	return p, ok
}
