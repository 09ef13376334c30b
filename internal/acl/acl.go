// Package acl evaluates peer IPv4 addresses against allow or deny rule lists.
//
// A rule is a dotted-quad pattern in which any segment may be the wildcard
// "*". Matching is per segment: "192.168.10.*" matches "192.168.10.7" but
// neither "192.168.11.7" nor "192.168.10.7.1".
package acl

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// Mode selects how the rule lists are applied.
type Mode uint8

const (
	// NoRules allows every peer.
	NoRules Mode = iota
	// AllowList allows only peers matching the allow list.
	AllowList
	// DenyList allows every peer except those matching the deny list.
	DenyList
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case NoRules:
		return "none"
	case AllowList:
		return "allow"
	case DenyList:
		return "deny"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "norules":
		return NoRules, nil
	case "allow", "allowlist", "whitelist":
		return AllowList, nil
	case "deny", "denylist", "blacklist":
		return DenyList, nil
	default:
		return NoRules, fmt.Errorf("unknown access mode %q", s)
	}
}

// Rule is a parsed dotted-quad pattern. An empty segment string never
// occurs; "*" marks a wildcard segment.
type Rule struct {
	raw      string
	segments []string
}

// ParseRule splits a pattern into its segments. Any segment count is
// accepted; a rule only matches addresses with the same count.
func ParseRule(pattern string) (Rule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return Rule{}, fmt.Errorf("empty access rule")
	}
	segs := strings.Split(pattern, ".")
	for _, s := range segs {
		if s == "" {
			return Rule{}, fmt.Errorf("invalid access rule %q: empty segment", pattern)
		}
	}
	return Rule{raw: pattern, segments: segs}, nil
}

// String returns the rule as written.
func (r Rule) String() string { return r.raw }

// Match reports whether addr matches the rule segment by segment.
func (r Rule) Match(addr string) bool {
	segs := strings.Split(addr, ".")
	if len(segs) != len(r.segments) {
		return false
	}
	for i, s := range r.segments {
		if s != "*" && s != segs[i] {
			return false
		}
	}
	return true
}

// List holds the active mode and both rule lists. The zero value allows
// everything. Reads copy the lists under the lock and evaluate the copy.
type List struct {
	mu    sync.RWMutex
	mode  Mode
	allow []Rule
	deny  []Rule
}

// New returns a List in the given mode with the given rules.
func New(mode Mode, allow, deny []string) (*List, error) {
	l := &List{}
	l.SetMode(mode)
	if err := l.SetAllow(allow); err != nil {
		return nil, err
	}
	if err := l.SetDeny(deny); err != nil {
		return nil, err
	}
	return l, nil
}

// Mode returns the current mode.
func (l *List) Mode() Mode {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mode
}

// SetMode switches the evaluation mode.
func (l *List) SetMode(m Mode) {
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
}

// SetAllow replaces the allow list. Nothing changes if a pattern is invalid.
func (l *List) SetAllow(patterns []string) error {
	rules, err := parseRules(patterns)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.allow = rules
	l.mu.Unlock()
	return nil
}

// SetDeny replaces the deny list. Nothing changes if a pattern is invalid.
func (l *List) SetDeny(patterns []string) error {
	rules, err := parseRules(patterns)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.deny = rules
	l.mu.Unlock()
	return nil
}

// Allowed returns a copy of the allow list patterns.
func (l *List) Allowed() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return patterns(l.allow)
}

// Denied returns a copy of the deny list patterns.
func (l *List) Denied() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return patterns(l.deny)
}

// IsAllowed evaluates a peer address. host may carry a port
// ("10.0.0.5:4242"); it is stripped before matching.
func (l *List) IsAllowed(host string) bool {
	if l == nil {
		return true
	}
	mode, rules := l.snapshot()

	addr := HostOnly(host)
	switch mode {
	case AllowList:
		return matchAny(rules, addr)
	case DenyList:
		return !matchAny(rules, addr)
	default:
		return true
	}
}

func (l *List) snapshot() (Mode, []Rule) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var src []Rule
	switch l.mode {
	case AllowList:
		src = l.allow
	case DenyList:
		src = l.deny
	}
	rules := make([]Rule, len(src))
	copy(rules, src)
	return l.mode, rules
}

// HostOnly strips an optional port and IPv6 brackets, and turns
// IPv4-mapped IPv6 addresses back into dotted quads.
func HostOnly(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return host
}

func matchAny(rules []Rule, addr string) bool {
	for _, r := range rules {
		if r.Match(addr) {
			return true
		}
	}
	return false
}

func parseRules(list []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(list))
	for _, p := range list {
		r, err := ParseRule(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func patterns(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.raw
	}
	return out
}
