// Package ipc implements the kernel's topic-addressed publish/subscribe
// and reliable request/reply bus (spec §4.3): subscriptions, message
// queues, delivery semantics, and acknowledgements.
package ipc

import (
	"strings"

	"d7kernel/errors"
)

// Filter selects messages by topic: either an exact match or a prefix
// match (spec §3 Topic).
type Filter struct {
	Str   string
	Exact bool // true: exact match, false: prefix match
}

// ExactFilter builds a filter that matches only topic == s.
func ExactFilter(s string) Filter {
	return Filter{Str: s, Exact: true}
}

// PrefixFilter builds a filter that matches any topic with prefix s.
func PrefixFilter(s string) Filter {
	return Filter{Str: s, Exact: false}
}

// Validate rejects the empty filter string (spec §4.3: "Empty filter
// string is disallowed").
func (f Filter) Validate() error {
	if f.Str == "" {
		return errors.ErrInvalidTopic
	}
	return nil
}

// Matches reports whether topic matches f.
func (f Filter) Matches(topic string) bool {
	if f.Exact {
		return topic == f.Str
	}
	return strings.HasPrefix(topic, f.Str)
}

// Overlaps reports whether f and other could ever both match the same
// topic, the exclusivity check ipc_subscribe applies to reliable
// subscriptions (spec §4.3): two prefixes overlap if one is a prefix of
// the other; a prefix and an exact overlap if the exact starts with the
// prefix; two exacts overlap only if equal.
func (f Filter) Overlaps(other Filter) bool {
	switch {
	case f.Exact && other.Exact:
		return f.Str == other.Str
	case f.Exact && !other.Exact:
		return strings.HasPrefix(f.Str, other.Str)
	case !f.Exact && other.Exact:
		return strings.HasPrefix(other.Str, f.Str)
	default: // both prefixes
		return strings.HasPrefix(f.Str, other.Str) || strings.HasPrefix(other.Str, f.Str)
	}
}
