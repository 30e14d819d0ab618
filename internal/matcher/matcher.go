// Package matcher decides which roster performers an aircraft state belongs to.
//
// A state matches a performer when its icao24 is in the performer's effective
// hex set, or when its trimmed callsign satisfies one of the effective callsign
// patterns. Patterns written as ^...$ are case-insensitive regular expressions;
// anything else is a case-insensitive substring. The effective sets are the
// performer's own lists plus any user override for that performer.
package matcher

import (
	"regexp"
	"strings"

	"github.com/saviobatista/airshow-tracker/internal/types"
)

// PatternKind tags how a callsign pattern is evaluated
type PatternKind int

const (
	// KindSubstring is a case-insensitive contains test
	KindSubstring PatternKind = iota
	// KindRegexp is an anchored, case-insensitive regular expression
	KindRegexp
	// KindInvalid is an anchored pattern that failed to compile; it never matches
	KindInvalid
)

// Pattern is a callsign rule compiled once per cycle
type Pattern struct {
	Raw   string
	Kind  PatternKind
	Err   error
	re    *regexp.Regexp
	upper string
}

// CompilePattern compiles a single callsign rule. Compilation failures are
// reported through the returned Pattern, never as a panic.
func CompilePattern(raw string) Pattern {
	p := Pattern{Raw: raw}
	if isAnchored(raw) {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			p.Kind = KindInvalid
			p.Err = err
			return p
		}
		p.Kind = KindRegexp
		p.re = re
		return p
	}
	p.Kind = KindSubstring
	p.upper = strings.ToUpper(raw)
	return p
}

// Matches tests a trimmed, non-empty callsign
func (p Pattern) Matches(callsign string) bool {
	switch p.Kind {
	case KindRegexp:
		return p.re.MatchString(callsign)
	case KindSubstring:
		return strings.Contains(strings.ToUpper(callsign), p.upper)
	default:
		return false
	}
}

func isAnchored(p string) bool {
	return len(p) >= 2 && strings.HasPrefix(p, "^") && strings.HasSuffix(p, "$")
}

// Rule is the effective rule set of one performer
type Rule struct {
	PerformerID string
	Hex         map[string]struct{}
	Patterns    []Pattern
}

// NewRule merges a performer's lists with its override
func NewRule(perf types.Performer, ov types.Override) Rule {
	r := Rule{
		PerformerID: perf.ID,
		Hex:         make(map[string]struct{}, len(perf.Hex)+len(ov.Hex)),
	}
	for _, lists := range [][]string{perf.Hex, ov.Hex} {
		for _, h := range lists {
			r.Hex[h] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	for _, lists := range [][]string{perf.CallsignRegex, ov.CallsignRegex} {
		for _, raw := range lists {
			if _, dup := seen[raw]; dup {
				continue
			}
			seen[raw] = struct{}{}
			r.Patterns = append(r.Patterns, CompilePattern(raw))
		}
	}
	return r
}

// Matches reports whether the state belongs to this rule's performer
func (r Rule) Matches(state types.AircraftState) bool {
	if _, ok := r.Hex[state.ICAO24]; ok {
		return true
	}
	callsign := strings.TrimSpace(state.CallsignOrEmpty())
	if callsign == "" {
		return false
	}
	for _, p := range r.Patterns {
		if p.Matches(callsign) {
			return true
		}
	}
	return false
}

// Invalid returns the patterns of this rule that failed to compile
func (r Rule) Invalid() []Pattern {
	var out []Pattern
	for _, p := range r.Patterns {
		if p.Kind == KindInvalid {
			out = append(out, p)
		}
	}
	return out
}

// Rules is the compiled roster, in roster order
type Rules struct {
	rules []Rule
}

// Compile builds the effective rules for every performer
func Compile(roster []types.Performer, overrides types.Overrides) *Rules {
	rs := &Rules{rules: make([]Rule, 0, len(roster))}
	for _, perf := range roster {
		rs.rules = append(rs.rules, NewRule(perf, overrides[perf.ID]))
	}
	return rs
}

// Performers returns the ids of every performer the state matches, in roster order
func (rs *Rules) Performers(state types.AircraftState) []string {
	var ids []string
	for _, r := range rs.rules {
		if r.Matches(state) {
			ids = append(ids, r.PerformerID)
		}
	}
	return ids
}

// All returns the compiled rules
func (rs *Rules) All() []Rule {
	return rs.rules
}

// Match tests one state against one performer and its override
func Match(state types.AircraftState, perf types.Performer, ov types.Override) bool {
	return NewRule(perf, ov).Matches(state)
}
