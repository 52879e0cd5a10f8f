// Package fingerprinting compiles fingerprinting rules and evaluates them
// against events.
//
// A configuration is a list of rules, one per line:
//
//	## changelog lines come first
//	type:"ZeroDivisionError" -> "div-by-zero"
//	logger:"payments.*" level:"error" -> "payments-error", title="Payment failure"
//	!stack.function:"handle*" -> {{ default }}, "other"
//
// Rules are tried in order and the first one whose matchers all hold
// decides the fingerprint. Compiled rules are immutable and may be shared
// across goroutines; evaluation allocates a fresh Accessor per event.
package fingerprinting

import (
	"sort"
	"strings"

	"github.com/crimson-sun/grouping/internal/model"
)

// Version is the serialized rule set format this package reads and writes.
const Version = 1

// Rules is a compiled fingerprinting configuration.
type Rules struct {
	Version   int
	Rules     []*Rule
	Changelog string // informational, from leading "##" comments
}

// Rule pairs matchers with the fingerprint and attributes it assigns.
type Rule struct {
	Matchers    []*Matcher
	Fingerprint []string
	Attributes  map[string]string

	groups []matcherGroup
}

// matcherGroup holds the matchers of a rule that read the same view, in
// the order their group first appears in the rule.
type matcherGroup struct {
	group    MatchGroup
	matchers []*Matcher
}

// Match is the result of a firing rule. Fingerprint and Attributes are
// shared with the rule and must not be modified.
type Match struct {
	Rule        *Rule
	Fingerprint []string
	Attributes  map[string]string
}

// NewRule builds a rule from at least one matcher.
func NewRule(matchers []*Matcher, fingerprint []string, attributes map[string]string) (*Rule, error) {
	if len(matchers) == 0 {
		return nil, invalidConfig("Rule has no matchers")
	}
	if attributes == nil {
		attributes = map[string]string{}
	}
	r := &Rule{
		Matchers:    matchers,
		Fingerprint: fingerprint,
		Attributes:  attributes,
	}

	index := make(map[MatchGroup]int)
	for _, m := range matchers {
		i, ok := index[m.MatchGroup()]
		if !ok {
			i = len(r.groups)
			index[m.MatchGroup()] = i
			r.groups = append(r.groups, matcherGroup{group: m.MatchGroup()})
		}
		r.groups[i].matchers = append(r.groups[i].matchers, m)
	}
	return r, nil
}

// emptyView stands in for a view with no entries when every matcher of the
// group is negated, so that those matchers hold for events lacking the data.
var emptyView = []Values{{}}

// Test reports whether every match group of the rule has at least one
// candidate satisfying all of that group's matchers.
func (r *Rule) Test(a *Accessor) bool {
	for _, g := range r.groups {
		candidates := a.Values(g.group)
		if len(candidates) == 0 {
			if !allNegated(g.matchers) {
				return false
			}
			candidates = emptyView
		}
		if !anySatisfies(candidates, g.matchers) {
			return false
		}
	}
	return true
}

func allNegated(matchers []*Matcher) bool {
	for _, m := range matchers {
		if !m.Negated {
			return false
		}
	}
	return true
}

func anySatisfies(candidates []Values, matchers []*Matcher) bool {
	for _, v := range candidates {
		if allMatch(v, matchers) {
			return true
		}
	}
	return false
}

func allMatch(v Values, matchers []*Matcher) bool {
	for _, m := range matchers {
		if !m.Matches(v) {
			return false
		}
	}
	return true
}

// String renders the rule in configuration syntax. Parsing the result
// yields an equivalent rule.
func (r *Rule) String() string {
	var b strings.Builder
	for i, m := range r.Matchers {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.String())
	}
	b.WriteString(" ->")
	for i, fp := range r.Fingerprint {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(' ')
		b.WriteString(quote(fp))
	}

	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + quote(r.Attributes[k]))
	}
	return b.String()
}

// Match evaluates the rules against e and returns the first rule that fires.
func (rs *Rules) Match(e *model.Event) (*Match, bool) {
	if rs == nil || len(rs.Rules) == 0 {
		return nil, false
	}
	return rs.MatchAccessor(NewAccessor(e))
}

// MatchAccessor is Match for a caller-provided accessor.
func (rs *Rules) MatchAccessor(a *Accessor) (*Match, bool) {
	if rs == nil {
		return nil, false
	}
	for _, r := range rs.Rules {
		if r.Test(a) {
			return &Match{Rule: r, Fingerprint: r.Fingerprint, Attributes: r.Attributes}, true
		}
	}
	return nil, false
}

// Index returns the position of r in the rule set, or -1.
func (rs *Rules) Index(r *Rule) int {
	for i, candidate := range rs.Rules {
		if candidate == r {
			return i
		}
	}
	return -1
}

// String renders the whole configuration, changelog included.
func (rs *Rules) String() string {
	var b strings.Builder
	if rs.Changelog != "" {
		for _, line := range strings.Split(rs.Changelog, "\n") {
			b.WriteString("## " + line + "\n")
		}
	}
	for _, r := range rs.Rules {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
