package fingerprinting

import (
	"strconv"
	"strings"

	"github.com/crimson-sun/grouping/internal/engine/glob"
	"github.com/crimson-sun/grouping/internal/engine/platform"
)

// MatchGroup names the event view a matcher is evaluated against.
type MatchGroup int

const (
	GroupToplevel MatchGroup = iota
	GroupLogInfo
	GroupExceptions
	GroupFrames
	GroupTags
)

func (g MatchGroup) String() string {
	switch g {
	case GroupToplevel:
		return "toplevel"
	case GroupLogInfo:
		return "log_info"
	case GroupExceptions:
		return "exceptions"
	case GroupFrames:
		return "frames"
	case GroupTags:
		return "tags"
	}
	return "MatchGroup(" + strconv.Itoa(int(g)) + ")"
}

const tagPrefix = "tags."

// canonicalKeys maps every accepted matcher key to its canonical form.
var canonicalKeys = map[string]string{
	"error.type":     "type",
	"type":           "type",
	"error.value":    "value",
	"value":          "value",
	"stack.module":   "module",
	"module":         "module",
	"stack.abs_path": "path",
	"path":           "path",
	"stack.package":  "package",
	"package":        "package",
	"stack.function": "function",
	"function":       "function",
	"message":        "message",
	"logger":         "logger",
	"level":          "level",
	"family":         "family",
	"app":            "app",
}

func groupForKey(key string) MatchGroup {
	switch key {
	case "type", "value":
		return GroupExceptions
	case "message":
		return GroupToplevel
	case "logger", "level":
		return GroupLogInfo
	}
	if strings.HasPrefix(key, tagPrefix) {
		return GroupTags
	}
	return GroupFrames
}

// Values is one candidate a matcher is tested against: field name to
// string value, except "app" which holds a bool. Absent fields never match.
type Values map[string]any

func (v Values) str(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// Matcher is a single keyed predicate of a rule, such as type:"ValueError".
// The evaluation strategy for its key is chosen and its pattern compiled
// when the matcher is built.
type Matcher struct {
	Key     string // canonical key
	Pattern string
	Negated bool

	group MatchGroup
	match func(Values) bool
}

// NewMatcher canonicalizes key and prepares the matcher. Unknown keys are
// an *InvalidConfigError.
func NewMatcher(key, pattern string, negated bool) (*Matcher, error) {
	if !strings.HasPrefix(key, tagPrefix) {
		canonical, ok := canonicalKeys[key]
		if !ok {
			return nil, invalidConfig("Unknown matcher '%s'", key)
		}
		key = canonical
	}
	m := &Matcher{
		Key:     key,
		Pattern: pattern,
		Negated: negated,
		group:   groupForKey(key),
	}
	m.match = m.compile()
	return m, nil
}

// MatchGroup returns the event view the matcher reads.
func (m *Matcher) MatchGroup() MatchGroup { return m.group }

// Matches tests one candidate, applying negation.
func (m *Matcher) Matches(v Values) bool {
	return m.match(v) != m.Negated
}

// String renders the matcher in configuration syntax.
func (m *Matcher) String() string {
	var b strings.Builder
	if m.Negated {
		b.WriteByte('!')
	}
	if strings.ContainsRune(m.Key, ':') {
		b.WriteString(quote(m.Key))
	} else {
		b.WriteString(m.Key)
	}
	b.WriteByte(':')
	b.WriteString(quote(m.Pattern))
	return b.String()
}

var pathOptions = glob.Options{IgnoreCase: true, DoubleStar: true, PathNormalize: true}

func (m *Matcher) compile() func(Values) bool {
	switch m.Key {
	case "path":
		g := glob.Compile(m.Pattern, pathOptions)
		return func(v Values) bool {
			value, ok := v.str("abs_path")
			if !ok {
				return false
			}
			if pathMatch(g, value) {
				return true
			}
			// A differing filename triggers a second attempt, but that attempt
			// tests abs_path again, not filename. Existing groupings depend on it.
			if filename, _ := v.str("filename"); filename != value {
				return pathMatch(g, value)
			}
			return false
		}
	case "package":
		g := glob.Compile(m.Pattern, pathOptions)
		return func(v Values) bool {
			value, ok := v.str("package")
			return ok && pathMatch(g, value)
		}
	case "message":
		g := glob.Compile(m.Pattern, glob.Options{IgnoreCase: true})
		return func(v Values) bool {
			for _, field := range [...]string{"message", "value"} {
				if value, ok := v.str(field); ok && g.Match(value) {
					return true
				}
			}
			return false
		}
	case "family":
		flags := strings.Split(m.Pattern, ",")
		return func(v Values) bool {
			family, ok := v.str("family")
			for _, f := range flags {
				if f == "all" || (ok && f == family) {
					return true
				}
			}
			return false
		}
	case "app":
		want, ok := platform.RuleBool(m.Pattern)
		return func(v Values) bool {
			app, present := v["app"].(bool)
			return ok && present && app == want
		}
	}

	g := glob.Compile(m.Pattern, glob.Options{IgnoreCase: m.Key == "level" || m.Key == "value"})
	key := m.Key
	return func(v Values) bool {
		value, ok := v.str(key)
		return ok && g.Match(value)
	}
}

// pathMatch also accepts relative values against absolute patterns.
func pathMatch(g *glob.Pattern, value string) bool {
	if g.Match(value) {
		return true
	}
	return !strings.HasPrefix(value, "/") && g.Match("/"+value)
}
