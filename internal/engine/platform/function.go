package platform

import (
	"regexp"
	"strings"

	"github.com/crimson-sun/grouping/internal/model"
)

// FunctionName returns the function name used for matching a frame. Names
// from native and C# frames are trimmed down to the qualified symbol;
// frames carrying a raw_function already hold the trimmed form.
func FunctionName(f *model.Frame, eventPlatform string) string {
	if f == nil {
		return ""
	}
	if f.RawFunction != "" || f.Function == "" {
		return f.Function
	}
	p := f.Platform
	if p == "" {
		p = eventPlatform
	}
	if trimmed := trimFunctionName(f.Function, p); trimmed != "" {
		return trimmed
	}
	return f.Function
}

func trimFunctionName(fn, platform string) string {
	if platform == "csharp" {
		return trimCSharp(fn)
	}
	if BehaviorFamily(platform) == FamilyNative {
		return trimNative(fn)
	}
	return fn
}

// trimCSharp drops the argument list and anything before the method name.
func trimCSharp(fn string) string {
	if i := strings.IndexByte(fn, '('); i >= 0 {
		fn = fn[:i]
	}
	fn = strings.TrimSpace(fn)
	if i := strings.LastIndexByte(fn, ' '); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}

var lambdaPattern = regexp.MustCompile(`\{lambda\([^)]*\)#\d+\}`)

var trailingQualifiers = []string{" const", " volatile", " noexcept", " &&", " &"}

// trimNative reduces a demangled C++/Swift style symbol to its qualified
// name: return type, argument list, qualifiers and template arguments go.
func trimNative(fn string) string {
	fn = strings.TrimSpace(fn)
	if strings.HasPrefix(fn, "-[") || strings.HasPrefix(fn, "+[") {
		return fn
	}
	fn = strings.ReplaceAll(fn, "(anonymous namespace)", "`anonymous namespace'")
	fn = lambdaPattern.ReplaceAllString(fn, "{lambda}")

	for stripped := true; stripped; {
		stripped = false
		for _, q := range trailingQualifiers {
			if strings.HasSuffix(fn, q) {
				fn = strings.TrimSpace(strings.TrimSuffix(fn, q))
				stripped = true
			}
		}
	}
	fn = stripArguments(fn)
	fn = collapseTemplates(fn)

	if i := lastTopLevelSpace(fn); i >= 0 {
		fn = fn[i+1:]
	}
	return strings.TrimSpace(fn)
}

// stripArguments removes a trailing balanced "(...)" group.
func stripArguments(fn string) string {
	if !strings.HasSuffix(fn, ")") {
		return fn
	}
	depth := 0
	for i := len(fn) - 1; i >= 0; i-- {
		switch fn[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				if i == 0 {
					return fn
				}
				return strings.TrimSpace(fn[:i])
			}
		}
	}
	return fn
}

// collapseTemplates rewrites every outermost "<...>" as "<T>".
func collapseTemplates(fn string) string {
	if !strings.Contains(fn, "<") {
		return fn
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(fn); i++ {
		c := fn[i]
		switch {
		case c == '<':
			if depth == 0 {
				b.WriteString("<T>")
			}
			depth++
		case c == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// lastTopLevelSpace finds the space separating a return type from the
// symbol, ignoring spaces inside `quoted' namespace names.
func lastTopLevelSpace(fn string) int {
	quoted := false
	idx := -1
	for i := 0; i < len(fn); i++ {
		switch fn[i] {
		case '`':
			quoted = true
		case '\'':
			quoted = false
		case ' ':
			if !quoted {
				idx = i
			}
		}
	}
	return idx
}
