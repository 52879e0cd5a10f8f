// Package glob implements the shell-style glob matching used by fingerprint
// matchers: ?, *, [...] and [!...] classes, backslash escapes, and an
// optional double-star mode where * stops at "/" and ** crosses it.
package glob

import (
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Options selects the matching mode.
type Options struct {
	IgnoreCase    bool // lower-case value and pattern before comparing
	DoubleStar    bool // * does not cross "/", ** does
	PathNormalize bool // treat "\" as "/" in value and pattern
}

// Pattern is a compiled glob. Safe for concurrent use.
type Pattern struct {
	g    glob.Glob
	opts Options
}

// Compile prepares pattern for repeated matching. Patterns the glob
// compiler rejects degrade to a literal comparison, so Compile never fails.
func Compile(pattern string, opts Options) *Pattern {
	pattern = normalize(pattern, opts)

	var separators []rune
	if opts.DoubleStar {
		separators = []rune{'/'}
	}
	g, err := glob.Compile(escapeBraces(pattern), separators...)
	if err != nil {
		g = glob.MustCompile(glob.QuoteMeta(pattern))
	}
	return &Pattern{g: g, opts: opts}
}

// Match reports whether the whole value matches the pattern.
func (p *Pattern) Match(value string) bool {
	return p.g.Match(normalize(value, p.opts))
}

// Match compiles pattern and tests value against it.
func Match(value, pattern string, opts Options) bool {
	return Compile(pattern, opts).Match(value)
}

func normalize(s string, opts Options) string {
	if opts.IgnoreCase {
		// Casers keep state and are not safe to share.
		s = cases.Lower(language.Und).String(s)
	}
	if opts.PathNormalize {
		s = strings.ReplaceAll(s, `\`, "/")
	}
	return s
}

// escapeBraces makes { and } literal; alternation is not part of the syntax.
func escapeBraces(pattern string) string {
	if !strings.ContainsAny(pattern, "{}") {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			i++
			b.WriteByte(pattern[i])
		case c == '{' || c == '}':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
