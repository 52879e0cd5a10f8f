package fingerprinting

import (
	"strconv"
	"strings"
	"unicode"
)

// Parse compiles configuration text into a rule set. Empty text yields an
// empty rule set. Any syntax or validation problem is an *InvalidConfigError.
func Parse(text string) (*Rules, error) {
	tree, err := parseConfig(text)
	if err != nil {
		return nil, err
	}

	rs := &Rules{Version: Version}
	var changelog []string
	inHeader := true

	for _, line := range tree.Lines {
		switch {
		case line.Comment != nil:
			c := *line.Comment
			if inHeader && strings.HasPrefix(c, "##") {
				changelog = append(changelog, strings.TrimRightFunc(c[2:], unicode.IsSpace))
			} else {
				inHeader = false
			}
		case line.Rule != nil:
			inHeader = false
			r, err := compileRule(line.Rule)
			if err != nil {
				return nil, err
			}
			rs.Rules = append(rs.Rules, r)
		}
	}

	rs.Changelog = strings.TrimRightFunc(cleandoc(strings.Join(changelog, "\n")), unicode.IsSpace)
	return rs, nil
}

func compileRule(n *ruleNode) (*Rule, error) {
	matchers := make([]*Matcher, 0, len(n.Matchers))
	for _, mn := range n.Matchers {
		key, negated := splitKey(mn.Key)
		var pattern string
		if mn.Quoted != nil {
			var err error
			if pattern, err = unquote(*mn.Quoted); err != nil {
				return nil, err
			}
		} else {
			pattern = *mn.Bare
		}
		m, err := NewMatcher(key, pattern, negated)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	var fingerprint []string
	attributes := map[string]string{}
	for _, fp := range n.Fingerprint {
		switch {
		case fp.Attribute != nil:
			key, value, _ := strings.Cut(*fp.Attribute, "=")
			if key != "title" {
				return nil, invalidConfig("Unknown attribute '%s'", key)
			}
			v, err := unquote(value)
			if err != nil {
				return nil, err
			}
			attributes[key] = v
		case fp.Quoted != nil:
			v, err := unquote(*fp.Quoted)
			if err != nil {
				return nil, err
			}
			fingerprint = append(fingerprint, v)
		default:
			fingerprint = append(fingerprint, *fp.Bare)
		}
	}
	return NewRule(matchers, fingerprint, attributes)
}

// splitKey turns a Key token (`!type:`, `"tags.a:b":`) into the key and
// its negation. A "!" inside the quotes is dropped without negating.
func splitKey(tok string) (key string, negated bool) {
	key = strings.TrimSuffix(tok, ":")
	if strings.HasPrefix(key, "!") {
		negated = true
		key = key[1:]
	}
	if len(key) >= 2 && key[0] == '"' && key[len(key)-1] == '"' {
		key = strings.TrimLeft(key[1:len(key)-1], "!")
	}
	return key, negated
}

var hexEscapeWidth = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// unquote strips the surrounding double quotes and resolves backslash
// escapes: \\ \" \' \n \r \t \b \f \v \a, octal \NNN, \xHH, \uHHHH and
// \UHHHHHHHH. Unknown escapes are kept as written. A truncated or
// non-hex \x, \u or \U escape and a trailing lone backslash are errors.
func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			return "", invalidConfig("Invalid escape: trailing backslash in %q", s)
		}
		i++
		switch e := s[i]; e {
		case '\\', '"', '\'':
			b.WriteByte(e)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'a':
			b.WriteByte('\a')
		case 'x', 'u', 'U':
			width := hexEscapeWidth[e]
			if i+width >= len(s) {
				return "", invalidConfig("Invalid escape: truncated \\%c escape in %q", e, s)
			}
			r, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || r > unicode.MaxRune {
				return "", invalidConfig("Invalid escape: bad \\%c escape in %q", e, s)
			}
			b.WriteRune(rune(r))
			i += width
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			r, _ := strconv.ParseUint(s[i:j], 8, 32)
			b.WriteRune(rune(r))
			i = j - 1
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}

// cleandoc removes the indentation shared by all lines but the first,
// left-trims the first line and drops leading and trailing blank lines.
func cleandoc(doc string) string {
	lines := strings.Split(expandTabs(doc), "\n")

	margin := -1
	for _, line := range lines[1:] {
		content := strings.TrimLeftFunc(line, unicode.IsSpace)
		if content == "" {
			continue
		}
		if indent := len(line) - len(content); margin < 0 || indent < margin {
			margin = indent
		}
	}
	lines[0] = strings.TrimLeftFunc(lines[0], unicode.IsSpace)
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			lines[i] = lines[i][min(margin, len(lines[i])):]
		}
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
