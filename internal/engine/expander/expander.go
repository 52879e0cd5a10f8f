// Package expander resolves the variables of a matched fingerprint and
// title against an event, and derives the default grouping when no rule
// fires.
package expander

import (
	"regexp"
	"strings"

	"github.com/crimson-sun/grouping/internal/engine/platform"
	"github.com/crimson-sun/grouping/internal/model"
)

const (
	// MaxTitleLen is the title length in runes before truncation.
	MaxTitleLen = 120

	noMessage = "<no-message>"
	noTitle   = "<unlabeled event>"
)

var variablePattern = regexp.MustCompile(`\{\{\s*(\S+?)\s*\}\}`)

// Expander resolves variables for one event. Derived values are computed
// on first use.
type Expander struct {
	event *model.Event

	crash     *model.Frame
	frames    []*model.Frame
	crashDone bool
}

// New wraps e.
func New(e *model.Event) *Expander {
	return &Expander{event: e}
}

// Fingerprint expands each token. A token that is exactly {{ default }}
// becomes the default fingerprint components.
func (x *Expander) Fingerprint(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if name, ok := wholeVariable(tok); ok && name == "default" {
			out = append(out, x.DefaultFingerprint()...)
			continue
		}
		out = append(out, x.Expand(tok))
	}
	return out
}

// Title expands a title template and truncates the result.
func (x *Expander) Title(template string) string {
	return Truncate(x.Expand(template), MaxTitleLen)
}

// Expand substitutes every known variable in s. Unknown variables and
// {{ default }} inside a longer string are left as written.
func (x *Expander) Expand(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return variablePattern.ReplaceAllStringFunc(s, func(m string) string {
		name := variablePattern.FindStringSubmatch(m)[1]
		if v, ok := x.Resolve(name); ok {
			return v
		}
		return m
	})
}

func wholeVariable(tok string) (string, bool) {
	loc := variablePattern.FindStringSubmatchIndex(tok)
	if loc == nil || loc[0] != 0 || loc[1] != len(tok) {
		return "", false
	}
	return tok[loc[2]:loc[3]], true
}

// Resolve returns the value of one variable, or its <no-...> placeholder
// when the event lacks the data. ok is false for unknown names.
func (x *Expander) Resolve(name string) (value string, ok bool) {
	e := x.event
	switch name {
	case "transaction":
		return orPlaceholder(e.Transaction, "<no-transaction>"), true
	case "message":
		return orPlaceholder(e.Message(), noMessage), true
	case "type", "error.type":
		var v string
		if exc := x.lastException(); exc != nil {
			v = exc.Type
		}
		return orPlaceholder(v, "<no-type>"), true
	case "value", "error.value":
		var v string
		if exc := x.lastException(); exc != nil {
			v = exc.Value
		}
		return orPlaceholder(v, "<no-value>"), true
	case "function", "stack.function":
		return orPlaceholder(platform.FunctionName(x.crashFrame(), e.Platform), "<no-function>"), true
	case "path", "stack.abs_path":
		var v string
		if f := x.crashFrame(); f != nil {
			v = f.AbsPath
		}
		return orPlaceholder(v, "<no-abs-path>"), true
	case "stack.filename":
		var v string
		if f := x.crashFrame(); f != nil {
			v = f.Filename
		}
		return orPlaceholder(v, "<no-filename>"), true
	case "module", "stack.module":
		var v string
		if f := x.crashFrame(); f != nil {
			v = f.Module
		}
		return orPlaceholder(v, "<no-module>"), true
	case "package", "stack.package":
		var v string
		if f := x.crashFrame(); f != nil {
			v = f.Package
		}
		return orPlaceholder(v, "<no-package>"), true
	case "level":
		return orPlaceholder(e.Level, "<no-level>"), true
	case "logger":
		return orPlaceholder(e.Logger, "<no-logger>"), true
	}
	if key, found := strings.CutPrefix(name, "tags."); found {
		v, _ := e.Tag(key)
		return orPlaceholder(v, "<no-value-for-tag-"+key+">"), true
	}
	return "", false
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}

func (x *Expander) lastException() *model.Exception {
	excs := x.event.Exceptions
	for i := len(excs) - 1; i >= 0; i-- {
		if excs[i] != nil {
			return excs[i]
		}
	}
	return nil
}

// crashStack returns the frames of the last exception, else the event
// stack trace, else the crashing thread.
func (x *Expander) crashStack() []*model.Frame {
	if x.crashDone {
		return x.frames
	}
	x.crashDone = true

	var st *model.Stacktrace
	if exc := x.lastException(); exc != nil {
		st = exc.Stacktrace
	}
	if st == nil || len(st.Frames) == 0 {
		st = x.event.Stacktrace
	}
	if st == nil || len(st.Frames) == 0 {
		if t := x.event.CrashingThread(); t != nil {
			st = t.Stacktrace
		}
	}
	if st == nil {
		return nil
	}
	for _, f := range st.Frames {
		if f != nil {
			x.frames = append(x.frames, f)
		}
	}
	for i := len(x.frames) - 1; i >= 0; i-- {
		if inApp(x.frames[i]) {
			x.crash = x.frames[i]
			break
		}
	}
	if x.crash == nil && len(x.frames) > 0 {
		x.crash = x.frames[len(x.frames)-1]
	}
	return x.frames
}

// crashFrame is the last in-app frame of the crash stack, else its last frame.
func (x *Expander) crashFrame() *model.Frame {
	x.crashStack()
	return x.crash
}

func inApp(f *model.Frame) bool {
	return f.InApp != nil && *f.InApp
}

// DefaultFingerprint is the grouping used when no rule fires: the last
// exception type followed by the in-app functions of the crash stack, else
// the message, else "<no-message>".
func (x *Expander) DefaultFingerprint() []string {
	if exc := x.lastException(); exc != nil {
		out := []string{orPlaceholder(exc.Type, "<no-type>")}
		for _, f := range x.crashStack() {
			if !inApp(f) {
				continue
			}
			if fn := platform.FunctionName(f, x.event.Platform); fn != "" {
				out = append(out, fn)
			}
		}
		return out
	}
	if msg := x.event.Message(); msg != "" {
		return []string{msg}
	}
	return []string{noMessage}
}

// DefaultTitle is "Type: value" of the last exception, else the first line
// of the message, truncated.
func (x *Expander) DefaultTitle() string {
	var title string
	if exc := x.lastException(); exc != nil {
		switch {
		case exc.Type != "" && exc.Value != "":
			title = exc.Type + ": " + firstLine(exc.Value)
		case exc.Type != "":
			title = exc.Type
		default:
			title = firstLine(exc.Value)
		}
	}
	if title == "" {
		title = firstLine(x.event.Message())
	}
	if title == "" {
		title = noTitle
	}
	return Truncate(title, MaxTitleLen)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// Truncate shortens s to maxLen runes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
