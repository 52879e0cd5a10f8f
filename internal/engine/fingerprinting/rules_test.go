package fingerprinting

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crimson-sun/grouping/internal/model"
)

func mustParse(t *testing.T, text string) *Rules {
	t.Helper()
	rs, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return rs
}

func exceptionEvent(typ, value string) *model.Event {
	return &model.Event{Exceptions: []*model.Exception{{Type: typ, Value: value}}}
}

func frameEvent(functions ...string) *model.Event {
	frames := make([]*model.Frame, 0, len(functions))
	for _, fn := range functions {
		frames = append(frames, &model.Frame{Function: fn})
	}
	return &model.Event{Stacktrace: &model.Stacktrace{Frames: frames}}
}

type matchResult struct {
	Fingerprint []string
	Attributes  map[string]string
}

func matchOf(rs *Rules, e *model.Event) *matchResult {
	m, ok := rs.Match(e)
	if !ok {
		return nil
	}
	return &matchResult{Fingerprint: m.Fingerprint, Attributes: m.Attributes}
}

func TestRulesScenarios(t *testing.T) {
	tests := []struct {
		name   string
		config string
		event  *model.Event
		want   *matchResult
	}{
		{
			name:   "exception type",
			config: `type:"ZeroDivisionError" -> "div-by-zero"`,
			event:  exceptionEvent("ZeroDivisionError", "division by zero"),
			want:   &matchResult{Fingerprint: []string{"div-by-zero"}, Attributes: map[string]string{}},
		},
		{
			name:   "logger and level with title",
			config: `logger:"payments.*" level:"error" -> "payments-error", title="Payment failure"`,
			event:  &model.Event{Logger: "payments.charge", Level: "error"},
			want: &matchResult{
				Fingerprint: []string{"payments-error"},
				Attributes:  map[string]string{"title": "Payment failure"},
			},
		},
		{
			name:   "first rule wins",
			config: "function:\"foo\" -> \"r1\"\nfunction:\"*\" -> \"r2\"",
			event:  frameEvent("foo"),
			want:   &matchResult{Fingerprint: []string{"r1"}, Attributes: map[string]string{}},
		},
		{
			name:   "tag mismatch",
			config: `tags.environment:"production" -> "prod-issue"`,
			event:  &model.Event{Tags: []model.Tag{{Key: "environment", Value: "staging"}}},
			want:   nil,
		},
		{
			name:   "tag match",
			config: `tags.environment:"production" -> "prod-issue"`,
			event:  &model.Event{Tags: []model.Tag{{Key: "environment", Value: "production"}}},
			want:   &matchResult{Fingerprint: []string{"prod-issue"}, Attributes: map[string]string{}},
		},
		{
			name:   "later rule when first misses",
			config: "function:\"foo\" -> \"r1\"\nfunction:\"*\" -> \"r2\"",
			event:  frameEvent("bar"),
			want:   &matchResult{Fingerprint: []string{"r2"}, Attributes: map[string]string{}},
		},
		{
			name:   "message from exception value",
			config: `message:"Oops*" -> "oops"`,
			event:  exceptionEvent("RuntimeError", "Oops, something broke"),
			want:   &matchResult{Fingerprint: []string{"oops"}, Attributes: map[string]string{}},
		},
		{
			name:   "message from log entry",
			config: `message:"*timeout*" -> "timeouts"`,
			event:  &model.Event{LogEntry: &model.LogEntry{Formatted: "Request TIMEOUT after 30s"}},
			want:   &matchResult{Fingerprint: []string{"timeouts"}, Attributes: map[string]string{}},
		},
		{
			name:   "groups are ANDed",
			config: `type:"ValueError" function:"parse" -> "parse-error"`,
			event: &model.Event{Exceptions: []*model.Exception{{
				Type:       "ValueError",
				Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{Function: "main"}}},
			}}},
			want: nil,
		},
		{
			name:   "groups both satisfied",
			config: `type:"ValueError" function:"parse" -> "parse-error"`,
			event: &model.Event{Exceptions: []*model.Exception{{
				Type:       "ValueError",
				Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{Function: "main"}, {Function: "parse"}}},
			}}},
			want: &matchResult{Fingerprint: []string{"parse-error"}, Attributes: map[string]string{}},
		},
		{
			name:   "empty rule set",
			config: "",
			event:  exceptionEvent("A", ""),
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchOf(mustParse(t, tt.config), tt.event)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRulesDeterministic(t *testing.T) {
	rs := mustParse(t, "type:\"A*\" -> \"a\"\nvalue:\"*\" -> \"b\"")
	e := exceptionEvent("Abc", "x")
	first := matchOf(rs, e)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, matchOf(rs, e)); diff != "" {
			t.Fatalf("evaluation %d differs (-first +now):\n%s", i, diff)
		}
	}
}

func TestRulesSameFrameRequired(t *testing.T) {
	rs := mustParse(t, `function:"foo" module:"bar" -> "same-frame"`)

	split := &model.Event{Stacktrace: &model.Stacktrace{Frames: []*model.Frame{
		{Function: "foo", Module: "other"},
		{Function: "other", Module: "bar"},
	}}}
	if _, ok := rs.Match(split); ok {
		t.Error("rule fired although no single frame satisfies both matchers")
	}

	joined := &model.Event{Stacktrace: &model.Stacktrace{Frames: []*model.Frame{
		{Function: "other", Module: "other"},
		{Function: "foo", Module: "bar"},
	}}}
	if _, ok := rs.Match(joined); !ok {
		t.Error("rule did not fire for a frame satisfying both matchers")
	}
}

func TestRulesNegation(t *testing.T) {
	rs := mustParse(t, `!type:"ValueError" -> "not-value-error"`)
	tests := []struct {
		name  string
		event *model.Event
		want  bool
	}{
		{"exact type", exceptionEvent("ValueError", ""), false},
		{"other type", exceptionEvent("TypeError", ""), true},
		{"no exception", &model.Event{LogEntry: &model.LogEntry{Formatted: "hi"}}, true},
		{"empty event", &model.Event{}, true},
	}
	for _, tt := range tests {
		if _, ok := rs.Match(tt.event); ok != tt.want {
			t.Errorf("%s: fired = %v, want %v", tt.name, ok, tt.want)
		}
	}
}

func TestRulesEmptyView(t *testing.T) {
	message := &model.Event{LogEntry: &model.LogEntry{Formatted: "hello"}}
	tests := []struct {
		name  string
		rules string
		event *model.Event
		want  bool
	}{
		{"family all needs frames", `family:"all" -> "any-frames"`, message, false},
		{"family all with frames", `family:"all" -> "any-frames"`, frameEvent("f"), true},
		{"negated type without exception", `!type:"ValueError" -> "x"`, message, true},
		{"mixed group without exception", `!type:"ValueError" value:"*" -> "x"`, message, false},
		{"negated frames on frameless event", `!function:"main" -> "x"`, message, true},
	}
	for _, tt := range tests {
		rs := mustParse(t, tt.rules)
		if _, ok := rs.Match(tt.event); ok != tt.want {
			t.Errorf("%s: fired = %v, want %v", tt.name, ok, tt.want)
		}
	}
}

func TestRulesNegationAnyCandidate(t *testing.T) {
	// One exception not named ValueError is enough.
	rs := mustParse(t, `!type:"ValueError" -> "x"`)
	e := &model.Event{Exceptions: []*model.Exception{{Type: "ValueError"}, {Type: "KeyError"}}}
	if _, ok := rs.Match(e); !ok {
		t.Error("negated matcher should hold for the KeyError exception")
	}
}

func TestRulesPathLeadingSlash(t *testing.T) {
	rs := mustParse(t, `path:"/a/b.py" -> "ab"`)
	e := &model.Event{Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{AbsPath: "a/b.py"}}}}
	if _, ok := rs.Match(e); !ok {
		t.Error("path matcher should retry with a leading slash")
	}
}

func TestRulesPathIgnoresFilename(t *testing.T) {
	rs := mustParse(t, `path:"app.py" -> "app"`)
	e := &model.Event{Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{AbsPath: "/opt/x/app.py", Filename: "app.py"}}}}
	if _, ok := rs.Match(e); ok {
		t.Error("path matcher matched on filename; only abs_path is tested")
	}
}

func TestRulesFamilyAndApp(t *testing.T) {
	rs := mustParse(t, `family:native app:yes -> "native-app"`)

	in := true
	native := &model.Event{Platform: "cocoa", Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{Function: "f", InApp: &in}}}}
	if _, ok := rs.Match(native); !ok {
		t.Error("expected native in-app frame to fire")
	}

	python := &model.Event{Platform: "python", Stacktrace: &model.Stacktrace{Frames: []*model.Frame{{Function: "f", InApp: &in}}}}
	if _, ok := rs.Match(python); ok {
		t.Error("python frame should not match family:native")
	}
}

func TestRuleString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`type:ZeroDivisionError -> div-by-zero`, `type:"ZeroDivisionError" -> "div-by-zero"`},
		{`error.type:a stack.function:b -> x, y title="T"`, `type:"a" function:"b" -> "x", "y" title="T"`},
		{`!"tags.a:b":"q\"v" -> {{ default }}`, `!"tags.a:b":"q\"v" -> "{{ default }}"`},
	}
	for _, tt := range tests {
		rs := mustParse(t, tt.in)
		if got := rs.Rules[0].String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestRulesStringReparses(t *testing.T) {
	text := "## Changelog\n## - added\n" +
		`type:"ZeroDivisionError" -> "div-by-zero"` + "\n" +
		`logger:"payments.*" level:"error" -> "payments-error", title="Payment failure"` + "\n" +
		`!"tags.a:b":"x\ty" function:"f\\g" -> "{{ default }}", "with space"` + "\n"
	rs := mustParse(t, text)
	again := mustParse(t, rs.String())

	if diff := cmp.Diff(rs.ToConfig(), again.ToConfig()); diff != "" {
		t.Errorf("reparsed rules differ (-orig +reparsed):\n%s", diff)
	}
	if again.Changelog != rs.Changelog {
		t.Errorf("changelog %q became %q", rs.Changelog, again.Changelog)
	}
}

func TestRulesIndex(t *testing.T) {
	rs := mustParse(t, "type:a -> x\ntype:b -> y")
	m, ok := rs.Match(exceptionEvent("b", ""))
	if !ok {
		t.Fatal("expected a match")
	}
	if got := rs.Index(m.Rule); got != 1 {
		t.Errorf("Index = %d, want 1", got)
	}
	other := mustParse(t, "type:b -> y")
	if got := rs.Index(other.Rules[0]); got != -1 {
		t.Errorf("Index of foreign rule = %d, want -1", got)
	}
}

func TestNewRuleRequiresMatchers(t *testing.T) {
	if _, err := NewRule(nil, []string{"x"}, nil); !IsInvalidConfig(err) {
		t.Errorf("expected InvalidConfigError, got %v", err)
	}
}

func TestNilRulesMatch(t *testing.T) {
	var rs *Rules
	if _, ok := rs.Match(&model.Event{}); ok {
		t.Error("nil rule set matched")
	}
}
