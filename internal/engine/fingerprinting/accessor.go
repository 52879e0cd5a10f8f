package fingerprinting

import (
	"github.com/crimson-sun/grouping/internal/engine/platform"
	"github.com/crimson-sun/grouping/internal/model"
)

const unknownFunction = "<unknown>"

// Accessor projects one event into the views matchers read. Each view is
// computed on first use and reused for the rest of the evaluation.
// An Accessor belongs to a single evaluation and is not safe for
// concurrent use.
type Accessor struct {
	event *model.Event

	messages   []Values
	exceptions []Values
	logInfo    []Values
	frames     []Values
	toplevel   []Values
	tags       []Values

	loaded map[string]bool
}

// NewAccessor wraps e for one evaluation.
func NewAccessor(e *model.Event) *Accessor {
	return &Accessor{event: e, loaded: make(map[string]bool, 6)}
}

// Values returns the view for a match group.
func (a *Accessor) Values(g MatchGroup) []Values {
	switch g {
	case GroupToplevel:
		return a.Toplevel()
	case GroupLogInfo:
		return a.LogInfo()
	case GroupExceptions:
		return a.Exceptions()
	case GroupFrames:
		return a.Frames()
	case GroupTags:
		return a.Tags()
	}
	return nil
}

func (a *Accessor) once(view string, compute func()) {
	if a.loaded[view] {
		return
	}
	compute()
	a.loaded[view] = true
}

// Messages holds the formatted log message, if any.
func (a *Accessor) Messages() []Values {
	a.once("messages", func() {
		if msg := a.event.Message(); msg != "" {
			a.messages = []Values{{
				"message": msg,
				"family":  platform.BehaviorFamily(a.event.Platform),
			}}
		}
	})
	return a.messages
}

// Exceptions holds one entry per exception in the chain.
func (a *Accessor) Exceptions() []Values {
	a.once("exceptions", func() {
		family := platform.BehaviorFamily(a.event.Platform)
		for _, exc := range a.event.Exceptions {
			if exc == nil {
				continue
			}
			v := Values{"family": family}
			setString(v, "type", exc.Type)
			setString(v, "value", exc.Value)
			a.exceptions = append(a.exceptions, v)
		}
	})
	return a.exceptions
}

// LogInfo holds logger and level when either is set.
func (a *Accessor) LogInfo() []Values {
	a.once("log_info", func() {
		v := Values{}
		setString(v, "logger", a.event.Logger)
		setString(v, "level", a.event.Level)
		if len(v) > 0 {
			a.logInfo = []Values{v}
		}
	})
	return a.logInfo
}

// Toplevel is Messages followed by Exceptions.
func (a *Accessor) Toplevel() []Values {
	a.once("toplevel", func() {
		msgs, excs := a.Messages(), a.Exceptions()
		a.toplevel = make([]Values, 0, len(msgs)+len(excs))
		a.toplevel = append(a.toplevel, msgs...)
		a.toplevel = append(a.toplevel, excs...)
	})
	return a.toplevel
}

// Frames holds the frames of every exception when the event has any;
// otherwise the top-level stack trace, falling back to the crashing thread.
func (a *Accessor) Frames() []Values {
	a.once("frames", func() {
		var frames []*model.Frame
		hasExceptions := false
		for _, exc := range a.event.Exceptions {
			if exc == nil {
				continue
			}
			hasExceptions = true
			if exc.Stacktrace != nil {
				frames = append(frames, exc.Stacktrace.Frames...)
			}
		}
		if !hasExceptions {
			if st := a.event.Stacktrace; st != nil {
				frames = st.Frames
			}
			if len(frames) == 0 {
				if t := a.event.CrashingThread(); t != nil && t.Stacktrace != nil {
					frames = t.Stacktrace.Frames
				}
			}
		}

		a.frames = make([]Values, 0, len(frames))
		for _, f := range frames {
			if f != nil {
				a.frames = append(a.frames, a.frameValues(f))
			}
		}
	})
	return a.frames
}

func (a *Accessor) frameValues(f *model.Frame) Values {
	fn := platform.FunctionName(f, a.event.Platform)
	if fn == "" {
		fn = unknownFunction
	}
	framePlatform := f.Platform
	if framePlatform == "" {
		framePlatform = a.event.Platform
	}
	absPath := f.AbsPath
	if absPath == "" {
		absPath = f.Filename
	}

	v := Values{
		"function": fn,
		"family":   platform.BehaviorFamily(framePlatform),
	}
	setString(v, "abs_path", absPath)
	setString(v, "filename", f.Filename)
	setString(v, "module", f.Module)
	setString(v, "package", f.Package)
	if f.InApp != nil {
		v["app"] = *f.InApp
	}
	return v
}

// Tags is a single entry keyed "tags.<key>" for every tag of the event.
func (a *Accessor) Tags() []Values {
	a.once("tags", func() {
		v := make(Values, len(a.event.Tags))
		for _, t := range a.event.Tags {
			v[tagPrefix+t.Key] = t.Value
		}
		a.tags = []Values{v}
	})
	return a.tags
}

func setString(v Values, key, value string) {
	if value != "" {
		v[key] = value
	}
}
