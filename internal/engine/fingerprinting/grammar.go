package fingerprinting

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// A rule lives on one line: matchers, "->", fingerprint values. The lexer
// switches state after a matcher key (one argument token follows, no
// whitespace) and after the arrow (fingerprint values until end of line).
var configLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `#[^\r\n]*`},
		{Name: "Newline", Pattern: `[\r\n]`},
		{Name: "Whitespace", Pattern: ` +`},
		{Name: "Arrow", Pattern: `->`, Action: lexer.Push("Fingerprint")},
		{Name: "Key", Pattern: `!?(?:[a-zA-Z0-9_.-]+|"[a-zA-Z0-9_.:-]+"):`, Action: lexer.Push("Argument")},
	},
	"Argument": {
		{Name: "ArgQuoted", Pattern: `"(?:[^"\\]|\\.)*"`, Action: lexer.Pop()},
		{Name: "ArgBare", Pattern: `\S+`, Action: lexer.Pop()},
	},
	"Fingerprint": {
		{Name: "Newline", Pattern: `[\r\n]`, Action: lexer.Pop()},
		{Name: "Whitespace", Pattern: ` +`},
		{Name: "Comma", Pattern: `,`},
		{Name: "Attribute", Pattern: `[a-zA-Z0-9_.-]+="(?:[^"\\]|\\.)*"`},
		{Name: "Quoted", Pattern: `"(?:[^"\\]|\\.)*"`},
		{Name: "Placeholder", Pattern: `\{\{\s*\S+\s*\}\}`},
		{Name: "Bare", Pattern: `[^\s{,]+`},
	},
})

var configParser = participle.MustBuild[configNode](
	participle.Lexer(configLexer),
	participle.Elide("Whitespace"),
)

type configNode struct {
	Lines []*lineNode `parser:"@@*"`
}

type lineNode struct {
	Comment *string   `parser:"(  @Comment Newline?"`
	Rule    *ruleNode `parser:" | @@ Newline?"`
	Empty   bool      `parser:" | @Newline )"`
}

type ruleNode struct {
	Matchers    []*matcherNode `parser:"@@+ Arrow"`
	Fingerprint []*fpNode      `parser:"@@+"`
}

type matcherNode struct {
	Key    string  `parser:"@Key"`
	Quoted *string `parser:"(  @ArgQuoted"`
	Bare   *string `parser:" | @ArgBare )"`
}

type fpNode struct {
	Attribute *string `parser:"(  @Attribute"`
	Quoted    *string `parser:" | @Quoted"`
	Bare      *string `parser:" | @(Placeholder | Bare) ) Comma?"`
}

const (
	syntaxContextLen = 33
	syntaxContextCut = 23
)

func parseConfig(text string) (*configNode, error) {
	tree, err := configParser.ParseString("", text)
	if err != nil {
		return nil, syntaxError(text, err)
	}
	return tree, nil
}

// syntaxError reports the failure position with a short excerpt of the
// input starting there.
func syntaxError(text string, err error) *InvalidConfigError {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return &InvalidConfigError{Msg: "Invalid syntax: " + err.Error(), Err: err}
	}
	pos := perr.Position()
	offset := min(max(pos.Offset, 0), len(text))

	context := []rune(text[offset:])
	if len(context) > syntaxContextLen {
		context = context[:syntaxContextLen]
	}
	snippet := string(context)
	if len(context) == syntaxContextLen {
		snippet = string(context[:syntaxContextCut]) + "..."
	}

	line, column := pos.Line, pos.Column
	if line == 0 {
		line, column = 1, 1
	}
	return &InvalidConfigError{
		Msg:    fmt.Sprintf("Invalid syntax near \"%s\" (line %d, column %d)", snippet, line, column),
		Line:   line,
		Column: column,
		Err:    err,
	}
}
