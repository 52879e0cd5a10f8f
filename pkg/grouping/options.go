package grouping

type options struct {
	rulesText    string
	rulePatterns []string
	cacheSize    int
	keepPayload  bool
}

// Option configures a Grouper.
type Option func(*options)

// WithRules sets the fingerprinting configuration text.
func WithRules(text string) Option {
	return func(o *options) {
		o.rulesText = text
	}
}

// WithRuleFiles loads the configuration from every file matching the
// doublestar patterns, concatenated in lexical path order.
// Takes precedence over WithRules.
func WithRuleFiles(patterns ...string) Option {
	return func(o *options) {
		o.rulePatterns = append(o.rulePatterns, patterns...)
	}
}

// WithRuleCacheSize sets how many compiled configurations Compile keeps.
// Values <= 0 use the default of 64.
func WithRuleCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

func defaultOptions() options {
	return options{
		cacheSize: 64,
	}
}
