package fingerprinting

import (
	"bytes"
	"errors"
	"strings"

	json "github.com/goccy/go-json"
)

// Config is the serialized form of a rule set. Negated matchers store
// their key with a leading "!". The changelog is not part of it.
type Config struct {
	Version int          `json:"version"`
	Rules   []RuleConfig `json:"rules"`
}

// RuleConfig is the serialized form of one rule.
type RuleConfig struct {
	Matchers    [][]string        `json:"matchers"`
	Fingerprint []string          `json:"fingerprint"`
	Attributes  map[string]string `json:"attributes"`
}

// ToConfig returns the serialized form of the rule set.
func (rs *Rules) ToConfig() Config {
	cfg := Config{Version: rs.Version, Rules: make([]RuleConfig, 0, len(rs.Rules))}
	for _, r := range rs.Rules {
		rc := RuleConfig{
			Matchers:    make([][]string, 0, len(r.Matchers)),
			Fingerprint: append([]string{}, r.Fingerprint...),
			Attributes:  make(map[string]string, len(r.Attributes)),
		}
		for _, m := range r.Matchers {
			key := m.Key
			if m.Negated {
				key = "!" + key
			}
			rc.Matchers = append(rc.Matchers, []string{key, m.Pattern})
		}
		for k, v := range r.Attributes {
			rc.Attributes[k] = v
		}
		cfg.Rules = append(cfg.Rules, rc)
	}
	return cfg
}

// FromConfig rebuilds a rule set. Every failure is an *InvalidConfigError.
func FromConfig(cfg Config) (*Rules, error) {
	if cfg.Version != Version {
		return nil, invalidConfig("Unknown version")
	}
	rs := &Rules{Version: cfg.Version, Rules: make([]*Rule, 0, len(cfg.Rules))}
	for _, rc := range cfg.Rules {
		matchers := make([]*Matcher, 0, len(rc.Matchers))
		for _, pair := range rc.Matchers {
			if len(pair) != 2 {
				return nil, invalidConfig("Matcher must be a [key, pattern] pair, got %d values", len(pair))
			}
			key, negated := strings.CutPrefix(pair[0], "!")
			m, err := NewMatcher(key, pair[1], negated)
			if err != nil {
				return nil, err
			}
			matchers = append(matchers, m)
		}
		r, err := NewRule(matchers, append([]string{}, rc.Fingerprint...), copyAttributes(rc.Attributes))
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

func copyAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// configJSON detects missing members, which Config cannot tell from zero values.
type configJSON struct {
	Version *int              `json:"version"`
	Rules   *[]ruleConfigJSON `json:"rules"`
}

type ruleConfigJSON struct {
	Matchers    *[][]string       `json:"matchers"`
	Fingerprint *[]string         `json:"fingerprint"`
	Attributes  map[string]string `json:"attributes"`
}

// ToJSON encodes the rule set.
func (rs *Rules) ToJSON() ([]byte, error) {
	return json.Marshal(rs.ToConfig())
}

// FromJSON decodes a rule set written by ToJSON. Unknown members are
// rejected. Every failure is an
// *InvalidConfigError wrapping the underlying cause.
func FromJSON(data []byte) (*Rules, error) {
	var raw configJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, wrapInvalid(err)
	}
	if dec.More() {
		return nil, invalidConfig("Unexpected data after the rule set")
	}
	if raw.Version == nil {
		return nil, invalidConfig("Missing member 'version'")
	}
	if raw.Rules == nil {
		return nil, invalidConfig("Missing member 'rules'")
	}

	cfg := Config{Version: *raw.Version, Rules: make([]RuleConfig, 0, len(*raw.Rules))}
	for _, r := range *raw.Rules {
		if r.Matchers == nil {
			return nil, invalidConfig("Missing member 'matchers'")
		}
		if r.Fingerprint == nil {
			return nil, invalidConfig("Missing member 'fingerprint'")
		}
		cfg.Rules = append(cfg.Rules, RuleConfig{
			Matchers:    *r.Matchers,
			Fingerprint: *r.Fingerprint,
			Attributes:  r.Attributes,
		})
	}
	return FromConfig(cfg)
}

func wrapInvalid(err error) error {
	var ice *InvalidConfigError
	if errors.As(err, &ice) {
		return err
	}
	return &InvalidConfigError{Msg: err.Error(), Err: err}
}

// MarshalJSON implements json.Marshaler.
func (rs *Rules) MarshalJSON() ([]byte, error) {
	return rs.ToJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (rs *Rules) UnmarshalJSON(data []byte) error {
	decoded, err := FromJSON(data)
	if err != nil {
		return err
	}
	*rs = *decoded
	return nil
}
