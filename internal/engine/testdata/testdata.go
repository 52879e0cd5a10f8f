package testdata

import (
	_ "embed"
	"fmt"

	json "github.com/goccy/go-json"
)

//go:embed corpus.json
var corpusJSON []byte

//go:embed rules.txt
var rulesText string

// CorpusEntry is an event with the grouping the corpus rules give it.
type CorpusEntry struct {
	Description         string          `json:"description"`
	Event               json.RawMessage `json:"event"`
	ExpectedFingerprint []string        `json:"expected_fingerprint"`
	ExpectedTitle       string          `json:"expected_title"`
	ExpectedRule        int             `json:"expected_rule"` // -1 for the default grouping
}

// LoadCorpus parses the embedded corpus.json and returns all entries.
func LoadCorpus() ([]CorpusEntry, error) {
	var entries []CorpusEntry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}

// Rules returns the fingerprinting configuration the corpus is labeled against.
func Rules() string {
	return rulesText
}
