package testdata

import (
	"strings"
	"testing"
)

func TestLoadCorpus(t *testing.T) {
	entries, err := LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus() error: %v", err)
	}

	if len(entries) == 0 {
		t.Fatal("corpus is empty")
	}
	t.Logf("Total entries: %d", len(entries))

	// Every entry must have all required fields.
	for i, e := range entries {
		if e.Description == "" {
			t.Errorf("entry[%d] has empty description", i)
		}
		if len(e.Event) == 0 {
			t.Errorf("entry[%d] has empty event", i)
		}
		if len(e.ExpectedFingerprint) == 0 {
			t.Errorf("entry[%d] has empty expected_fingerprint", i)
		}
		if e.ExpectedTitle == "" {
			t.Errorf("entry[%d] has empty expected_title", i)
		}
	}
}

func TestCorpusCoverage(t *testing.T) {
	entries, err := LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus() error: %v", err)
	}

	ruleLines := 0
	for _, line := range strings.Split(Rules(), "\n") {
		if strings.Contains(line, "->") && !strings.HasPrefix(line, "#") {
			ruleLines++
		}
	}

	covered := make(map[int]bool)
	for _, e := range entries {
		covered[e.ExpectedRule] = true
	}
	for i := 0; i < ruleLines; i++ {
		if !covered[i] {
			t.Errorf("rule %d has no corpus entry", i)
		}
	}
	if !covered[-1] {
		t.Error("no corpus entry exercises the default grouping")
	}
}
