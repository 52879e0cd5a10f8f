package rulecache

import (
	"fmt"
	"testing"

	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
)

func TestGetCompilesOnce(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	first, err := c.Get(`type:a -> x`)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	second, err := c.Get(`type:a -> x`)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if first != second {
		t.Error("second Get compiled again instead of hitting the cache")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestGetErrorsNotCached(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err := c.Get(`bogus:x -> y`)
		if !fingerprinting.IsInvalidConfig(err) {
			t.Fatalf("Get() error = %v, want InvalidConfigError", err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestEviction(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	texts := make([]string, 3)
	for i := range texts {
		texts[i] = fmt.Sprintf("type:t%d -> f%d", i, i)
		if _, err := c.Get(texts[i]); err != nil {
			t.Fatalf("Get(%q) error: %v", texts[i], err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestDefaultSize(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New(0) error: %v", err)
	}
	if _, err := c.Get(""); err != nil {
		t.Fatalf("Get(\"\") error: %v", err)
	}
}
