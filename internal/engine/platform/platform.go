// Package platform holds the platform lookups fingerprint matching depends on.
package platform

import "strings"

// Behavior families.
const (
	FamilyNative     = "native"
	FamilyJavaScript = "javascript"
	FamilyOther      = "other"
)

var familyByPlatform = map[string]string{
	"objc":       FamilyNative,
	"cocoa":      FamilyNative,
	"swift":      FamilyNative,
	"native":     FamilyNative,
	"c":          FamilyNative,
	"javascript": FamilyJavaScript,
	"node":       FamilyJavaScript,
}

// BehaviorFamily groups platforms that share stack trace conventions.
func BehaviorFamily(platform string) string {
	if f, ok := familyByPlatform[platform]; ok {
		return f
	}
	return FamilyOther
}

// RuleBool parses the boolean spellings accepted in rules.
// ok is false for anything else.
func RuleBool(text string) (value, ok bool) {
	switch strings.ToLower(text) {
	case "1", "yes", "true":
		return true, true
	case "0", "no", "false":
		return false, true
	}
	return false, false
}
