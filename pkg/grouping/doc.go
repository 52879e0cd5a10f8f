// Package grouping assigns error events to groups using fingerprinting
// rules.
//
// A rule pairs matchers over an event with the fingerprint and title the
// event should get:
//
//	error.type:"*Timeout*"         -> "timeouts", {{ transaction }}
//	logger:"payments.*" level:error -> "payments-error" title="Payment failure"
//
// The first rule whose matchers all hold decides the group. Events no rule
// matches fall back to a default fingerprint built from the exception type
// and in-app stack frames.
//
// Quick start:
//
//	g, err := grouping.New(grouping.WithRuleFiles("rules/**/*.rules"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, _ := g.Group(eventJSON)
//	fmt.Println(res.Hash, res.Title)
//
// A Grouper is safe for concurrent use, including while its rules are
// being replaced.
package grouping
