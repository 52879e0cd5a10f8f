package grouping_test

import (
	"fmt"
	"log"

	"github.com/crimson-sun/grouping/pkg/grouping"
)

func Example() {
	g, err := grouping.New(grouping.WithRules(`
# Group every timeout per transaction.
error.type:"*Timeout*" -> "timeouts", {{ transaction }}, title="Timeout in {{ transaction }}"
`))
	if err != nil {
		log.Fatal(err)
	}

	res, err := g.Group([]byte(`{
		"platform": "python",
		"transaction": "/api/orders",
		"exception": {"values": [{"type": "ReadTimeoutError", "value": "read timed out"}]}
	}`))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.Fingerprint)
	fmt.Println(res.Title)
	// Output:
	// [timeouts /api/orders]
	// Timeout in /api/orders
}

func ExampleGrouper_GroupEvent() {
	g, err := grouping.New(grouping.WithRules(`logger:"payments.*" level:"error" -> "payments-error", title="Payment failure"`))
	if err != nil {
		log.Fatal(err)
	}

	res := g.GroupEvent(grouping.Event{
		Logger:  "payments.charge",
		Level:   "error",
		Message: "card declined",
	})
	fmt.Println(res.Fingerprint, res.Title, res.Default)
	// Output:
	// [payments-error] Payment failure false
}
