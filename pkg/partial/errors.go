package partial

import (
	"fmt"
	"strings"
)

const maxReportedValue = 200

// ValidationError reports a present field whose value does not fit its declared
// shape, or a required field missing from a strict decode.
type ValidationError struct {
	// Field is the dotted path of the offending field, with list indexes in brackets.
	Field string
	// Value is the raw JSON received for the field, if any.
	Value []byte
	// Reason is a short human description.
	Reason string
	// Err is the underlying decoding error, if any.
	Err error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	field := e.Field
	if field == "" {
		field = "value"
	}
	fmt.Fprintf(&b, "%s: %s", field, e.Reason)
	if len(e.Value) > 0 {
		v := string(e.Value)
		if len(v) > maxReportedValue {
			v = v[:maxReportedValue] + "..."
		}
		fmt.Fprintf(&b, " (received %s)", v)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
