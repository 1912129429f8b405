package provider

import "fmt"

// Envelope is any backend result that carries a textual payload.
type Envelope interface {
	Payload() string
}

// Text flattens a backend result into plain text. Envelopes yield their
// payload, raw strings and bytes pass through, anything else is formatted.
// Callers never need to branch on the shape a backend chose.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *Response:
		return t.Payload()
	case Envelope:
		return t.Payload()
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
