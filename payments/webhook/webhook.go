// Package webhook reduces the provider's notification shapes to one event.
//
// The provider has sent kind and id under several names over its API versions:
// the kind as ?topic=, ?type=, "action" or "type", the id as ?id=, ?data.id=
// or data.id in the body (string or number). Parse never fails: anything it
// cannot use becomes KindIgnored or KindMissingID.
package webhook

import (
	"bytes"
	"encoding/json"
	"net/url"
)

type Kind int

const (
	// KindIgnored is an event that is not about a payment, or has no kind at all.
	KindIgnored Kind = iota
	// KindMissingID is a payment event without a usable payment id.
	KindMissingID
	// KindPayment is a payment event with an id to look up.
	KindPayment
)

func (k Kind) String() string {
	switch k {
	case KindPayment:
		return "payment"
	case KindMissingID:
		return "missing_id"
	default:
		return "ignored"
	}
}

var paymentEvents = map[string]struct{}{
	"payment":         {},
	"payment.created": {},
	"payment.updated": {},
}

type Notification struct {
	Kind Kind
	// Event is the raw kind as sent, kept for logs.
	Event     string
	PaymentID string
}

type body struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Parse normalizes a notification from its query string and raw body.
func Parse(query url.Values, raw []byte) Notification {
	var b body
	if len(bytes.TrimSpace(raw)) > 0 {
		// A body that is not JSON still leaves the query to look at.
		_ = json.Unmarshal(raw, &b)
	}

	event := first(query.Get("topic"), query.Get("type"), b.Action, b.Type)
	n := Notification{Kind: KindIgnored, Event: event}
	if _, ok := paymentEvents[event]; !ok {
		return n
	}

	n.PaymentID = first(query.Get("id"), query.Get("data.id"), rawID(b.Data.ID))
	if n.PaymentID == "" {
		n.Kind = KindMissingID
		return n
	}

	n.Kind = KindPayment
	return n
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
