package certsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event sources
const (
	SourceWebhook = "webhook"
	SourceSync    = "sync"
)

// ErrMalformedPayload is returned for bodies that are not a JSON object
var ErrMalformedPayload = errors.New("malformed payload")

// Event is one status notification from the registration authority
type Event struct {
	Source    string
	Protocol  string
	RawStatus string
	Action    string

	RejectionReason string

	PFXData           string
	PFXPassword       string
	CertificateSerial string
	ValidFrom         *time.Time
	ValidUntil        *time.Time
}

// ParseEvent decodes a webhook or status document. Only invalid JSON or a
// non-object body is an error; missing fields yield empty values.
func ParseEvent(body []byte) (Event, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Event{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	ev := Event{
		Protocol:          stringField(fields, "protocol"),
		Action:            stringField(fields, "action"),
		PFXData:           stringField(fields, "pfx_data"),
		PFXPassword:       stringField(fields, "pfx_password"),
		CertificateSerial: stringField(fields, "certificate_serial"),
		ValidFrom:         timeField(fields, "valid_from"),
		ValidUntil:        timeField(fields, "valid_until"),
	}

	// The AR sends the status either as "result" or as "status".
	ev.RawStatus = stringField(fields, "result")
	if ev.RawStatus == "" {
		ev.RawStatus = stringField(fields, "status")
	}

	for _, key := range []string{"rejection_reason", "reason", "message"} {
		if v := stringField(fields, key); v != "" {
			ev.RejectionReason = v
			break
		}
	}

	return ev, nil
}

// stringField returns a string or number field as text
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func timeField(fields map[string]json.RawMessage, key string) *time.Time {
	s := stringField(fields, key)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
