package security

import "encoding/json"

const redacted = "[redacted]"

// Secret wraps a sensitive value such as a deploy token so it cannot
// leak through logging, string formatting or JSON encoding. The raw
// value is only reachable through Reveal, which keeps accidental
// exposure greppable.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the raw value. Call sites should hand the result
// directly to the consumer and never retain or log it.
func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) IsZero() bool {
	return s == ""
}
