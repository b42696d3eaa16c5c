package dispatch

import (
	"encoding/json"
	"strings"
)

// PayloadDecodePolicy turns an inbound payload into the value used for
// field extraction.
type PayloadDecodePolicy func(payload any) any

// LenientJSON decodes string payloads as JSON and keeps the raw string when
// decoding fails. It never reports an error.
func LenientJSON(payload any) any {
	raw, ok := payload.(string)
	if !ok {
		return payload
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	return decoded
}

// OperationNamePolicy normalizes an operation name before table lookup.
type OperationNamePolicy func(name string) string

// FoldCase matches operation names case-insensitively.
func FoldCase(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
