// Package operations holds the static operation tables of the two handler
// families. Each entry pairs the fields an operation needs with the exact
// client call it maps to.
package operations

import (
	"context"
	"sort"
	"strings"

	"watsoniot-bridge/go-backend/internal/wiotp"
)

// Family tags a handler family. The values double as admin path segments.
type Family string

const (
	Diagnostics Family = "devicediagnostics"
	// Management keeps the historical path spelling.
	Management Family = "devicemanagment"
)

// Families lists every handler family in a stable order.
func Families() []Family {
	return []Family{Diagnostics, Management}
}

// ParseFamily accepts the path spelling as well as the short names.
func ParseFamily(raw string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(Diagnostics), "diagnostics", "device-diagnostics":
		return Diagnostics, true
	case string(Management), "management", "devicemanagement", "device-management":
		return Management, true
	default:
		return "", false
	}
}

// Field names an argument an operation may require.
type Field string

const (
	FieldDeviceType Field = "deviceType"
	FieldDeviceID   Field = "deviceId"
	FieldLogID      Field = "logId"
	FieldRequestID  Field = "requestId"
	FieldDeviceList Field = "deviceList"
)

// Args are the extracted, already-merged arguments of one request.
type Args struct {
	DeviceType  string
	DeviceID    string
	LogID       string
	Log         any
	ErrorCode   any
	Parameters  any
	RequestID   string
	RequestType string
	Devices     []wiotp.DeviceRef
}

// Has reports whether the field is present in a usable form.
func (a Args) Has(f Field) bool {
	switch f {
	case FieldDeviceType:
		return a.DeviceType != ""
	case FieldDeviceID:
		return a.DeviceID != ""
	case FieldLogID:
		return a.LogID != ""
	case FieldRequestID:
		return a.RequestID != ""
	case FieldDeviceList:
		return len(a.Devices) > 0
	default:
		return false
	}
}

// Spec is one registry entry.
type Spec struct {
	Name     string
	Required []Field
	Invoke   func(ctx context.Context, c wiotp.Client, a Args) (any, error)
}

// Validate checks the required fields in order and reports the first
// missing one.
func (s Spec) Validate(a Args) error {
	for _, f := range s.Required {
		if !a.Has(f) {
			return &ValidationError{Field: f, Operation: s.Name}
		}
	}
	return nil
}

// Table maps lowercased operation names to their specs.
type Table map[string]Spec

// Lookup finds an operation; name must already be normalized.
func (t Table) Lookup(name string) (Spec, bool) {
	spec, ok := t[name]
	return spec, ok
}

// Names returns the table's operation names sorted.
func (t Table) Names() []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// For returns the table of a family.
func For(f Family) (Table, bool) {
	switch f {
	case Diagnostics:
		return diagnosticsTable, true
	case Management:
		return managementTable, true
	default:
		return nil, false
	}
}

func build(specs ...Spec) Table {
	t := make(Table, len(specs))
	for _, s := range specs {
		t[s.Name] = s
	}
	return t
}
