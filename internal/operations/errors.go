package operations

import "fmt"

// fieldHints are the human names used in validation messages.
var fieldHints = map[Field]string{
	FieldDeviceType: "DeviceType",
	FieldDeviceID:   "Device Id",
	FieldLogID:      "Log Id",
	FieldRequestID:  "Request Id",
	FieldDeviceList: "Either device list or device type and device id",
}

// ValidationError reports a required field missing from both the node
// configuration and the message payload.
type ValidationError struct {
	Field     Field
	Operation string
}

func (e *ValidationError) Error() string {
	hint, ok := fieldHints[e.Field]
	if !ok {
		hint = string(e.Field)
	}
	return fmt.Sprintf("%s must be set for %s operation. You can either set it in the configuration or pass it as msg.payload.%s",
		hint, e.Operation, e.Field)
}

// UnknownOperationError reports an operation name absent from the family's
// table.
type UnknownOperationError struct {
	Family    Family
	Operation string
}

func (e *UnknownOperationError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("no operation given for %s node and no default method configured", e.Family)
	}
	return fmt.Sprintf("unknown %s operation %q", e.Family, e.Operation)
}
