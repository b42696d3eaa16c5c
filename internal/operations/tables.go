package operations

import (
	"context"

	"watsoniot-bridge/go-backend/internal/wiotp"
)

var deviceFields = []Field{FieldDeviceType, FieldDeviceID}

var diagnosticsTable = build(
	Spec{
		Name:     "get_all_log",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetAllDiagnosticLogs(ctx, a.DeviceType, a.DeviceID)
		},
	},
	Spec{
		Name:     "new_log",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.AddDeviceDiagLogs(ctx, a.DeviceType, a.DeviceID, a.Log)
		},
	},
	Spec{
		Name:     "get_log",
		Required: []Field{FieldDeviceType, FieldDeviceID, FieldLogID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetDiagnosticLog(ctx, a.DeviceType, a.DeviceID, a.LogID)
		},
	},
	Spec{
		Name:     "delete_log",
		Required: []Field{FieldDeviceType, FieldDeviceID, FieldLogID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.DeleteDiagnosticLog(ctx, a.DeviceType, a.DeviceID, a.LogID)
		},
	},
	Spec{
		Name:     "delete_all_logs",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.ClearAllDiagnosticLogs(ctx, a.DeviceType, a.DeviceID)
		},
	},
	Spec{
		Name:     "new_err",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.AddErrorCode(ctx, a.DeviceType, a.DeviceID, a.ErrorCode)
		},
	},
	Spec{
		Name:     "get_all_err",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetDeviceErrorCodes(ctx, a.DeviceType, a.DeviceID)
		},
	},
	Spec{
		Name:     "delete_all_err",
		Required: deviceFields,
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.ClearDeviceErrorCodes(ctx, a.DeviceType, a.DeviceID)
		},
	},
)

var managementTable = build(
	Spec{
		Name: "get_all_dmr",
		Invoke: func(ctx context.Context, c wiotp.Client, _ Args) (any, error) {
			return c.GetAllDeviceManagementRequests(ctx)
		},
	},
	Spec{
		Name:     "new_dmr",
		Required: []Field{FieldDeviceList},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.InitiateDeviceManagementRequest(ctx, a.RequestType, a.Parameters, a.Devices)
		},
	},
	Spec{
		Name:     "delete_dmr",
		Required: []Field{FieldRequestID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.DeleteDeviceManagementRequest(ctx, a.RequestID)
		},
	},
	Spec{
		Name:     "get_dmr",
		Required: []Field{FieldRequestID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetDeviceManagementRequest(ctx, a.RequestID)
		},
	},
	Spec{
		Name:     "get_dmr_individual",
		Required: []Field{FieldRequestID, FieldDeviceType, FieldDeviceID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetDeviceManagementRequestStatusByDevice(ctx, a.RequestID, a.DeviceType, a.DeviceID)
		},
	},
	Spec{
		Name:     "get_dmr_device_status",
		Required: []Field{FieldRequestID},
		Invoke: func(ctx context.Context, c wiotp.Client, a Args) (any, error) {
			return c.GetDeviceManagementRequestStatus(ctx, a.RequestID)
		},
	},
)
