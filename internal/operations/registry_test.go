package operations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"watsoniot-bridge/go-backend/internal/wiotp"
	"watsoniot-bridge/go-backend/internal/wiotp/wiotptest"
)

func TestDiagnosticsOperationsRequireDevice(t *testing.T) {
	table, ok := For(Diagnostics)
	require.True(t, ok)
	require.Len(t, table, 8)

	for _, name := range table.Names() {
		spec, _ := table.Lookup(name)

		err := spec.Validate(Args{DeviceID: "d1", LogID: "l1"})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, name)
		require.Equal(t, FieldDeviceType, vErr.Field)
		require.Equal(t, name, vErr.Operation)

		err = spec.Validate(Args{DeviceType: "t1", LogID: "l1"})
		require.ErrorAs(t, err, &vErr, name)
		require.Equal(t, FieldDeviceID, vErr.Field)
	}
}

func TestLogIDRequiredOnlyForSingleLogOperations(t *testing.T) {
	table, _ := For(Diagnostics)
	device := Args{DeviceType: "t1", DeviceID: "d1"}
	for _, name := range table.Names() {
		spec, _ := table.Lookup(name)
		err := spec.Validate(device)
		switch name {
		case "get_log", "delete_log":
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, name)
			require.Equal(t, FieldLogID, vErr.Field)
		default:
			require.NoError(t, err, name)
		}
	}
}

func TestManagementRequirements(t *testing.T) {
	table, ok := For(Management)
	require.True(t, ok)
	require.Len(t, table, 6)

	cases := []struct {
		op   string
		args Args
		miss Field
	}{
		{"get_all_dmr", Args{}, ""},
		{"new_dmr", Args{}, FieldDeviceList},
		{"new_dmr", Args{Devices: []wiotp.DeviceRef{{TypeID: "t", DeviceID: "d"}}}, ""},
		{"delete_dmr", Args{}, FieldRequestID},
		{"get_dmr", Args{RequestID: "r1"}, ""},
		{"get_dmr_individual", Args{RequestID: "r1", DeviceID: "d1"}, FieldDeviceType},
		{"get_dmr_individual", Args{RequestID: "r1", DeviceType: "t1"}, FieldDeviceID},
		{"get_dmr_individual", Args{DeviceType: "t1", DeviceID: "d1"}, FieldRequestID},
		{"get_dmr_device_status", Args{}, FieldRequestID},
	}
	for _, tc := range cases {
		spec, ok := table.Lookup(tc.op)
		require.True(t, ok, tc.op)
		err := spec.Validate(tc.args)
		if tc.miss == "" {
			require.NoError(t, err, tc.op)
			continue
		}
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, tc.op)
		require.Equal(t, tc.miss, vErr.Field, tc.op)
	}
}

func TestInvokeCallShapes(t *testing.T) {
	devices := []wiotp.DeviceRef{{TypeID: "t1", DeviceID: "d1"}}
	args := Args{
		DeviceType:  "t1",
		DeviceID:    "d1",
		LogID:       "l1",
		Log:         map[string]any{"message": "x"},
		ErrorCode:   7,
		Parameters:  []any{},
		RequestID:   "r1",
		RequestType: "device/reboot",
		Devices:     devices,
	}
	cases := []struct {
		family Family
		op     string
		want   wiotptest.Call
	}{
		{Diagnostics, "get_all_log", wiotptest.Call{Method: "GetAllDiagnosticLogs", Args: []any{"t1", "d1"}}},
		{Diagnostics, "new_log", wiotptest.Call{Method: "AddDeviceDiagLogs", Args: []any{"t1", "d1", map[string]any{"message": "x"}}}},
		{Diagnostics, "get_log", wiotptest.Call{Method: "GetDiagnosticLog", Args: []any{"t1", "d1", "l1"}}},
		{Diagnostics, "delete_log", wiotptest.Call{Method: "DeleteDiagnosticLog", Args: []any{"t1", "d1", "l1"}}},
		{Diagnostics, "delete_all_logs", wiotptest.Call{Method: "ClearAllDiagnosticLogs", Args: []any{"t1", "d1"}}},
		{Diagnostics, "new_err", wiotptest.Call{Method: "AddErrorCode", Args: []any{"t1", "d1", 7}}},
		{Diagnostics, "get_all_err", wiotptest.Call{Method: "GetDeviceErrorCodes", Args: []any{"t1", "d1"}}},
		{Diagnostics, "delete_all_err", wiotptest.Call{Method: "ClearDeviceErrorCodes", Args: []any{"t1", "d1"}}},
		{Management, "get_all_dmr", wiotptest.Call{Method: "GetAllDeviceManagementRequests"}},
		{Management, "new_dmr", wiotptest.Call{Method: "InitiateDeviceManagementRequest", Args: []any{"device/reboot", []any{}, devices}}},
		{Management, "delete_dmr", wiotptest.Call{Method: "DeleteDeviceManagementRequest", Args: []any{"r1"}}},
		{Management, "get_dmr", wiotptest.Call{Method: "GetDeviceManagementRequest", Args: []any{"r1"}}},
		{Management, "get_dmr_individual", wiotptest.Call{Method: "GetDeviceManagementRequestStatusByDevice", Args: []any{"r1", "t1", "d1"}}},
		{Management, "get_dmr_device_status", wiotptest.Call{Method: "GetDeviceManagementRequestStatus", Args: []any{"r1"}}},
	}
	for _, tc := range cases {
		table, _ := For(tc.family)
		spec, ok := table.Lookup(tc.op)
		require.True(t, ok, tc.op)
		rec := &wiotptest.Recorder{Result: "ok"}
		res, err := spec.Invoke(context.Background(), rec, args)
		require.NoError(t, err, tc.op)
		require.Equal(t, "ok", res)
		calls := rec.Calls()
		require.Len(t, calls, 1, tc.op)
		require.Equal(t, tc.want.Method, calls[0].Method, tc.op)
		if tc.want.Args == nil {
			require.Empty(t, calls[0].Args, tc.op)
		} else {
			require.Equal(t, tc.want.Args, calls[0].Args, tc.op)
		}
	}
}

func TestParseFamily(t *testing.T) {
	for raw, want := range map[string]Family{
		"devicediagnostics": Diagnostics,
		"Diagnostics":       Diagnostics,
		"devicemanagment":   Management,
		"device-management": Management,
	} {
		got, ok := ParseFamily(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}
	_, ok := ParseFamily("telemetry")
	require.False(t, ok)
}

func TestValidationErrorNamesFieldAndOperation(t *testing.T) {
	err := &ValidationError{Field: FieldLogID, Operation: "get_log"}
	require.Contains(t, err.Error(), "Log Id")
	require.Contains(t, err.Error(), "get_log")
	require.Contains(t, err.Error(), "msg.payload.logId")
}
