// Package wiotptest provides a recording wiotp.Client for tests.
package wiotptest

import (
	"context"
	"sync"

	"watsoniot-bridge/go-backend/internal/wiotp"
)

// Call is one recorded client invocation.
type Call struct {
	Method string
	Args   []any
}

// Recorder records every call and answers with Result/Err. Respond, when
// set, overrides both per call. Block, when set, is received from before
// answering so tests can hold calls in flight.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	closed  bool
	Result  any
	Err     error
	Respond func(method string, args []any) (any, error)
	Block   chan struct{}
}

var _ wiotp.Client = (*Recorder)(nil)

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *Recorder) record(ctx context.Context, method string, args ...any) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Args: args})
	respond, result, err, block := r.Respond, r.Result, r.Err, r.Block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond != nil {
		return respond(method, args)
	}
	return result, err
}

func (r *Recorder) GetAllDeviceTypes(ctx context.Context) (any, error) {
	return r.record(ctx, "GetAllDeviceTypes")
}

func (r *Recorder) GetAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error) {
	return r.record(ctx, "GetAllDiagnosticLogs", typeID, deviceID)
}

func (r *Recorder) AddDeviceDiagLogs(ctx context.Context, typeID, deviceID string, log any) (any, error) {
	return r.record(ctx, "AddDeviceDiagLogs", typeID, deviceID, log)
}

func (r *Recorder) GetDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error) {
	return r.record(ctx, "GetDiagnosticLog", typeID, deviceID, logID)
}

func (r *Recorder) DeleteDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error) {
	return r.record(ctx, "DeleteDiagnosticLog", typeID, deviceID, logID)
}

func (r *Recorder) ClearAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error) {
	return r.record(ctx, "ClearAllDiagnosticLogs", typeID, deviceID)
}

func (r *Recorder) AddErrorCode(ctx context.Context, typeID, deviceID string, errorCode any) (any, error) {
	return r.record(ctx, "AddErrorCode", typeID, deviceID, errorCode)
}

func (r *Recorder) GetDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error) {
	return r.record(ctx, "GetDeviceErrorCodes", typeID, deviceID)
}

func (r *Recorder) ClearDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error) {
	return r.record(ctx, "ClearDeviceErrorCodes", typeID, deviceID)
}

func (r *Recorder) GetAllDeviceManagementRequests(ctx context.Context) (any, error) {
	return r.record(ctx, "GetAllDeviceManagementRequests")
}

func (r *Recorder) InitiateDeviceManagementRequest(ctx context.Context, action string, parameters any, devices []wiotp.DeviceRef) (any, error) {
	return r.record(ctx, "InitiateDeviceManagementRequest", action, parameters, devices)
}

func (r *Recorder) DeleteDeviceManagementRequest(ctx context.Context, requestID string) (any, error) {
	return r.record(ctx, "DeleteDeviceManagementRequest", requestID)
}

func (r *Recorder) GetDeviceManagementRequest(ctx context.Context, requestID string) (any, error) {
	return r.record(ctx, "GetDeviceManagementRequest", requestID)
}

func (r *Recorder) GetDeviceManagementRequestStatusByDevice(ctx context.Context, requestID, typeID, deviceID string) (any, error) {
	return r.record(ctx, "GetDeviceManagementRequestStatusByDevice", requestID, typeID, deviceID)
}

func (r *Recorder) GetDeviceManagementRequestStatus(ctx context.Context, requestID string) (any, error) {
	return r.record(ctx, "GetDeviceManagementRequestStatus", requestID)
}

// Factory returns a wiotp.Factory that always hands out r.
func (r *Recorder) Factory() wiotp.Factory {
	return func(wiotp.Credentials) (wiotp.Client, error) { return r, nil }
}
