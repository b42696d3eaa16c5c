// Package wiotp describes the remote device-management platform as an opaque
// capability. The platform's wire protocol lives behind Client; this package
// only fixes the call shapes the dispatcher relies on.
package wiotp

import (
	"context"
	"errors"
	"fmt"
)

// Credentials identify an application connection to one organization.
type Credentials struct {
	Org       string `json:"org"`
	ID        string `json:"id"`
	AuthKey   string `json:"auth-key"`
	AuthToken string `json:"auth-token"`
}

// DeviceRef addresses one device in a device management request.
type DeviceRef struct {
	TypeID   string `json:"typeId"`
	DeviceID string `json:"deviceId"`
}

// Client is the set of asynchronous platform operations used by the nodes.
// Every call blocks the calling goroutine only; dispatchers run them off the
// inbound path. Close releases the handle; calls already in flight must be
// allowed to complete.
type Client interface {
	GetAllDeviceTypes(ctx context.Context) (any, error)

	GetAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error)
	AddDeviceDiagLogs(ctx context.Context, typeID, deviceID string, log any) (any, error)
	GetDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error)
	DeleteDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error)
	ClearAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error)
	AddErrorCode(ctx context.Context, typeID, deviceID string, errorCode any) (any, error)
	GetDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error)
	ClearDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error)

	GetAllDeviceManagementRequests(ctx context.Context) (any, error)
	InitiateDeviceManagementRequest(ctx context.Context, action string, parameters any, devices []DeviceRef) (any, error)
	DeleteDeviceManagementRequest(ctx context.Context, requestID string) (any, error)
	GetDeviceManagementRequest(ctx context.Context, requestID string) (any, error)
	GetDeviceManagementRequestStatusByDevice(ctx context.Context, requestID, typeID, deviceID string) (any, error)
	GetDeviceManagementRequestStatus(ctx context.Context, requestID string) (any, error)

	Close() error
}

// Factory builds a client handle for the given credentials.
type Factory func(creds Credentials) (Client, error)

var ErrClientClosed = errors.New("wiotp client is closed")

// RemoteError is a rejection reported by the platform. Payload is what gets
// forwarded downstream in place of a result.
type RemoteError struct {
	Op      string
	Status  int
	Payload any
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("wiotp %s: status %d: %v", e.Op, e.Status, e.Payload)
	}
	return fmt.Sprintf("wiotp %s: %v", e.Op, e.Payload)
}

// ErrorPayload returns the value to forward downstream for err: the remote
// payload when the platform produced one, otherwise the error text.
func ErrorPayload(err error) any {
	if err == nil {
		return nil
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Payload != nil {
		return remoteErr.Payload
	}
	return err.Error()
}
