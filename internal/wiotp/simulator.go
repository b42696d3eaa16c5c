package wiotp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Simulator is an in-memory stand-in for the platform. State is shared by
// every client handle it produces and partitioned by organization, so a
// credential rotation within one org keeps seeing the same devices.
type Simulator struct {
	mu       sync.Mutex
	orgs     map[string]*simOrg
	nextID   int
	now      func() time.Time
	opened   atomic.Int64
	released atomic.Int64
}

type simOrg struct {
	deviceTypes []string
	logs        map[string][]map[string]any
	errorCodes  map[string][]map[string]any
	requests    map[string]*simRequest
}

type simRequest struct {
	id         string
	action     string
	parameters any
	devices    []DeviceRef
	createdAt  time.Time
}

func NewSimulator() *Simulator {
	return &Simulator{
		orgs: make(map[string]*simOrg),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Factory returns a Factory whose handles share this simulator's state.
func (s *Simulator) Factory() Factory {
	return func(creds Credentials) (Client, error) {
		if creds.Org == "" {
			return nil, errors.New("wiotp simulator: credentials carry no org")
		}
		if creds.AuthKey == "" || creds.AuthToken == "" {
			return nil, errors.New("wiotp simulator: auth key and token are required")
		}
		s.opened.Add(1)
		return &simClient{sim: s, creds: creds}, nil
	}
}

// AddDeviceType registers a device type for org.
func (s *Simulator) AddDeviceType(org, typeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.org(org)
	for _, existing := range o.deviceTypes {
		if existing == typeID {
			return
		}
	}
	o.deviceTypes = append(o.deviceTypes, typeID)
}

// OpenHandles reports how many handles were produced and not yet closed.
func (s *Simulator) OpenHandles() int64 {
	return s.opened.Load() - s.released.Load()
}

func (s *Simulator) org(name string) *simOrg {
	o, ok := s.orgs[name]
	if !ok {
		o = &simOrg{
			logs:       make(map[string][]map[string]any),
			errorCodes: make(map[string][]map[string]any),
			requests:   make(map[string]*simRequest),
		}
		s.orgs[name] = o
	}
	return o
}

func (s *Simulator) newID(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

type simClient struct {
	sim    *Simulator
	creds  Credentials
	closed atomic.Bool
}

func (c *simClient) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.sim.released.Add(1)
	}
	return nil
}

// do runs fn against the client's org under the simulator lock.
func (c *simClient) do(ctx context.Context, op string, fn func(o *simOrg) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("%s: %w", op, ErrClientClosed)
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	return fn(c.sim.org(c.creds.Org))
}

func deviceKey(typeID, deviceID string) string {
	return typeID + "/" + deviceID
}

func notFound(op, what string) error {
	return &RemoteError{
		Op:      op,
		Status:  http.StatusNotFound,
		Payload: map[string]any{"message": what + " not found"},
	}
}

func badRequest(op, what string) error {
	return &RemoteError{
		Op:      op,
		Status:  http.StatusBadRequest,
		Payload: map[string]any{"message": what},
	}
}

func (c *simClient) knownType(o *simOrg, typeID string) bool {
	for _, t := range o.deviceTypes {
		if t == typeID {
			return true
		}
	}
	return false
}

func (c *simClient) GetAllDeviceTypes(ctx context.Context) (any, error) {
	return c.do(ctx, "getAllDeviceTypes", func(o *simOrg) (any, error) {
		results := make([]map[string]any, 0, len(o.deviceTypes))
		for _, t := range o.deviceTypes {
			results = append(results, map[string]any{"id": t})
		}
		return map[string]any{"results": results}, nil
	})
}

func (c *simClient) GetAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error) {
	return c.do(ctx, "getAllDiagnosticLogs", func(o *simOrg) (any, error) {
		if !c.knownType(o, typeID) {
			return nil, notFound("getAllDiagnosticLogs", "device type "+typeID)
		}
		logs := o.logs[deviceKey(typeID, deviceID)]
		out := make([]map[string]any, len(logs))
		copy(out, logs)
		return out, nil
	})
}

func (c *simClient) AddDeviceDiagLogs(ctx context.Context, typeID, deviceID string, log any) (any, error) {
	return c.do(ctx, "addDeviceDiagLogs", func(o *simOrg) (any, error) {
		if !c.knownType(o, typeID) {
			return nil, notFound("addDeviceDiagLogs", "device type "+typeID)
		}
		entry := map[string]any{
			"id":        c.sim.newID("log"),
			"timestamp": c.sim.now().Format(time.RFC3339),
		}
		switch v := log.(type) {
		case map[string]any:
			for k, val := range v {
				if k == "id" {
					continue
				}
				entry[k] = val
			}
		case nil:
			return nil, badRequest("addDeviceDiagLogs", "log entry is required")
		default:
			entry["message"] = fmt.Sprint(v)
		}
		key := deviceKey(typeID, deviceID)
		o.logs[key] = append(o.logs[key], entry)
		return entry, nil
	})
}

func (c *simClient) findLog(o *simOrg, typeID, deviceID, logID string) int {
	for i, entry := range o.logs[deviceKey(typeID, deviceID)] {
		if entry["id"] == logID {
			return i
		}
	}
	return -1
}

func (c *simClient) GetDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error) {
	return c.do(ctx, "getDiagnosticLog", func(o *simOrg) (any, error) {
		idx := c.findLog(o, typeID, deviceID, logID)
		if idx < 0 {
			return nil, notFound("getDiagnosticLog", "log "+logID)
		}
		return o.logs[deviceKey(typeID, deviceID)][idx], nil
	})
}

func (c *simClient) DeleteDiagnosticLog(ctx context.Context, typeID, deviceID, logID string) (any, error) {
	return c.do(ctx, "deleteDiagnosticLog", func(o *simOrg) (any, error) {
		idx := c.findLog(o, typeID, deviceID, logID)
		if idx < 0 {
			return nil, notFound("deleteDiagnosticLog", "log "+logID)
		}
		key := deviceKey(typeID, deviceID)
		o.logs[key] = append(o.logs[key][:idx], o.logs[key][idx+1:]...)
		return map[string]any{"deleted": logID}, nil
	})
}

func (c *simClient) ClearAllDiagnosticLogs(ctx context.Context, typeID, deviceID string) (any, error) {
	return c.do(ctx, "clearAllDiagnosticLogs", func(o *simOrg) (any, error) {
		key := deviceKey(typeID, deviceID)
		cleared := len(o.logs[key])
		delete(o.logs, key)
		return map[string]any{"cleared": cleared}, nil
	})
}

func (c *simClient) AddErrorCode(ctx context.Context, typeID, deviceID string, errorCode any) (any, error) {
	return c.do(ctx, "addErrorCode", func(o *simOrg) (any, error) {
		if !c.knownType(o, typeID) {
			return nil, notFound("addErrorCode", "device type "+typeID)
		}
		if errorCode == nil {
			return nil, badRequest("addErrorCode", "errorCode is required")
		}
		entry := map[string]any{
			"errorCode": errorCode,
			"timestamp": c.sim.now().Format(time.RFC3339),
		}
		key := deviceKey(typeID, deviceID)
		o.errorCodes[key] = append(o.errorCodes[key], entry)
		return entry, nil
	})
}

func (c *simClient) GetDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error) {
	return c.do(ctx, "getDeviceErrorCodes", func(o *simOrg) (any, error) {
		codes := o.errorCodes[deviceKey(typeID, deviceID)]
		out := make([]map[string]any, len(codes))
		copy(out, codes)
		return out, nil
	})
}

func (c *simClient) ClearDeviceErrorCodes(ctx context.Context, typeID, deviceID string) (any, error) {
	return c.do(ctx, "clearDeviceErrorCodes", func(o *simOrg) (any, error) {
		key := deviceKey(typeID, deviceID)
		cleared := len(o.errorCodes[key])
		delete(o.errorCodes, key)
		return map[string]any{"cleared": cleared}, nil
	})
}

func (r *simRequest) view() map[string]any {
	return map[string]any{
		"id":         r.id,
		"action":     r.action,
		"parameters": r.parameters,
		"created":    r.createdAt.Format(time.RFC3339),
		"complete":   true,
	}
}

func (c *simClient) GetAllDeviceManagementRequests(ctx context.Context) (any, error) {
	return c.do(ctx, "getAllDeviceManagementRequests", func(o *simOrg) (any, error) {
		ids := make([]string, 0, len(o.requests))
		for id := range o.requests {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		results := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			results = append(results, o.requests[id].view())
		}
		return map[string]any{"results": results}, nil
	})
}

func (c *simClient) InitiateDeviceManagementRequest(ctx context.Context, action string, parameters any, devices []DeviceRef) (any, error) {
	return c.do(ctx, "initiateDeviceManagementRequest", func(o *simOrg) (any, error) {
		if action == "" {
			return nil, badRequest("initiateDeviceManagementRequest", "action is required")
		}
		if len(devices) == 0 {
			return nil, badRequest("initiateDeviceManagementRequest", "devices are required")
		}
		req := &simRequest{
			id:         c.sim.newID("dmr"),
			action:     action,
			parameters: parameters,
			devices:    append([]DeviceRef(nil), devices...),
			createdAt:  c.sim.now(),
		}
		o.requests[req.id] = req
		return map[string]any{"reqId": req.id}, nil
	})
}

func (c *simClient) DeleteDeviceManagementRequest(ctx context.Context, requestID string) (any, error) {
	return c.do(ctx, "deleteDeviceManagementRequest", func(o *simOrg) (any, error) {
		if _, ok := o.requests[requestID]; !ok {
			return nil, notFound("deleteDeviceManagementRequest", "request "+requestID)
		}
		delete(o.requests, requestID)
		return map[string]any{"deleted": requestID}, nil
	})
}

func (c *simClient) GetDeviceManagementRequest(ctx context.Context, requestID string) (any, error) {
	return c.do(ctx, "getDeviceManagementRequest", func(o *simOrg) (any, error) {
		req, ok := o.requests[requestID]
		if !ok {
			return nil, notFound("getDeviceManagementRequest", "request "+requestID)
		}
		return req.view(), nil
	})
}

func (c *simClient) GetDeviceManagementRequestStatusByDevice(ctx context.Context, requestID, typeID, deviceID string) (any, error) {
	return c.do(ctx, "getDeviceManagementRequestStatusByDevice", func(o *simOrg) (any, error) {
		req, ok := o.requests[requestID]
		if !ok {
			return nil, notFound("getDeviceManagementRequestStatusByDevice", "request "+requestID)
		}
		for _, d := range req.devices {
			if d.TypeID == typeID && d.DeviceID == deviceID {
				return map[string]any{"status": 0, "complete": true, "typeId": typeID, "deviceId": deviceID}, nil
			}
		}
		return nil, notFound("getDeviceManagementRequestStatusByDevice", "device "+deviceKey(typeID, deviceID))
	})
}

func (c *simClient) GetDeviceManagementRequestStatus(ctx context.Context, requestID string) (any, error) {
	return c.do(ctx, "getDeviceManagementRequestStatus", func(o *simOrg) (any, error) {
		req, ok := o.requests[requestID]
		if !ok {
			return nil, notFound("getDeviceManagementRequestStatus", "request "+requestID)
		}
		results := make([]map[string]any, 0, len(req.devices))
		for _, d := range req.devices {
			results = append(results, map[string]any{"typeId": d.TypeID, "deviceId": d.DeviceID, "status": 0, "complete": true})
		}
		return map[string]any{"results": results}, nil
	})
}
