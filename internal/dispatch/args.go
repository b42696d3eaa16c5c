package dispatch

import (
	"encoding/json"
	"strconv"

	"watsoniot-bridge/go-backend/internal/operations"
	"watsoniot-bridge/go-backend/internal/wiotp"
)

// NodeConfig is the static configuration of one node instance. Non-empty
// values win over the corresponding payload fields.
type NodeConfig struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name,omitempty"`
	Family      operations.Family `yaml:"family" json:"family"`
	Method      string            `yaml:"method" json:"method,omitempty"`
	DeviceType  string            `yaml:"deviceType" json:"deviceType,omitempty"`
	DeviceID    string            `yaml:"deviceId" json:"deviceId,omitempty"`
	LogID       string            `yaml:"logId" json:"logId,omitempty"`
	RequestID   string            `yaml:"requestId" json:"requestId,omitempty"`
	RequestType string            `yaml:"requestType" json:"requestType,omitempty"`
	Parameters  []map[string]any  `yaml:"parameters" json:"parameters,omitempty"`
	Auth        string            `yaml:"auth" json:"auth,omitempty"`
	APIKey      string            `yaml:"apiKey" json:"apiKey,omitempty"`
}

// extractArgs merges node configuration over payload fields.
func extractArgs(family operations.Family, cfg NodeConfig, payload any) operations.Args {
	fields, _ := payload.(map[string]any)

	a := operations.Args{
		DeviceType: pick(cfg.DeviceType, fields, "deviceType"),
		DeviceID:   pick(cfg.DeviceID, fields, "deviceId"),
		Log:        fields["log"],
		ErrorCode:  fields["errorCode"],
	}
	switch family {
	case operations.Diagnostics:
		a.LogID = pick(cfg.LogID, fields, "logId")
	case operations.Management:
		a.RequestID = pick(cfg.RequestID, fields, "requestId")
		a.RequestType = pick(cfg.RequestType, fields, "requestType")
		a.Parameters = parameters(cfg, fields)
		a.Devices = devices(cfg, fields, a)
	}
	return a
}

func pick(configured string, fields map[string]any, key string) string {
	if configured != "" {
		return configured
	}
	return stringField(fields[key])
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func parameters(cfg NodeConfig, fields map[string]any) any {
	if len(cfg.Parameters) > 0 {
		return cfg.Parameters
	}
	if p, ok := fields["parameters"]; ok && p != nil {
		return p
	}
	return []any{}
}

// devices prefers the configured pair, then the payload list, then a pair
// assembled from payload fields.
func devices(cfg NodeConfig, fields map[string]any, a operations.Args) []wiotp.DeviceRef {
	if cfg.DeviceType != "" && cfg.DeviceID != "" {
		return []wiotp.DeviceRef{{TypeID: cfg.DeviceType, DeviceID: cfg.DeviceID}}
	}
	if list := deviceList(fields["deviceList"]); len(list) > 0 {
		return list
	}
	if a.DeviceType != "" && a.DeviceID != "" {
		return []wiotp.DeviceRef{{TypeID: a.DeviceType, DeviceID: a.DeviceID}}
	}
	return nil
}

func deviceList(v any) []wiotp.DeviceRef {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]wiotp.DeviceRef, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ref := wiotp.DeviceRef{TypeID: stringField(m["typeId"]), DeviceID: stringField(m["deviceId"])}
		if ref.TypeID == "" || ref.DeviceID == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}
