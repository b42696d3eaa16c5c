package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"watsoniot-bridge/go-backend/internal/operations"
)

const sampleYAML = `
server:
  addr: 0.0.0.0:9000
  admin_token: file-token
  rate_limit:
    rps: 5
    burst: 10
log:
  level: debug
  format: text
status:
  clear_delay: 1500ms
credentials:
  prod:
    user: a-myorg-key1
    password: tok1
nodes:
  - id: diag-1
    family: diagnostics
    method: get_all_log
    deviceType: t1
    deviceId: d1
    auth: api
    apiKey: prod
  - id: dm-1
    family: devicemanagment
    requestType: device/reboot
    parameters:
      - name: NewVersion
        value: 0.2.3
`

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, used, err := Load(path, noEnv)
	require.NoError(t, err)
	require.Equal(t, path, used)

	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
	require.Equal(t, 1500*time.Millisecond, cfg.Status.ClearDelay)
	require.Equal(t, TransportSimulator, cfg.Transport)
	require.Equal(t, 256, cfg.Outbox.Limit)
	require.Equal(t, "tok1", cfg.Credentials["prod"].Password)
	require.Len(t, cfg.Nodes, 2)
	require.Equal(t, "0.2.3", cfg.Nodes[1].Parameters[0]["value"])

	require.NoError(t, cfg.Validate())
	require.Equal(t, operations.Diagnostics, cfg.Nodes[0].Family)
	require.Equal(t, operations.Management, cfg.Nodes[1].Family)
}

func TestEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		"WIOTP_ADDR":               "127.0.0.1:9999",
		"WIOTP_ADMIN_TOKEN":        "env-token",
		"WIOTP_STATUS_CLEAR_DELAY": "3s",
		"WIOTP_RATE_LIMIT_BURST":   "7",
	}
	cfg, _, err := Load(writeConfig(t, sampleYAML), func(k string) string { return env[k] })
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	require.Equal(t, "env-token", cfg.Server.AdminToken)
	require.Equal(t, 3*time.Second, cfg.Status.ClearDelay)
	require.Equal(t, 7, cfg.Server.RateLimit.Burst)

	env["WIOTP_RATE_LIMIT_RPS"] = "fast"
	_, _, err = Load(writeConfig(t, sampleYAML), func(k string) string { return env[k] })
	require.ErrorContains(t, err, "WIOTP_RATE_LIMIT_RPS")
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	require.Error(t, err)

	_, _, err = Load(writeConfig(t, "server: [oops"), noEnv)
	require.ErrorContains(t, err, "parse config")
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, used, err := Load("", noEnv)
	require.NoError(t, err)
	require.Empty(t, used)
	require.Equal(t, DefaultAddr, cfg.Server.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaultLocation(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	nested := filepath.Join(dir, "go-backend", "configs")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "config.yaml"), []byte(sampleYAML), 0o600))

	cfg, used, err := Load("", noEnv)
	require.NoError(t, err)
	require.Empty(t, used, "only configs/config.yaml is a default location")
	require.Equal(t, DefaultAddr, cfg.Server.Addr)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(sampleYAML), 0o600))
	cfg, used, err = Load("", noEnv)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("configs", "config.yaml"), used)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"server.addr":     func(c *Config) { c.Server.Addr = " " },
		"log.level":       func(c *Config) { c.Log.Level = "loud" },
		"log.format":      func(c *Config) { c.Log.Format = "xml" },
		"transport":       func(c *Config) { c.Transport = "mqtt" },
		"nodes[0].id":     func(c *Config) { c.Nodes[0].ID = "" },
		"nodes[1].id":     func(c *Config) { c.Nodes[1].ID = c.Nodes[0].ID },
		"nodes[0].family": func(c *Config) { c.Nodes[0].Family = "telemetry" },
		"nodes[0].auth":   func(c *Config) { c.Nodes[0].Auth = "oauth" },
		"nodes[0].apiKey": func(c *Config) { c.Nodes[0].APIKey = "" },
	}
	for path, mutate := range cases {
		cfg, _, err := Load(writeConfig(t, sampleYAML), noEnv)
		require.NoError(t, err)
		mutate(&cfg)
		err = cfg.Validate()
		var fErr *FieldError
		require.ErrorAs(t, err, &fErr, path)
		require.Equal(t, path, fErr.Path)
	}
}
