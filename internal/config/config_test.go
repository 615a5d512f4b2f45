package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/rconbridge/internal/rcon"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.True(t, cfg.IsFirstRun())
	assert.FileExists(t, cfg.Path())

	info, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{
  "rcon_data": {
    "servers": [{"name": "alpha", "address": "10.0.0.5:27015", "password": "pw", "enabled": true}]
  },
  "application_data": {"api": {"port": 6000}}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	target, ok := cfg.Target("alpha")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:27015", target.Address)

	app := cfg.GetApplicationData()
	assert.Equal(t, 6000, app.API.Port)
	assert.Equal(t, "04:00", app.History.CleanupTime, "missing fields keep defaults")

	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	var persisted map[string]any
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Contains(t, persisted["application_data"], "timers", "re-save persists new defaults")
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestTargets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpsertTarget(ServerTarget{Name: "a", Address: "h:1"})
	cfg.UpsertTarget(ServerTarget{Name: "b", Address: "h:2"})
	cfg.UpsertTarget(ServerTarget{Name: "a", Address: "h:3"})

	data := cfg.GetRCONData()
	require.Len(t, data.Servers, 2)
	assert.Equal(t, "h:3", data.Servers[0].Address)

	data.Servers[0].Address = "mutated"
	a, _ := cfg.Target("a")
	assert.Equal(t, "h:3", a.Address, "getter returns a copy")

	assert.True(t, cfg.RemoveTarget("a"))
	assert.False(t, cfg.RemoveTarget("a"))
	_, ok := cfg.Target("a")
	assert.False(t, ok)
}

func TestServerTargetRCONConfig(t *testing.T) {
	target := ServerTarget{Address: "1.2.3.4:27015", ReadTimeoutSec: 5, ConnectTimeoutSec: 2}

	assert.Equal(t, rcon.Config{
		Address:        "1.2.3.4:27015",
		ReadTimeout:    5 * time.Second,
		ConnectTimeout: 2 * time.Second,
	}, target.RCONConfig())
}

func TestSaveWithoutPath(t *testing.T) {
	assert.Error(t, DefaultConfig().Save())
}

func TestRunSetupWizard(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	answers := strings.Join([]string{
		"alpha",           // name
		"10.1.1.1:27016",  // address
		"secret",          // password
		"",                // read timeout
		"",                // api host
		"7000",            // api port
		"no",              // require tokens
		"",                // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers), &out))

	target, ok := cfg.Target("alpha")
	require.True(t, ok)
	assert.Equal(t, "10.1.1.1:27016", target.Address)
	assert.Equal(t, "secret", target.Password)
	assert.True(t, target.Enabled)
	assert.Equal(t, 7000, cfg.GetApplicationData().API.Port)
	assert.True(t, cfg.GetApplicationData().Security.AuthDisabled)
	assert.Contains(t, out.String(), "Configuration saved")

	reloaded, err := Load(filepath.Dir(cfg.Path()))
	require.NoError(t, err)
	_, ok = reloaded.Target("alpha")
	assert.True(t, ok)
}

func TestRunSetupWizardRejectsBadAddress(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	var out bytes.Buffer
	err = RunSetupWizard(cfg, strings.NewReader("alpha\nnot-an-address\npw\n\n\n\n\n\n"), &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "rcon_data.servers[0].address")
}
