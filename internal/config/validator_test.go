package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.UpsertTarget(ServerTarget{Name: "alpha", Address: "127.0.0.1:27015", Password: "pw", Enabled: true})
	return cfg
}

func errorFields(r *ValidationResult) []string {
	fields := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

func TestValidateDefaultsWithServer(t *testing.T) {
	result := Validate(validConfig())
	assert.True(t, result.IsValid(), "%v", result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidateEmptyServerListWarns(t *testing.T) {
	result := Validate(DefaultConfig())
	assert.True(t, result.IsValid())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "rcon_data.servers", result.Warnings[0].Field)
}

func TestValidateServers(t *testing.T) {
	cfg := validConfig()
	cfg.RCONData.Servers = append(cfg.RCONData.Servers,
		ServerTarget{Name: "alpha", Address: "127.0.0.1:27016"},
		ServerTarget{Name: "", Address: "nohost"},
		ServerTarget{Name: "b c", Address: "h:99999", ReadTimeoutSec: -1},
	)

	result := Validate(cfg)
	fields := errorFields(result)
	assert.Contains(t, fields, "rcon_data.servers[1].name")
	assert.Contains(t, fields, "rcon_data.servers[2].name")
	assert.Contains(t, fields, "rcon_data.servers[2].address")
	assert.Contains(t, fields, "rcon_data.servers[3].name")
	assert.Contains(t, fields, "rcon_data.servers[3].address")
	assert.Contains(t, fields, "rcon_data.servers[3].read_timeout_sec")
	assert.ErrorContains(t, result.Err(), "duplicate server name")
}

func TestValidateSchedules(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.Schedules = []ScheduleConfig{
		{Server: "alpha", Command: "status", IntervalSec: 60},
		{Server: "ghost", Command: "", IntervalSec: 0},
	}

	fields := errorFields(Validate(cfg))
	assert.ElementsMatch(t, []string{
		"application_data.schedules[1].server",
		"application_data.schedules[1].command",
		"application_data.schedules[1].interval_sec",
	}, fields)
}

func TestValidateApplicationData(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.API.Port = 0
	cfg.ApplicationData.MQTT = MQTTConfig{Enabled: true, Port: 0, CertFile: "c.pem"}
	cfg.ApplicationData.Security.TLSEnabled = true
	cfg.ApplicationData.Security.TLSCertFile = ""
	cfg.ApplicationData.Security.IPWhitelist = []string{"10.0.0.0/8", "192.168.1.1", "nope"}
	cfg.ApplicationData.History.CleanupTime = "25:99"
	cfg.ApplicationData.Timers.SessionIdleTimeoutSec = -5
	cfg.ApplicationData.Notify.WebhookURL = "ftp://example.com/hook"

	fields := errorFields(Validate(cfg))
	assert.ElementsMatch(t, []string{
		"application_data.api.port",
		"application_data.mqtt.broker_url",
		"application_data.mqtt.port",
		"application_data.mqtt.cert_file",
		"application_data.security.tls_cert_file",
		"application_data.security.ip_whitelist[2]",
		"application_data.history.cleanup_time",
		"timers.session_idle_timeout_sec",
		"application_data.notify.webhook_url",
	}, fields)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("example.com:27015"))
	assert.NoError(t, ValidateAddress("[::1]:27015"))
	assert.Error(t, ValidateAddress("example.com"))
	assert.Error(t, ValidateAddress(":27015"))
	assert.Error(t, ValidateAddress("host:0"))
	assert.Error(t, ValidateAddress("host:http"))
}
