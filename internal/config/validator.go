package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Err folds the errors into one, or returns nil when the result is valid.
func (r *ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Field, e.Message))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	rconData := cfg.GetRCONData()
	appData := cfg.GetApplicationData()

	validateRCONData(&rconData, result)
	validateApplicationData(&appData, &rconData, result)

	return result
}

func validateRCONData(data *RCONData, result *ValidationResult) {
	if len(data.Servers) == 0 {
		result.AddWarning("rcon_data.servers", "no servers configured")
	}

	if data.MaxBodySize < 0 {
		result.AddError("rcon_data.max_body_size", "must not be negative")
	}

	seen := make(map[string]bool, len(data.Servers))
	for i, t := range data.Servers {
		field := fmt.Sprintf("rcon_data.servers[%d]", i)

		name := strings.TrimSpace(t.Name)
		switch {
		case name == "":
			result.AddError(field+".name", "server name is required")
		case strings.ContainsAny(name, " /\t"):
			result.AddError(field+".name", fmt.Sprintf("server name %q must not contain spaces or slashes", name))
		case seen[name]:
			result.AddError(field+".name", fmt.Sprintf("duplicate server name %q", name))
		}
		seen[name] = true

		if err := ValidateAddress(t.Address); err != nil {
			result.AddError(field+".address", err.Error())
		}

		if t.Password == "" {
			result.AddWarning(field+".password", "empty rcon password, authentication will likely fail")
		}

		if t.ReadTimeoutSec < 0 {
			result.AddError(field+".read_timeout_sec", "must not be negative")
		}
		if t.WriteTimeoutSec < 0 {
			result.AddError(field+".write_timeout_sec", "must not be negative")
		}
		if t.ConnectTimeoutSec < 0 {
			result.AddError(field+".connect_timeout_sec", "must not be negative")
		}
	}
}

func validateApplicationData(data *ApplicationData, rconData *RCONData, result *ValidationResult) {
	validatePort(data.API.Port, "application_data.api.port", result)

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
		if (data.MQTT.CertFile == "") != (data.MQTT.KeyFile == "") {
			result.AddError("application_data.mqtt.cert_file", "client certificate and key must be set together")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if data.Security.AuthDisabled && data.API.Host != "127.0.0.1" && data.API.Host != "localhost" {
		result.AddWarning("application_data.security.auth_disabled",
			"authentication is disabled on a non-loopback listener")
	}

	for i, entry := range data.Security.IPWhitelist {
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				result.AddError(fmt.Sprintf("application_data.security.ip_whitelist[%d]", i),
					fmt.Sprintf("%q is neither an IP nor a CIDR", entry))
			}
		}
	}

	// History
	if data.History.Enabled {
		if strings.TrimSpace(data.History.DatabaseFile) == "" {
			result.AddError("application_data.history.database_file", "database file is required when history is enabled")
		}
		if data.History.RetentionDays < 1 {
			result.AddError("application_data.history.retention_days", "retention days must be at least 1")
		}
		if _, err := time.Parse("15:04", data.History.CleanupTime); err != nil {
			result.AddError("application_data.history.cleanup_time",
				fmt.Sprintf("invalid time %q, expected HH:MM", data.History.CleanupTime))
		}
	}

	if data.Notify.WebhookURL != "" {
		u, err := url.Parse(data.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.AddError("application_data.notify.webhook_url", "webhook URL must be an http(s) URL")
		}
	}

	validateTimers(&data.Timers, result)

	known := make(map[string]bool, len(rconData.Servers))
	for _, t := range rconData.Servers {
		known[t.Name] = true
	}
	for i, s := range data.Schedules {
		field := fmt.Sprintf("application_data.schedules[%d]", i)
		if !known[s.Server] {
			result.AddError(field+".server", fmt.Sprintf("unknown server %q", s.Server))
		}
		if strings.TrimSpace(s.Command) == "" {
			result.AddError(field+".command", "command is required")
		}
		if s.IntervalSec < 1 {
			result.AddError(field+".interval_sec", "interval must be at least 1 second")
		}
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.HealthCheckIntervalSec < 0 {
		result.AddError("timers.health_check_interval_sec", "must not be negative")
	} else if timers.HealthCheckIntervalSec > 0 && timers.HealthCheckIntervalSec < 5 {
		result.AddWarning("timers.health_check_interval_sec",
			"health check interval less than 5s may flood the game servers")
	}
	if timers.SessionIdleTimeoutSec < 0 {
		result.AddError("timers.session_idle_timeout_sec", "must not be negative")
	}
	if timers.HeartbeatIntervalSec < 0 {
		result.AddError("timers.heartbeat_interval_sec", "must not be negative")
	} else if timers.HeartbeatIntervalSec > 0 && timers.HeartbeatIntervalSec < 10 {
		result.AddWarning("timers.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// ValidateAddress checks that addr is "host:port" with a usable port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid address %q: missing host", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid address %q: bad port", addr)
	}
	return nil
}
