package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard asks for a first server target and the API settings, then
// saves the configuration.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "rconbridge setup")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Game Server ──")

	target := ServerTarget{Enabled: true}
	target.Name = promptString(reader, out, "Server name", "main")
	target.Address = promptString(reader, out, "RCON address (host:port)",
		fmt.Sprintf("127.0.0.1:%d", DefaultRCONPort))
	target.Password = promptString(reader, out, "RCON password", "")
	target.ReadTimeoutSec = promptInt(reader, out, "Read timeout (seconds, 0 = default)", 0)

	app := cfg.GetApplicationData()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── REST API ──")

	app.API.Host = promptString(reader, out, "Listen host", app.API.Host)
	app.API.Port = promptInt(reader, out, "Listen port", app.API.Port)
	app.Security.AuthDisabled = !promptBool(reader, out, "Require API tokens", !app.Security.AuthDisabled)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")

	app.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", app.MQTT.Enabled)
	if app.MQTT.Enabled {
		app.MQTT.BrokerURL = promptString(reader, out, "Broker host", app.MQTT.BrokerURL)
		app.MQTT.Port = promptInt(reader, out, "Broker port", app.MQTT.Port)
	}

	cfg.UpsertTarget(target)
	cfg.SetApplicationData(app)

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
	return nil
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
