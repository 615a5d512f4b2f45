// rconbridge is a Source RCON gateway.
//
// It keeps authenticated sessions to a set of game servers, exposes them
// through a REST API and an interactive console, records every command in
// a SQLite history and publishes telemetry via MQTT.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
