package util

// Version is overridden at build time with
// -ldflags "-X github.com/energizer-project/rconbridge/internal/util.Version=...".
var Version = "0.1.0"

// AppName is the product name used in logs, headers and telemetry.
const AppName = "rconbridge"
