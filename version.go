// Package freeflow implements a NetFlow v5 collector that ships decoded
// flow records to Splunk HEC.
package freeflow

import (
	"fmt"
)

// AppName is the CLI's reported program name.
const AppName = "freeflow"

var (
	version string
	build   string
)

// Version returns the application version and build information.
// The version and build values are injected at compile time via ldflags.
func Version() string {
	return fmt.Sprintf("%s (%s)", version, build)
}
