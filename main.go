// bar-pulse keeps the status data a desktop bar shows (weather, prayer
// times, media, battery, network, system load, tailnet) fresh in the
// background and hands it to bars, prompts and dashboards.
//
// Usage:
//
//	bar-pulse daemon              run the polling daemon
//	bar-pulse line [service...]   print a status line from the snapshots
//	bar-pulse get <service>       print one service's value from the daemon
//	bar-pulse refresh [service]   ask the daemon to refresh now
//	bar-pulse status              show daemon health
//	bar-pulse set <key> on|off    change a runtime setting
//	bar-pulse monitor             interactive monitor
//	bar-pulse config              print the effective configuration
//	bar-pulse version             print version information
package main

import (
	"fmt"
	"runtime"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	Execute()
}

func versionString() string {
	return fmt.Sprintf("bar-pulse %s (%s, %s, %s)", version, commit[:min(7, len(commit))], date, runtime.Version())
}
