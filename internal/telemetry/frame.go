// Package telemetry implements the client-resident console/stats
// channel to a node daemon: one reconnecting websocket session per open
// server view, with bounded console and stats history.
package telemetry

// Frame is the wire envelope on the daemon console channel. Every
// message in both directions is one JSON object of this shape.
type Frame struct {
	Event string   `json:"event"`
	Args  []string `json:"args,omitempty"`
}

// Events the daemon sends.
const (
	EventAuthSuccess      = "auth success"
	EventConsoleHistory   = "console history"
	EventConsoleOutput    = "console output"
	EventStatus           = "status"
	EventStats            = "stats"
	EventInstallOutput    = "install output"
	EventInstallCompleted = "install completed"
)

// Events the panel sends.
const (
	EventSendCommand = "send command"
	EventSetState    = "set state"
	EventSendLogs    = "send logs"
)

// StateOffline is the daemon status string for a dead container.
// Receiving it clears the console buffer so a later boot does not show
// output from the previous run.
const StateOffline = "offline"
