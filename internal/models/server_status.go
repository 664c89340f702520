package models

// ServerStatus represents the lifecycle state of a game server as tracked
// by the panel. Daemons report container state; the panel maps those
// reports onto this machine.
type ServerStatus string

const (
	// StatusInstalling indicates the server row exists and the daemon is
	// provisioning the container.
	StatusInstalling ServerStatus = "installing"
	// StatusRunning indicates the container is running.
	StatusRunning ServerStatus = "running"
	// StatusStarting indicates a start was requested and is in progress.
	StatusStarting ServerStatus = "starting"
	// StatusStopping indicates a stop was requested and is in progress.
	StatusStopping ServerStatus = "stopping"
	// StatusStopped indicates the container exists but is not running.
	StatusStopped ServerStatus = "stopped"
	// StatusError indicates provisioning failed. Absorbing until reinstall.
	StatusError ServerStatus = "error"
	// StatusSuspended indicates an operator suspended the server. Absorbing
	// until an operator unsuspends; daemon reports are ignored meanwhile.
	StatusSuspended ServerStatus = "suspended"
)

// String returns the string representation of the status.
func (s ServerStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is one the panel tracks.
func (s ServerStatus) IsValid() bool {
	switch s {
	case StatusInstalling, StatusRunning, StatusStarting, StatusStopping,
		StatusStopped, StatusError, StatusSuspended:
		return true
	default:
		return false
	}
}

// AcceptsDaemonReports returns false for statuses that ignore
// daemon-reported container state.
func (s ServerStatus) AcceptsDaemonReports() bool {
	return s != StatusSuspended
}

// PowerAction represents a power signal relayed to a daemon.
type PowerAction string

const (
	// PowerStart starts the container.
	PowerStart PowerAction = "start"
	// PowerStop gracefully stops the container.
	PowerStop PowerAction = "stop"
	// PowerRestart stops then starts the container.
	PowerRestart PowerAction = "restart"
	// PowerKill terminates the container immediately.
	PowerKill PowerAction = "kill"
)

// IsValid returns true if the action is a known power signal.
func (a PowerAction) IsValid() bool {
	switch a {
	case PowerStart, PowerStop, PowerRestart, PowerKill:
		return true
	default:
		return false
	}
}

// ResultingStatus returns the status the panel records after the daemon
// acknowledges the action. The panel does not wait for the daemon's
// follow-up state report to settle the row.
func (a PowerAction) ResultingStatus() ServerStatus {
	switch a {
	case PowerStart, PowerRestart:
		return StatusRunning
	case PowerStop, PowerKill:
		return StatusStopped
	default:
		return ""
	}
}

// StatusFromDaemonState maps a daemon-reported container state onto a
// panel status. Unknown states return ok=false and are dropped.
func StatusFromDaemonState(state string) (ServerStatus, bool) {
	switch state {
	case "starting":
		return StatusStarting, true
	case "running":
		return StatusRunning, true
	case "stopping":
		return StatusStopping, true
	case "stopped", "offline":
		return StatusStopped, true
	default:
		return "", false
	}
}
