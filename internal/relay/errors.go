// Package relay sends authenticated commands to node daemons over HTTP.
//
// Every failure is classified into exactly one of three kinds so callers
// can tell "the panel decided not to try" (node offline), "the network
// failed" (transport), and "the daemon said no" (daemon error) apart
// without string matching. The relay never retries; retry policy belongs
// to callers who know whether an operation is idempotent.
package relay

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure.
type Kind string

const (
	// KindNodeOffline means the liveness derivation ruled the node
	// offline and no network attempt was made.
	KindNodeOffline Kind = "node_offline"
	// KindTransportFailure means the request left the panel but no HTTP
	// response came back: connection refused, timeout, DNS failure. A
	// timeout is always a transport failure, never proof the node is
	// offline.
	KindTransportFailure Kind = "transport_failure"
	// KindDaemonError means the daemon answered with a non-success
	// status. Message carries the daemon's text verbatim.
	KindDaemonError Kind = "daemon_error"
)

// Error is a classified relay failure.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindDaemonError && e.StatusCode != 0 {
		return fmt.Sprintf("daemon responded %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func nodeOffline(nodeID string) *Error {
	return &Error{Kind: KindNodeOffline, Message: fmt.Sprintf("node %s is offline", nodeID)}
}

func transportFailure(err error) *Error {
	return &Error{Kind: KindTransportFailure, Message: err.Error()}
}

func daemonError(statusCode int, message string) *Error {
	return &Error{Kind: KindDaemonError, Message: message, StatusCode: statusCode}
}

// KindOf returns the relay kind of err, or "" when err is not a relay
// failure.
func KindOf(err error) Kind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}

// IsNodeOffline reports whether err is a node-offline relay failure.
func IsNodeOffline(err error) bool {
	return KindOf(err) == KindNodeOffline
}

// IsTransportFailure reports whether err is a transport relay failure.
func IsTransportFailure(err error) bool {
	return KindOf(err) == KindTransportFailure
}

// IsDaemonError reports whether err is a daemon-rejection relay failure.
func IsDaemonError(err error) bool {
	return KindOf(err) == KindDaemonError
}
