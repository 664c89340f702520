// Package liveness derives node online state from heartbeat recency.
//
// The stored candidate flag and heartbeat timestamp are inputs only; the
// online verdict is recomputed at every read so a panel restart or a
// silent daemon death can never leave a node permanently "online".
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

const (
	// HeartbeatInterval is how often daemons are expected to check in.
	HeartbeatInterval = 30 * time.Second
	// StaleAfter is the age at which a heartbeat stops proving liveness,
	// 1.5x the heartbeat interval. The comparison is strict: a heartbeat
	// exactly StaleAfter old is already stale.
	StaleAfter = 45 * time.Second
)

// Online derives the node-online verdict from the candidate flag and the
// last heartbeat time. A node that never heartbeated is offline no
// matter what the flag says.
func Online(candidateOnline bool, lastHeartbeat *time.Time, now time.Time) bool {
	if !candidateOnline || lastHeartbeat == nil {
		return false
	}
	return now.Sub(*lastHeartbeat) < StaleAfter
}

// NodeOnline derives the verdict for a node row.
func NodeOnline(n *models.Node, now time.Time) bool {
	return Online(n.CandidateOnline, n.LastHeartbeat, now)
}

// HeartbeatStore persists heartbeat observations.
type HeartbeatStore interface {
	// RecordHeartbeat sets the node's last heartbeat time, marks it a
	// liveness candidate, and stores the reported latency when present.
	RecordHeartbeat(ctx context.Context, nodeID string, at time.Time, latencyMS *int64) error
}

// Tracker records daemon contact and decorates node rows with the
// derived online flag before they cross an API or coordinator boundary.
type Tracker struct {
	store  HeartbeatStore
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store HeartbeatStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides the tracker's clock. Tests only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RecordHeartbeat registers authenticated daemon contact for the node.
// Any authenticated daemon request counts, not just the heartbeat
// endpoint, so a chatty daemon never goes stale between heartbeats.
func (t *Tracker) RecordHeartbeat(ctx context.Context, nodeID string, latencyMS *int64) error {
	at := t.now()
	if err := t.store.RecordHeartbeat(ctx, nodeID, at, latencyMS); err != nil {
		return err
	}
	t.logger.Debug("node heartbeat recorded", "node_id", nodeID, "at", at)
	return nil
}

// Decorate fills in the derived Online field on a node row.
func (t *Tracker) Decorate(n *models.Node) *models.Node {
	if n == nil {
		return nil
	}
	n.Online = NodeOnline(n, t.now())
	return n
}

// DecorateAll fills in the derived Online field on each node row.
func (t *Tracker) DecorateAll(nodes []*models.Node) []*models.Node {
	now := t.now()
	for _, n := range nodes {
		if n != nil {
			n.Online = NodeOnline(n, now)
		}
	}
	return nodes
}
