package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const highPendingCount = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastPublishTime   time.Time `json:"last_publish_time"`
	ChangesPublished  uint64    `json:"changes_published"`
	PendingChanges    int       `json:"pending_changes"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	RelayRunning      bool      `json:"relay_running"`
	Errors            []string  `json:"errors"`
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type connStatus interface {
	IsConnected() bool
}

type pendingCounter interface {
	CountUnsent(ctx context.Context) (int, error)
}

type relayStatus interface {
	Stats() (uint64, time.Time)
	Running() bool
}

// HealthChecker reports whether the relay is keeping up with the outbox.
type HealthChecker struct {
	relay   relayStatus
	db      pinger
	nats    connStatus
	pending pendingCounter
	clock   clockwork.Clock
	// threshold is how long pending changes may sit without a publish
	threshold time.Duration
}

func NewHealthChecker(relay relayStatus, db pinger, nats connStatus, pending pendingCounter, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		db:        db,
		nats:      nats,
		pending:   pending,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}
	status.ChangesPublished, status.LastPublishTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.RelayRunning = h.relay.Running()
	if !status.RelayRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay not running")
	}

	if status.DatabaseConnected {
		pending, err := h.pending.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending changes: %v", err))
		} else {
			status.PendingChanges = pending
			if pending > highPendingCount {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending change count: %d", pending))
			}
		}
	}

	if status.PendingChanges > 0 && !status.LastPublishTime.IsZero() {
		if since := h.clock.Since(status.LastPublishTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no changes published for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
