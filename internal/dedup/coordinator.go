package dedup

import (
	"log/slog"
	"sync"
)

// Coordinator owns the process-wide ingestion state: the set of fingerprints
// currently in flight and the single-flight SMS lock. Construct one per
// ingestion subsystem and share it between adapters.
type Coordinator struct {
	logger *slog.Logger

	mu         sync.Mutex
	inFlight   map[string]struct{}
	smsRunning bool
}

// NewCoordinator creates an empty coordinator
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// TryBegin claims fingerprint. It returns false without side effects when
// another caller already holds it.
func (c *Coordinator) TryBegin(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.inFlight[fingerprint]; held {
		return false
	}
	c.inFlight[fingerprint] = struct{}{}
	return true
}

// End releases a claim taken with TryBegin
func (c *Coordinator) End(fingerprint string) {
	c.mu.Lock()
	delete(c.inFlight, fingerprint)
	c.mu.Unlock()
}

// TryAcquireSMS takes the single-flight SMS lock. A caller that gets false
// must drop its event rather than wait.
func (c *Coordinator) TryAcquireSMS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.smsRunning {
		return false
	}
	c.smsRunning = true
	return true
}

// ReleaseSMS frees the single-flight SMS lock
func (c *Coordinator) ReleaseSMS() {
	c.mu.Lock()
	c.smsRunning = false
	c.mu.Unlock()
}

// InFlight reports how many fingerprints are currently claimed
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// Reset drops every claim and the SMS lock. Called on teardown and when the
// signed-in user changes.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	dropped := len(c.inFlight)
	c.inFlight = make(map[string]struct{})
	c.smsRunning = false
	c.mu.Unlock()

	c.logger.Info("Ingestion coordinator reset", "dropped_claims", dropped)
}
