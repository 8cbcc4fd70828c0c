package services

import (
	"os"
	"strconv"
	"time"

	corectx "github.com/ajna-inc/revreg/pkg/core/context"
	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/revocation/records"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
)

const (
	readinessPollInterval = 500 * time.Millisecond
	defaultReadyTimeout   = 60 * time.Second

	// ReadyTimeoutEnvVar overrides the readiness timeout, in seconds
	ReadyTimeoutEnvVar = "REVREG_READY_TIMEOUT"
)

// ReadinessWaiter blocks callers until at least one active, finished
// revocation registry exists for a credential definition. Read errors during
// polling are logged and tolerated; only the timeout aborts the wait.
type ReadinessWaiter struct {
	repo    *records.RevocationRepository
	log     logger.Logger
	timeout time.Duration
}

// NewReadinessWaiter creates a waiter with the given timeout. A non-positive
// timeout falls back to the environment override, then the 60s default.
func NewReadinessWaiter(repo *records.RevocationRepository, log logger.Logger, timeout time.Duration) *ReadinessWaiter {
	if timeout <= 0 {
		timeout = TimeoutFromEnv()
	}
	return &ReadinessWaiter{repo: repo, log: log, timeout: timeout}
}

// TimeoutFromEnv resolves the readiness timeout from the environment,
// defaulting to 60 seconds
func TimeoutFromEnv() time.Duration {
	if raw := os.Getenv(ReadyTimeoutEnvVar); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultReadyTimeout
}

// WaitForActive polls every 0.5s for an active, finished registry of the
// credential definition and returns it, or a timeout error naming the
// credential definition and the counts last observed.
func (w *ReadinessWaiter) WaitForActive(ctx *corectx.AgentContext, credentialDefinitionId string) (*records.RevocationRegistryDefinitionRecord, error) {
	deadline := time.Now().Add(w.timeout)
	lastActive := 0
	lastFinished := 0

	for {
		actives, err := w.repo.FindActiveDefinitions(ctx.Context, credentialDefinitionId)
		if err != nil {
			// Transient storage hiccups must not abort the wait
			w.log.Warnf("Readiness poll for %s failed: %v", credentialDefinitionId, err)
		} else {
			lastActive = len(actives)
			lastFinished = 0
			for _, record := range actives {
				if record.State == records.RegistryStateFinished {
					lastFinished++
				}
			}
			for _, record := range actives {
				if record.State == records.RegistryStateFinished {
					return record, nil
				}
			}
		}

		if time.Now().After(deadline) {
			return nil, reverrors.Newf(reverrors.CodeTransient,
				"timed out after %s waiting for an active revocation registry for credential definition %s (last poll: %d active, %d finished)",
				w.timeout, credentialDefinitionId, lastActive, lastFinished)
		}

		select {
		case <-ctx.Context.Done():
			return nil, ctx.Context.Err()
		case <-time.After(readinessPollInterval):
		}
	}
}
