package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajna-inc/revreg/pkg/core/logger"
	"github.com/ajna-inc/revreg/pkg/revocation/reverrors"
	"github.com/ajna-inc/revreg/pkg/revocation/services"
)

func TestWaitForActiveReturnsActiveRegistry(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, true)

	waiter := services.NewReadinessWaiter(e.repo, logger.NewNullLogger(), 5*time.Second)
	active, err := waiter.WaitForActive(e.ctx, e.credDefId)
	require.NoError(t, err)
	assert.Equal(t, record.RevocationRegistryDefinitionId, active.RevocationRegistryDefinitionId)
}

func TestWaitForActivePicksUpLateActivation(t *testing.T) {
	e := newTestEngine(t)
	record := e.provisionRegistry(t, 5, false)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = e.registrySvc.Activate(e.ctx, record.RevocationRegistryDefinitionId)
	}()

	waiter := services.NewReadinessWaiter(e.repo, logger.NewNullLogger(), 10*time.Second)
	active, err := waiter.WaitForActive(e.ctx, e.credDefId)
	require.NoError(t, err)
	assert.Equal(t, record.RevocationRegistryDefinitionId, active.RevocationRegistryDefinitionId)
}

func TestWaitForActiveTimesOut(t *testing.T) {
	e := newTestEngine(t)

	waiter := services.NewReadinessWaiter(e.repo, logger.NewNullLogger(), 600*time.Millisecond)
	started := time.Now()
	_, err := waiter.WaitForActive(e.ctx, e.credDefId)
	require.Error(t, err)
	assert.True(t, reverrors.ShouldRetry(err))
	assert.Contains(t, err.Error(), e.credDefId)
	assert.Contains(t, err.Error(), "0 active, 0 finished")
	assert.GreaterOrEqual(t, time.Since(started), 600*time.Millisecond)
}

func TestTimeoutFromEnvOverride(t *testing.T) {
	t.Setenv(services.ReadyTimeoutEnvVar, "7")
	assert.Equal(t, 7*time.Second, services.TimeoutFromEnv())

	t.Setenv(services.ReadyTimeoutEnvVar, "not-a-number")
	assert.Equal(t, 60*time.Second, services.TimeoutFromEnv())
}
