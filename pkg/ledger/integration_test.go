//go:build integration

package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func TestLedger_AgainstRealRedis(t *testing.T) {
	redisURL := setupRedis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := Dial(ctx, redisURL, "MicroChainExecutor77")
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.SubscribeAttemptEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for v := 1; v <= 3; v++ {
		outcome, errText := OutcomeRepaired, fmt.Sprintf("ERROR: attempt %d", v)
		if v == 3 {
			outcome, errText = OutcomeDeployed, ""
		}
		require.NoError(t, client.RecordAttempt(ctx, NewAttempt("requests", v, fmt.Sprintf("/ws/v%d", v), errText, outcome)))
	}

	attempts, err := client.ListAttempts(ctx, "requests")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, OutcomeDeployed, attempts[2].Outcome)

	for i := 1; i <= 3; i++ {
		select {
		case got := <-sub.Events():
			assert.Equal(t, i, got.Version)
		case <-ctx.Done():
			t.Fatal("timed out waiting for attempt events")
		}
	}
}
