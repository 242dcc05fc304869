package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContextRoundTrip(t *testing.T) {
	require.Zero(t, ActorIDFromContext(context.Background()))

	ctx := ContextWithActor(context.Background(), 42)
	require.Equal(t, int64(42), ActorIDFromContext(ctx))
}

func TestProductionOrderLockKey(t *testing.T) {
	require.Equal(t, "production:order:7:lock", ProductionOrderLockKey(7))
}
