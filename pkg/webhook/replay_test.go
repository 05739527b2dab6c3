package webhook

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/rollcall/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestReplayGuard_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	guard, err := NewReplayGuard(client, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, guard.Seen(ctx, "msg_1"))
	// Checking never records; only Mark does.
	assert.False(t, guard.Seen(ctx, "msg_1"))

	guard.Mark(ctx, "msg_1")
	assert.True(t, guard.Seen(ctx, "msg_1"))
	assert.False(t, guard.Seen(ctx, "msg_2"))

	// Entries expire; a late redelivery is processed again, which is fine.
	mr.FastForward(replayTTL + 1)
	assert.False(t, guard.Seen(ctx, "msg_1"))
}

func TestReplayGuard_RedisDownFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	guard, err := NewReplayGuard(client, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, guard.Seen(ctx, "msg_1"))
	guard.Mark(ctx, "msg_1")
	assert.True(t, guard.Seen(ctx, "msg_1"))
}

func TestReplayGuard_NoRedis(t *testing.T) {
	guard, err := NewReplayGuard(nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, guard.Seen(ctx, "msg_1"))
	guard.Mark(ctx, "msg_1")
	assert.True(t, guard.Seen(ctx, "msg_1"))

	// Blank ids pass through both directions.
	guard.Mark(ctx, "")
	assert.False(t, guard.Seen(ctx, ""))
}
