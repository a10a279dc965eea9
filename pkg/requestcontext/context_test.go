package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal(t *testing.T) {
	_, ok := Principal(context.Background())
	assert.False(t, ok)
	assert.Empty(t, ActorID(context.Background()))

	ctx := WithPrincipal(context.Background(), Caller{UserID: "u1", Roles: []string{"reader"}})
	c, ok := Principal(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", ActorID(ctx))
	assert.True(t, c.HasAnyRole("admin", "reader"))
	assert.False(t, c.HasAnyRole("admin"))
}

func TestNow(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

func TestClientMetadata(t *testing.T) {
	ctx := WithClientMetadata(WithRequestID(context.Background(), "req-1"), "10.0.0.1", "curl/8.5 (Linux)")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.5 (Linux)", UserAgent(ctx))
	assert.Empty(t, ClientIP(context.Background()))
}
