package domain

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorContext(t *testing.T) {
	t.Run("ActorFromContext returns nil when no actor", func(t *testing.T) {
		assert.Nil(t, ActorFromContext(context.Background()))
		assert.Nil(t, ActorIDFromContext(context.Background()))
	})

	t.Run("ActorIDFromContext returns the operator id", func(t *testing.T) {
		id := uuid.New()
		ctx := NewContextWithActor(context.Background(), &Actor{ID: id, Name: "jane@club.example"})

		got := ActorIDFromContext(ctx)
		require.NotNil(t, got)
		assert.Equal(t, id, *got)
	})

	t.Run("system actors have no audit id", func(t *testing.T) {
		ctx := NewContextWithActor(context.Background(), SystemActor("dunning"))

		assert.Equal(t, "dunning", ActorFromContext(ctx).Name)
		assert.Nil(t, ActorIDFromContext(ctx))
	})
}

func TestRequestIDContext(t *testing.T) {
	ctx := NewContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
