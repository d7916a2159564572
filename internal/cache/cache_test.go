package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisInvalidURL(t *testing.T) {
	_, err := NewRedis("http://localhost:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestNopCache(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}
