package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestGetPrediction_UnreachableServerIsAnError(t *testing.T) {
	client := NewFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	val, ok, err := client.GetPrediction(ctx, "prediction:abc")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)

	assert.Error(t, client.SetPrediction(ctx, "prediction:abc", []byte("[]"), time.Minute))
}

func TestEnabled(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	assert.False(t, Enabled())

	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	assert.True(t, Enabled())
}
