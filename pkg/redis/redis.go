package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type IRedis interface {
	SetPrediction(ctx context.Context, key string, value []byte, expiration time.Duration) error
	GetPrediction(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}

type redisClient struct {
	client *redis.Client
}

// Enabled reports whether a Redis address is configured at all.
func Enabled() bool {
	return os.Getenv("REDIS_ADDRESS") != ""
}

func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return NewFromClient(client)
}

func NewFromClient(client *redis.Client) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) SetPrediction(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	logrus.Debug(fmt.Sprintf("Caching prediction for key %s with expiration %v", key, expiration))
	err := r.client.Set(ctx, key, value, expiration).Err()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error caching prediction for key %s: %v", key, err))
		return err
	}
	return nil
}

// GetPrediction reports a miss as (nil, false, nil); only transport failures are errors.
func (r *redisClient) GetPrediction(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Prediction not cached for key %s", key))
		return nil, false, nil
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error reading prediction for key %s: %v", key, err))
		return nil, false, err
	}
	return val, true, nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
