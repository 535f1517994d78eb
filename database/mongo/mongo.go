package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultURI        = "mongodb://localhost:27017/"
	defaultDatabase   = "product_db"
	defaultCollection = "products"
)

type Config struct {
	URI        string
	Database   string
	Collection string
}

func ConfigFromEnv() Config {
	return Config{
		URI:        getEnv("MONGO_URI", defaultURI),
		Database:   getEnv("MONGO_DATABASE", defaultDatabase),
		Collection: getEnv("MONGO_COLLECTION", defaultCollection),
	}
}

// New opens the client pool. An unreachable server is logged, not fatal: the
// driver keeps dialing in the background and the first insert surfaces the error.
func New(log *logrus.Logger) (*mongo.Client, Config, error) {
	cfg := ConfigFromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.WithFields(logrus.Fields{
			"database": cfg.Database,
			"error":    err.Error(),
		}).Warn("MongoDB is not reachable yet")
	} else {
		log.WithFields(logrus.Fields{
			"database":   cfg.Database,
			"collection": cfg.Collection,
		}).Info("Successfully connected to MongoDB")
	}

	return client, cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
