package detectionRepository

import (
	"ProductVision/internal/entity"
	"context"
)

// Repository is the storage gateway for persisted crops. Implementations are
// safe for concurrent use and hold one connection pool for the process lifetime.
type Repository interface {
	InsertProduct(ctx context.Context, product entity.Product) (string, error)
	Close(ctx context.Context) error
}
