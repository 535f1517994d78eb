package detectionRepository

import (
	"ProductVision/internal/entity"
	contextPkg "ProductVision/pkg/context"
	"ProductVision/pkg/utils"
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

type postgresRepository struct {
	q     SQLExecutor
	db    *sqlx.DB
	utils utils.IUtils
	log   *logrus.Logger
	now   func() time.Time
}

// NewPostgres stores each product as a JSONB document keyed by a ULID, creating
// the table on first use.
func NewPostgres(ctx context.Context, db *sqlx.DB, utils utils.IUtils, log *logrus.Logger) (Repository, error) {
	if _, err := db.ExecContext(ctx, queryCreateProductsTable); err != nil {
		log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Failed to create products table")
		return nil, err
	}

	return &postgresRepository{
		q:     db,
		db:    db,
		utils: utils,
		log:   log,
		now:   time.Now,
	}, nil
}

func (r *postgresRepository) InsertProduct(ctx context.Context, product entity.Product) (string, error) {
	requestID := contextPkg.GetRequestID(ctx)
	createdAt := r.now()

	id, err := r.utils.NewULIDFromTimestamp(createdAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate product id")
		return "", err
	}
	product.ID = id

	document, err := jsoniter.Marshal(product)
	if err != nil {
		return "", err
	}

	argsKV := map[string]interface{}{
		"id":         id,
		"document":   string(document),
		"created_at": createdAt,
	}

	query, args, err := sqlx.Named(queryInsertProduct, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for InsertProduct")
		return "", err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"class":      product.Class,
			"error":      err.Error(),
		}).Error("Database error when inserting product")
		return "", err
	}

	return id, nil
}

func (r *postgresRepository) Close(context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
