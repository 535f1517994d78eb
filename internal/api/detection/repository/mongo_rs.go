package detectionRepository

import (
	"ProductVision/internal/entity"
	contextPkg "ProductVision/pkg/context"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type mongoRepository struct {
	client     *mongo.Client
	collection collection
	log        *logrus.Logger
}

func NewMongo(client *mongo.Client, database, collectionName string, log *logrus.Logger) Repository {
	return &mongoRepository{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		log:        log,
	}
}

func (r *mongoRepository) InsertProduct(ctx context.Context, product entity.Product) (string, error) {
	requestID := contextPkg.GetRequestID(ctx)

	result, err := r.collection.InsertOne(ctx, product)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"class":      product.Class,
			"error":      err.Error(),
		}).Error("Database error when inserting product")
		return "", err
	}

	id := insertedID(result.InsertedID)
	r.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"product_id": id,
	}).Debug("Product inserted")

	return id, nil
}

func (r *mongoRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func insertedID(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
