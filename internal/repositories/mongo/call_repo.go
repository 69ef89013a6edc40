package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CallRepository interface {
	Create(ctx context.Context, c *models.Call) error
	GetByCallID(ctx context.Context, callID string) (*models.Call, error)
	End(ctx context.Context, callID, reason string, endedAt time.Time, durationSeconds int64, md models.CallMetadata) error
	ListRecent(ctx context.Context, status string, limit int64) ([]models.Call, error)
}

type callRepo struct {
	col *mongo.Collection
}

func NewCallRepo(db *mongo.Database) CallRepository {
	return &callRepo{col: db.Collection("calls")}
}

// Create inserts the call once; a repeated start for the same call id is a no-op.
func (r *callRepo) Create(ctx context.Context, c *models.Call) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"call_id": c.CallID},
		bson.M{"$setOnInsert": c},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *callRepo) GetByCallID(ctx context.Context, callID string) (*models.Call, error) {
	var c models.Call
	err := r.col.FindOne(ctx, bson.M{"call_id": callID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *callRepo) End(ctx context.Context, callID, reason string, endedAt time.Time, durationSeconds int64, md models.CallMetadata) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"call_id": callID},
		bson.M{"$set": bson.M{
			"status":           models.CallStatusEnded,
			"end_reason":       reason,
			"ended_at":         endedAt.UTC(),
			"duration_seconds": durationSeconds,
			"metadata":         md,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *callRepo) ListRecent(ctx context.Context, status string, limit int64) ([]models.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Call
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
