package mongo

import (
	"context"
	"time"

	"github.com/yoockh/callgate/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UtteranceRepository interface {
	Upsert(ctx context.Context, u *models.Utterance) error
	ListByCall(ctx context.Context, callID string, limit int64) ([]models.Utterance, error)
}

type utteranceRepo struct {
	col *mongo.Collection
}

func NewUtteranceRepo(db *mongo.Database) UtteranceRepository {
	return &utteranceRepo{col: db.Collection("utterances")}
}

// Upsert keys on (call_id, seq) so a redelivered audit message overwrites
// rather than duplicates.
func (r *utteranceRepo) Upsert(ctx context.Context, u *models.Utterance) error {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"call_id": u.CallID, "seq": u.Seq},
		u,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *utteranceRepo) ListByCall(ctx context.Context, callID string, limit int64) ([]models.Utterance, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"call_id": callID},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Utterance
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
