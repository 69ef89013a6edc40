package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(db *mongo.Database) error {
	if db == nil {
		return errors.New("mongo database is nil; call InitMongo() first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// utterances indexes
	utterances := db.Collection("utterances")
	_, err := utterances.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// 1) TTL index: expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		// 2) one audit record per utterance
		{
			Keys: bson.D{{Key: "call_id", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_seq").
				SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	calls := db.Collection("calls")
	_, err = calls.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "call_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_call_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_status_created"),
		},
		{
			Keys:    bson.D{{Key: "metadata.customer_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_customer_created"),
		},
	})
	return err
}
