package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoMigrationOp struct {
	Collection string
	Index      mongo.IndexModel
}

var mongoMigrations = map[int][]mongoMigrationOp{
	1: {
		{"persona_schema_version", mongo.IndexModel{
			Keys:    bson.D{{Key: "num", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"persona_subject", mongo.IndexModel{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"persona_subject", mongo.IndexModel{
			Keys:    bson.D{{Key: "uuid", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"persona_fact", mongo.IndexModel{
			Keys:    bson.D{{Key: "uuid", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		// Uniqueness of (subject, key): concurrent inserts of the same key
		// race on this index, the loser observes a duplicate-key error.
		{"persona_fact", mongo.IndexModel{
			Keys:    bson.D{{Key: "subject_id", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"persona_fact", mongo.IndexModel{
			Keys:    bson.D{{Key: "subject_id", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_persona_fact_subject_order"),
		}},
		{"persona_fact_audit", mongo.IndexModel{
			Keys:    bson.D{{Key: "uuid", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{"persona_fact_audit", mongo.IndexModel{
			Keys:    bson.D{{Key: "subject_id", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_persona_fact_audit_subject"),
		}},
	},
}

func (d *MongoDriver) migrateMongo(ctx context.Context) error {
	currentVersion := d.getSchemaVersion(ctx)
	maxVersion := 1 // Currently only version 1

	if currentVersion >= maxVersion {
		return nil
	}

	for v := currentVersion + 1; v <= maxVersion; v++ {
		ops, ok := mongoMigrations[v]
		if !ok {
			continue
		}

		for _, op := range ops {
			coll := d.db().Collection(op.Collection)
			_, err := coll.Indexes().CreateOne(ctx, op.Index)
			if err != nil {
				// Ignore duplicate index errors
				if !mongo.IsDuplicateKeyError(err) {
					return err
				}
			}
		}

		svColl := d.db().Collection("persona_schema_version")
		_, err := svColl.ReplaceOne(
			ctx,
			bson.M{"num": currentVersion},
			bson.M{"num": v},
			options.Replace().SetUpsert(true),
		)
		if err != nil {
			return err
		}
		currentVersion = v
	}

	return nil
}

func (d *MongoDriver) getSchemaVersion(ctx context.Context) int {
	svColl := d.db().Collection("persona_schema_version")
	var doc struct {
		Num int `bson:"num"`
	}
	err := svColl.FindOne(ctx, bson.M{}).Decode(&doc)
	if err != nil {
		return 0
	}
	return doc.Num
}
