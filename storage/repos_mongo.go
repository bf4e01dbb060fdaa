package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSubjectRepo struct {
	db *mongo.Database
}

func (r *mongoSubjectRepo) Ensure(ctx context.Context, externalID string) (int64, error) {
	if id, err := r.GetByExternalID(ctx, externalID); err == nil {
		return id, nil
	}

	seq, err := nextSeq(ctx, r.db, "persona_subject")
	if err != nil {
		return 0, err
	}

	doc := bson.M{
		"id":           seq,
		"uuid":         uuid.New().String(),
		"external_id":  externalID,
		"date_created": time.Now().UTC(),
	}

	coll := r.db.Collection("persona_subject")
	_, err = coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return r.GetByExternalID(ctx, externalID)
		}
		return 0, err
	}
	return seq, nil
}

func (r *mongoSubjectRepo) GetByExternalID(ctx context.Context, externalID string) (int64, error) {
	coll := r.db.Collection("persona_subject")
	var doc struct {
		ID int64 `bson:"id"`
	}
	err := coll.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("subject %q: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return doc.ID, nil
}

type mongoFactRepo struct {
	db *mongo.Database
}

type mongoFactDoc struct {
	ID              int64     `bson:"id"`
	UUID            string    `bson:"uuid"`
	SubjectID       int64     `bson:"subject_id"`
	Key             string    `bson:"key"`
	Value           string    `bson:"value"`
	Confidence      float64   `bson:"confidence"`
	SourceStatement string    `bson:"source_statement"`
	Revision        int64     `bson:"revision"`
	DateCreated     time.Time `bson:"date_created"`
	DateUpdated     time.Time `bson:"date_updated"`
}

func (d mongoFactDoc) record() *FactRecord {
	return &FactRecord{
		ID:              d.ID,
		UUID:            d.UUID,
		SubjectID:       d.SubjectID,
		Key:             d.Key,
		Value:           d.Value,
		Confidence:      d.Confidence,
		SourceStatement: d.SourceStatement,
		Revision:        d.Revision,
		DateCreated:     d.DateCreated,
		DateUpdated:     d.DateUpdated,
	}
}

func (r *mongoFactRepo) Insert(ctx context.Context, subjectID int64, key, value string, confidence float64, source string) (*FactRecord, error) {
	seq, err := nextSeq(ctx, r.db, "persona_fact")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := mongoFactDoc{
		ID:              seq,
		UUID:            uuid.New().String(),
		SubjectID:       subjectID,
		Key:             key,
		Value:           value,
		Confidence:      confidence,
		SourceStatement: source,
		Revision:        1,
		DateCreated:     now,
		DateUpdated:     now,
	}

	coll := r.db.Collection("persona_fact")
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("fact %q: %w", key, ErrKeyExists)
		}
		return nil, err
	}
	return doc.record(), nil
}

func (r *mongoFactRepo) Update(ctx context.Context, subjectID int64, key, value string, confidence float64, source string, expectedRevision int64) (*FactRecord, error) {
	coll := r.db.Collection("persona_fact")

	filter := bson.M{"subject_id": subjectID, "key": key, "revision": expectedRevision}
	update := bson.M{
		"$set": bson.M{
			"value":            value,
			"confidence":       confidence,
			"source_statement": source,
			"date_updated":     time.Now().UTC(),
		},
		"$inc": bson.M{"revision": int64(1)},
	}

	var doc mongoFactDoc
	err := coll.FindOneAndUpdate(
		ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Distinguish a missing key from a lost-update race.
		if _, err := r.Get(ctx, subjectID, key); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fact %q: expected revision %d: %w", key, expectedRevision, ErrRevisionConflict)
	}
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (r *mongoFactRepo) Delete(ctx context.Context, subjectID int64, key string) error {
	coll := r.db.Collection("persona_fact")
	res, err := coll.DeleteOne(ctx, bson.M{"subject_id": subjectID, "key": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("fact %q: %w", key, ErrNotFound)
	}
	return nil
}

func (r *mongoFactRepo) Get(ctx context.Context, subjectID int64, key string) (*FactRecord, error) {
	coll := r.db.Collection("persona_fact")
	var doc mongoFactDoc
	err := coll.FindOne(ctx, bson.M{"subject_id": subjectID, "key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("fact %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (r *mongoFactRepo) List(ctx context.Context, subjectID int64, limit int, afterID int64) ([]FactRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	coll := r.db.Collection("persona_fact")
	cur, err := coll.Find(
		ctx,
		bson.M{"subject_id": subjectID, "id": bson.M{"$gt": afterID}},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []FactRecord
	for cur.Next(ctx) {
		var doc mongoFactDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.record())
	}
	return out, cur.Err()
}

func (r *mongoFactRepo) Keys(ctx context.Context, subjectID int64) ([]string, error) {
	recs, err := r.List(ctx, subjectID, 0, 0)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.Key)
	}
	return keys, nil
}

func (r *mongoFactRepo) Search(ctx context.Context, subjectID int64, query string, limit int) ([]FactRecord, error) {
	recs, err := r.List(ctx, subjectID, 0, 0)
	if err != nil {
		return nil, err
	}
	return rankFacts(query, recs, limit), nil
}

type mongoAuditRepo struct {
	db *mongo.Database
}

func (r *mongoAuditRepo) Append(ctx context.Context, subjectID int64, key, op, value string, confidence float64, source string, revision int64) error {
	seq, err := nextSeq(ctx, r.db, "persona_fact_audit")
	if err != nil {
		return err
	}
	coll := r.db.Collection("persona_fact_audit")
	doc := bson.M{
		"id":               seq,
		"uuid":             uuid.New().String(),
		"subject_id":       subjectID,
		"key":              key,
		"op":               op,
		"value":            value,
		"confidence":       confidence,
		"source_statement": source,
		"revision":         revision,
		"date_created":     time.Now().UTC(),
	}
	_, err = coll.InsertOne(ctx, doc)
	return err
}

// nextSeq yields monotonically increasing int64 ids per collection so that
// Mongo rows keep the same insertion-ordered id semantics as the SQL schema.
func nextSeq(ctx context.Context, db *mongo.Database, name string) (int64, error) {
	coll := db.Collection("persona_counters")
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}
