package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/metacode/fiches-api/internal/core/domain"
)

const recordsCollection = "fiches"

// RecordRepository implements ports.RecordRepository using MongoDB.
type RecordRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewRecordRepository(db *mongo.Database) *RecordRepository {
	return &RecordRepository{
		col: db.Collection(recordsCollection),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type mongoRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Title        string             `bson:"title"`
	Content      string             `bson:"content,omitempty"`
	Visible      bool               `bson:"visible"`
	Downloadable bool               `bson:"downloadable"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func toMongoRecord(r domain.Record) mongoRecord {
	return mongoRecord{
		Title:        r.Title,
		Content:      r.Content,
		Visible:      r.Visible,
		Downloadable: r.Downloadable,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (m mongoRecord) toDomain() *domain.Record {
	return &domain.Record{
		ID:           m.ID.Hex(),
		Title:        m.Title,
		Content:      m.Content,
		Visible:      m.Visible,
		Downloadable: m.Downloadable,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

// Create inserts a new record after applying defaults.
func (r *RecordRepository) Create(ctx context.Context, fields domain.RecordFields) (*domain.Record, error) {
	rec, err := domain.NewRecord(fields, r.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoRecord(rec)
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, storeErr("insert record", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected inserted id %v", domain.ErrStoreUnavailable, res.InsertedID)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

// FindByID retrieves a record. Malformed ids are reported as not found.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoRecord
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("find record", err)
	}
	return doc.toDomain(), nil
}

func (r *RecordRepository) FindAll(ctx context.Context) ([]*domain.Record, error) {
	return r.find(ctx, bson.M{})
}

// Search matches query as a literal, case-insensitive substring of the title.
func (r *RecordRepository) Search(ctx context.Context, query string) ([]*domain.Record, error) {
	filter := bson.M{"title": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}}
	return r.find(ctx, filter)
}

func (r *RecordRepository) find(ctx context.Context, filter bson.M) ([]*domain.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, storeErr("find records", err)
	}
	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeErr("decode records", err)
	}

	out := make([]*domain.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// UpdateField atomically sets a single flag and returns the updated document.
func (r *RecordRepository) UpdateField(ctx context.Context, id string, field domain.Field, value bool) (*domain.Record, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrValidation, field)
	}
	return r.findAndSet(ctx, id, bson.M{string(field): value})
}

// Replace sets every provided field; id and createdAt are never written.
func (r *RecordRepository) Replace(ctx context.Context, id string, fields domain.RecordFields) (*domain.Record, error) {
	set := bson.M{}
	if fields.Title != nil {
		if !domain.ValidTitle(fields.Title) {
			return nil, fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
		}
		set["title"] = *fields.Title
	}
	if fields.Content != nil {
		set["content"] = *fields.Content
	}
	if fields.Visible != nil {
		set["visible"] = *fields.Visible
	}
	if fields.Downloadable != nil {
		set["downloadable"] = *fields.Downloadable
	}
	return r.findAndSet(ctx, id, set)
}

func (r *RecordRepository) findAndSet(ctx context.Context, id string, set bson.M) (*domain.Record, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	set["updatedAt"] = r.now()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoRecord
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("update record", err)
	}
	return doc.toDomain(), nil
}

// Delete removes the record and returns the deleted document.
func (r *RecordRepository) Delete(ctx context.Context, id string) (*domain.Record, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoRecord
	if err := r.col.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr("delete record", err)
	}
	return doc.toDomain(), nil
}

// BulkCreate inserts the complete entries of list with a single ordered insert.
func (r *RecordRepository) BulkCreate(ctx context.Context, list []domain.RecordFields) ([]*domain.Record, error) {
	valid, err := domain.FilterComplete(list)
	if err != nil {
		return nil, err
	}

	now := r.now()
	docs := make([]mongoRecord, 0, len(valid))
	batch := make([]any, 0, len(valid))
	for _, f := range valid {
		rec, err := domain.NewRecord(f, now)
		if err != nil {
			return nil, err
		}
		doc := toMongoRecord(rec)
		doc.ID = primitive.NewObjectID()
		docs = append(docs, doc)
		batch = append(batch, doc)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, storeErr("insert records", err)
	}

	out := make([]*domain.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// CountByPeriod groups records by createdAt formatted to the period, most
// recent bucket first. Weeks use the ISO week-numbering year (%G-W%V).
func (r *RecordRepository) CountByPeriod(ctx context.Context, period domain.Period) ([]domain.StatBucket, error) {
	if _, err := domain.ParsePeriod(string(period)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: period.DateFormat()},
				{Key: "date", Value: "$createdAt"},
			}}}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "bucket", Value: "$_id"},
			{Key: "total", Value: 1},
		}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("aggregate records", err)
	}

	var rows []struct {
		Bucket string `bson:"bucket"`
		Total  int64  `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, storeErr("decode buckets", err)
	}

	out := make([]domain.StatBucket, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.StatBucket{Bucket: row.Bucket, Total: row.Total})
	}
	return out, nil
}

// EnsureIndexes creates the indexes used by listing, search and statistics.
func (r *RecordRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "title", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
