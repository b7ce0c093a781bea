package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/exsmiley/langread/types"
)

const connectTimeout = 10 * time.Second

// Mongo implements ArticleStore and TagStore on MongoDB.
type Mongo struct {
	client      *mongo.Client
	articles    *mongo.Collection
	synthesized *mongo.Collection
	tags        *mongo.Collection
}

// NewMongo connects to the given URI and prepares the collections. The tag
// name index enforces canonical-name uniqueness at the database level.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{
		client:      client,
		articles:    db.Collection("articles"),
		synthesized: db.Collection("generated_articles"),
		tags:        db.Collection("tags"),
	}

	_, err = m.tags.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create tag index: %w", err)
	}
	return m, nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) SaveExtracted(ctx context.Context, article *types.ExtractedArticle) (bool, error) {
	_, err := m.articles.InsertOne(ctx, article)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", article.ID, err)
	}
	return true, nil
}

func (m *Mongo) GetExtracted(ctx context.Context, id string) (*types.ExtractedArticle, error) {
	var article types.ExtractedArticle
	err := m.articles.FindOne(ctx, bson.M{"_id": id}).Decode(&article)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return &article, nil
}

func (m *Mongo) FindExtracted(ctx context.Context, filter ExtractedFilter) ([]*types.ExtractedArticle, error) {
	query := bson.M{}
	if filter.Language != "" {
		query["language"] = filter.Language
	}
	if filter.Rewritten != nil {
		query["rewritten"] = *filter.Rewritten
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := m.articles.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*types.ExtractedArticle
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return results, nil
}

func (m *Mongo) MarkRewritten(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.articles.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"rewritten": true}},
	)
	if err != nil {
		return fmt.Errorf("mark rewritten: %w", err)
	}
	return nil
}

func (m *Mongo) SaveSynthesized(ctx context.Context, article *types.SynthesizedArticle) error {
	if _, err := m.synthesized.InsertOne(ctx, article); err != nil {
		return fmt.Errorf("insert generated article %q: %w", article.Title, err)
	}
	return nil
}

func (m *Mongo) FindSynthesized(ctx context.Context, filter SynthesizedFilter) ([]*types.SynthesizedArticle, error) {
	query := bson.M{}
	if filter.Language != "" {
		query["language"] = filter.Language
	}
	if filter.Difficulty != "" {
		query["difficulty"] = filter.Difficulty
	}
	if filter.Topic != "" {
		query["topics"] = filter.Topic
	}

	opts := options.Find().SetSort(bson.D{{Key: "date_created", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := m.synthesized.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find generated articles: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*types.SynthesizedArticle
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode generated articles: %w", err)
	}
	return results, nil
}

func (m *Mongo) DeleteSynthesized(ctx context.Context, filter SynthesizedFilter) (int64, error) {
	query := bson.M{}
	if filter.Language != "" {
		query["language"] = filter.Language
	}
	if filter.Difficulty != "" {
		query["difficulty"] = filter.Difficulty
	}
	if filter.Topic != "" {
		query["topics"] = filter.Topic
	}
	res, err := m.synthesized.DeleteMany(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete generated articles: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) GetByName(ctx context.Context, canonicalName string) (*types.Tag, error) {
	var tag types.Tag
	err := m.tags.FindOne(ctx, bson.M{"name": canonicalName}).Decode(&tag)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %q: %w", canonicalName, err)
	}
	return &tag, nil
}

func (m *Mongo) Insert(ctx context.Context, tag *types.Tag) error {
	if _, err := m.tags.InsertOne(ctx, tag); err != nil {
		return fmt.Errorf("insert tag %q: %w", tag.CanonicalName, err)
	}
	return nil
}

func (m *Mongo) AddArticleRef(ctx context.Context, tagID, articleID string) error {
	// The $ne guard keeps the ref list duplicate-free and only counts
	// when the ref was actually added.
	_, err := m.tags.UpdateOne(ctx,
		bson.M{"_id": tagID, "article_refs": bson.M{"$ne": articleID}},
		bson.M{
			"$push": bson.M{"article_refs": articleID},
			"$inc":  bson.M{"article_count": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("add article ref to tag %s: %w", tagID, err)
	}
	return nil
}

func (m *Mongo) RemoveArticleRef(ctx context.Context, tagID, articleID string) error {
	// The filter matches only when the ref is present so the count is
	// decremented at most once.
	_, err := m.tags.UpdateOne(ctx,
		bson.M{"_id": tagID, "article_refs": articleID},
		bson.M{
			"$pull": bson.M{"article_refs": articleID},
			"$inc":  bson.M{"article_count": -1},
		},
	)
	if err != nil {
		return fmt.Errorf("remove article ref from tag %s: %w", tagID, err)
	}
	return nil
}

func (m *Mongo) AddTranslations(ctx context.Context, tagID string, translations map[string]string) error {
	set := bson.M{}
	for lang, name := range translations {
		set["translations."+lang] = name
	}
	if len(set) == 0 {
		return nil
	}
	res, err := m.tags.UpdateOne(ctx, bson.M{"_id": tagID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("add translations to tag %s: %w", tagID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SetActive(ctx context.Context, tagID string, active bool) error {
	res, err := m.tags.UpdateOne(ctx, bson.M{"_id": tagID}, bson.M{"$set": bson.M{"active": active}})
	if err != nil {
		return fmt.Errorf("set tag %s active=%v: %w", tagID, active, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SetArticleCount(ctx context.Context, tagID string, count int) error {
	res, err := m.tags.UpdateOne(ctx, bson.M{"_id": tagID}, bson.M{"$set": bson.M{"article_count": count}})
	if err != nil {
		return fmt.Errorf("set tag %s article count: %w", tagID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) List(ctx context.Context, activeOnly bool) ([]*types.Tag, error) {
	query := bson.M{}
	if activeOnly {
		query["active"] = true
	}
	cursor, err := m.tags.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*types.Tag
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return results, nil
}
