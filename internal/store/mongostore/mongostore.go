// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/exp/slog"

	"postboard/internal/model"
	"postboard/internal/store"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	posts  *mongo.Collection
}

var _ store.Store = (*Store)(nil)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
}

type postDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	ImagePath string             `bson:"imagePath"`
	Creator   primitive.ObjectID `bson:"creator"`
}

func (d postDocument) model() model.Post {
	return model.Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Content:   d.Content,
		ImagePath: d.ImagePath,
		Creator:   d.Creator.Hex(),
	}
}

// Open connects to uri, verifies the primary is reachable and ensures the
// unique email index exists.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	slog.Debug("Database pinged", "database", database)

	db := client.Database(database)
	s := &Store{
		client: client,
		users:  db.Collection(usersCollection),
		posts:  db.Collection(postsCollection),
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: create email index: %w", err)
	}

	slog.Info("Database indexes ready", "database", database)

	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (model.User, error) {
	doc := userDocument{
		ID:       primitive.NewObjectID(),
		Email:    email,
		Password: passwordHash,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, fmt.Errorf("create user %q: %w", email, store.ErrDuplicate)
		}

		return model.User{}, err
	}

	return model.User{ID: doc.ID.Hex(), Email: doc.Email, PasswordHash: doc.Password}, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return model.User{}, notFound(err)
	}

	return model.User{ID: doc.ID.Hex(), Email: doc.Email, PasswordHash: doc.Password}, nil
}

// CreatePost stores p. Creator must be the hex id of a user document.
func (s *Store) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	creator, err := primitive.ObjectIDFromHex(p.Creator)
	if err != nil {
		return model.Post{}, fmt.Errorf("mongostore: creator %q: %w", p.Creator, err)
	}

	doc := postDocument{
		ID:        primitive.NewObjectID(),
		Title:     p.Title,
		Content:   p.Content,
		ImagePath: p.ImagePath,
		Creator:   creator,
	}

	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return model.Post{}, err
	}

	return doc.model(), nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Post{}, store.ErrNotFound
	}

	var doc postDocument
	if err := s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return model.Post{}, notFound(err)
	}

	return doc.model(), nil
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]model.Post, error) {
	// ObjectIDs start with a timestamp, so _id order is insertion order.
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.posts.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}

	var docs []postDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	items := make([]model.Post, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}

	return items, nil
}

func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	return s.posts.CountDocuments(ctx, bson.D{})
}

func (s *Store) UpdatePost(ctx context.Context, p model.Post) error {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return store.ErrNotFound
	}

	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"title":     p.Title,
		"content":   p.Content,
		"imagePath": p.ImagePath,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("post %q: %w", p.ID, store.ErrNotFound)
	}

	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}

	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("post %q: %w", id, store.ErrNotFound)
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}

	return err
}
