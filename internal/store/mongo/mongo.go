// Package mongo keeps direct messages in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/kinchat-server/internal/store"
)

const (
	// CollectionName is the collection holding direct messages.
	CollectionName = "messages"

	connectTimeout = 15 * time.Second
)

type messageDoc struct {
	ID         string    `bson:"_id"`
	SenderID   int64     `bson:"sender_id"`
	ReceiverID int64     `bson:"receiver_id"`
	Text       string    `bson:"text"`
	Read       bool      `bson:"read"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (d messageDoc) toStore() *store.DirectMessage {
	return &store.DirectMessage{
		ID:         d.ID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Read:       d.Read,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

// MessageStore implements store.MessageStore on MongoDB.
type MessageStore struct {
	client   *mongo.Client
	messages *mongo.Collection
}

// New connects to uri, verifies the connection and ensures indexes on database.
func New(ctx context.Context, uri, database string) (*MessageStore, error) {
	clientOptions := options.Client().ApplyURI(uri).SetAppName("kinchat")

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MessageStore{
		client:   client,
		messages: client.Database(database).Collection(CollectionName),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}
	return s, nil
}

func (s *MessageStore) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("messages_pair_created"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("messages_receiver_unread"),
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MessageStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateMessage inserts msg. CreatedAt is filled in when zero.
func (s *MessageStore) CreateMessage(ctx context.Context, msg *store.DirectMessage) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	doc := messageDoc{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage loads one message by ID.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*store.DirectMessage, error) {
	var doc messageDoc
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toStore(), nil
}

// ListConversation returns the messages between a and b in creation order.
func (s *MessageStore) ListConversation(ctx context.Context, a, b int64, limit int, before *time.Time) ([]*store.DirectMessage, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := s.messages.Find(ctx, conversationFilter(a, b, before), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}

	out := make([]*store.DirectMessage, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d.toStore()
	}
	return out, nil
}

// MarkRead flags unread messages matching filter as read.
func (s *MessageStore) MarkRead(ctx context.Context, filter store.ReadFilter) (int64, error) {
	if filter.Empty() {
		return 0, errors.New("mark read: empty filter")
	}
	res, err := s.messages.UpdateMany(ctx, readFilter(filter), bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

func conversationFilter(a, b int64, before *time.Time) bson.M {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": a, "receiver_id": b},
			bson.M{"sender_id": b, "receiver_id": a},
		},
	}
	if before != nil {
		filter["created_at"] = bson.M{"$lt": before.UTC()}
	}
	return filter
}

func readFilter(f store.ReadFilter) bson.M {
	filter := bson.M{"read": false}
	if f.ID != "" {
		filter["_id"] = f.ID
	}
	if f.SenderID != 0 {
		filter["sender_id"] = f.SenderID
	}
	if f.ReceiverID != 0 {
		filter["receiver_id"] = f.ReceiverID
	}
	return filter
}
