// Package mongodb implements the storage collaborators on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const statusAccepted = "accepted"

var _ domain.Store = (*Store)(nil)

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Sender    string             `bson:"sender"`
	Room      string             `bson:"room,omitempty"`
	Receiver  string             `bson:"receiver,omitempty"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d messageDoc) toDomain() domain.Message {
	return domain.Message{
		ID:         d.ID.Hex(),
		SenderID:   domain.UserID(d.Sender),
		RoomID:     domain.RoomID(d.Room),
		ReceiverID: domain.UserID(d.Receiver),
		Text:       d.Text,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type roomDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	CreatedBy string             `bson:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type membershipDoc struct {
	Room string `bson:"room"`
	User string `bson:"user"`
}

type friendshipDoc struct {
	A      string `bson:"a"`
	B      string `bson:"b"`
	Status string `bson:"status"`
}

// Store is a domain.Store backed by four collections.
type Store struct {
	client      *mongo.Client
	messages    *mongo.Collection
	rooms       *mongo.Collection
	memberships *mongo.Collection
	friendships *mongo.Collection
	clock       *store.Clock
}

// New creates a Store on db. The client, if non-nil, is disconnected by Close.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:      client,
		messages:    db.Collection("messages"),
		rooms:       db.Collection("rooms"),
		memberships: db.Collection("memberships"),
		friendships: db.Collection("friendships"),
		clock:       store.NewClock(time.Millisecond),
	}
}

// Connect dials uri, verifies the server and ensures indexes on dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	s := New(client, client.Database(dbName))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	slog.Info("Connected to MongoDB", "database", dbName)
	return s, nil
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_message_room"),
		},
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_message_pair"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	if _, err := s.memberships.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room", Value: 1}, {Key: "user", Value: 1}},
			Options: options.Index().SetName("idx_membership_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user", Value: 1}},
			Options: options.Index().SetName("idx_membership_user"),
		},
	}); err != nil {
		return fmt.Errorf("failed to create membership indexes: %w", err)
	}
	if _, err := s.friendships.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 1}},
		Options: options.Index().SetName("idx_friendship_pair").SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create friendship index: %w", err)
	}
	return nil
}

func (s *Store) PersistMessage(ctx context.Context, d domain.Draft) (domain.Message, error) {
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}
	doc := messageDoc{
		ID:        primitive.NewObjectID(),
		Sender:    string(d.SenderID),
		Room:      string(d.RoomID),
		Receiver:  string(d.ReceiverID),
		Text:      d.Text,
		CreatedAt: s.clock.Next(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) FetchRoomHistory(ctx context.Context, roomID domain.RoomID, since *time.Time) ([]domain.Message, error) {
	filter := bson.M{"room": string(roomID)}
	if since != nil {
		filter["createdAt"] = bson.M{"$gt": since.UTC()}
	}
	return s.findMessages(ctx, filter)
}

func (s *Store) FetchDirectHistory(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": string(a), "receiver": string(b)},
		bson.M{"sender": string(b), "receiver": string(a)},
	}}
	return s.findMessages(ctx, filter)
}

func (s *Store) findMessages(ctx context.Context, filter bson.M) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) IsDurableMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	n, err := s.memberships.CountDocuments(ctx, bson.M{"room": string(roomID), "user": string(userID)})
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AddDurableMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	oid, err := primitive.ObjectIDFromHex(string(roomID))
	if err != nil {
		return domain.ErrNotFound
	}
	n, err := s.rooms.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to load room: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return s.upsertMember(ctx, roomID, userID)
}

func (s *Store) upsertMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	doc := membershipDoc{Room: string(roomID), User: string(userID)}
	_, err := s.memberships.UpdateOne(ctx,
		bson.M{"room": doc.Room, "user": doc.User},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true))
	// Concurrent upserts of one pair can race on the unique index.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *Store) ListDurableRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.RoomID, error) {
	docs, err := s.membershipsWhere(ctx, bson.M{"user": string(userID)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoomID, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.RoomID(d.Room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) membershipsWhere(ctx context.Context, filter bson.M) ([]membershipDoc, error) {
	cur, err := s.memberships.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer cur.Close(ctx)
	var docs []membershipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode memberships: %w", err)
	}
	return docs, nil
}

func (s *Store) CreateRoom(ctx context.Context, name string, createdBy domain.UserID, members []domain.UserID) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || createdBy == "" {
		return domain.Room{}, domain.NewError(domain.CodeInvalidMessage, "room name and creator are required")
	}
	doc := roomDoc{
		ID:        primitive.NewObjectID(),
		Name:      name,
		CreatedBy: string(createdBy),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.rooms.InsertOne(ctx, doc); err != nil {
		return domain.Room{}, fmt.Errorf("failed to insert room: %w", err)
	}

	all := domain.MembersWithCreator(createdBy, members)
	room := toRoom(doc, all)
	for _, m := range all {
		if err := s.upsertMember(ctx, room.ID, m); err != nil {
			return domain.Room{}, err
		}
	}
	return room, nil
}

func (s *Store) ListRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	ids, err := s.ListDurableRoomsFor(ctx, userID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	oids := make(bson.A, 0, len(ids))
	plain := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(string(id)); err == nil {
			oids = append(oids, oid)
		}
		plain = append(plain, string(id))
	}

	cur, err := s.rooms.Find(ctx, bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer cur.Close(ctx)
	var rooms []roomDoc
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}

	members, err := s.membershipsWhere(ctx, bson.M{"room": bson.M{"$in": plain}})
	if err != nil {
		return nil, err
	}
	byRoom := make(map[string][]domain.UserID, len(rooms))
	for _, m := range members {
		byRoom[m.Room] = append(byRoom[m.Room], domain.UserID(m.User))
	}

	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		list := byRoom[r.ID.Hex()]
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		out = append(out, toRoom(r, list))
	}
	return out, nil
}

// AddFriendship records an accepted friendship between a and b.
func (s *Store) AddFriendship(ctx context.Context, a, b domain.UserID) error {
	lo, hi := string(a), string(b)
	if hi < lo {
		lo, hi = hi, lo
	}
	_, err := s.friendships.UpdateOne(ctx,
		bson.M{"a": lo, "b": hi},
		bson.M{"$set": friendshipDoc{A: lo, B: hi, Status: statusAccepted}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to add friendship: %w", err)
	}
	return nil
}

func (s *Store) ListAcceptedFriends(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	uid := string(userID)
	cur, err := s.friendships.Find(ctx, bson.M{
		"status": statusAccepted,
		"$or":    bson.A{bson.M{"a": uid}, bson.M{"b": uid}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query friendships: %w", err)
	}
	defer cur.Close(ctx)
	var docs []friendshipDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode friendships: %w", err)
	}

	out := make([]domain.UserID, 0, len(docs))
	for _, d := range docs {
		if d.A == uid {
			out = append(out, domain.UserID(d.B))
		} else {
			out = append(out, domain.UserID(d.A))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close disconnects the client passed to New.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}

func toRoom(d roomDoc, members []domain.UserID) domain.Room {
	return domain.Room{
		ID:        domain.RoomID(d.ID.Hex()),
		Name:      d.Name,
		Members:   members,
		CreatedBy: domain.UserID(d.CreatedBy),
		CreatedAt: d.CreatedAt.UTC(),
	}
}
