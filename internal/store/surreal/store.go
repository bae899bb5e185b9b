// Package surreal implements the storage collaborators on SurrealDB.
//
// Tables:
//
//	message     sender, room | receiver, text, createdAt
//	room        name, createdBy, createdAt
//	membership  id [room, user], room, user
//	friendship  id [a, b] with a < b, a, b, status
package surreal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nfrund/chatterbox/internal/database"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/store"
	"github.com/rs/xid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	messageTable    = "message"
	roomTable       = "room"
	membershipTable = "membership"
	friendshipTable = "friendship"

	statusAccepted = "accepted"
)

var _ domain.Store = (*Store)(nil)

type messageRecord struct {
	ID        string                       `json:"id"`
	Sender    string                       `json:"sender"`
	Room      string                       `json:"room,omitempty"`
	Receiver  string                       `json:"receiver,omitempty"`
	Text      string                       `json:"text"`
	CreatedAt surrealmodels.CustomDateTime `json:"createdAt"`
}

func (r messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:         r.ID,
		SenderID:   domain.UserID(r.Sender),
		RoomID:     domain.RoomID(r.Room),
		ReceiverID: domain.UserID(r.Receiver),
		Text:       r.Text,
		CreatedAt:  r.CreatedAt.Time.UTC(),
	}
}

type roomRecord struct {
	ID        string                       `json:"id"`
	Name      string                       `json:"name"`
	CreatedBy string                       `json:"createdBy"`
	CreatedAt surrealmodels.CustomDateTime `json:"createdAt"`
}

type membershipRecord struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// messageFields projects the record id as a plain string.
const messageFields = "meta::id(id) AS id, sender, room, receiver, text, createdAt"
const roomFields = "meta::id(id) AS id, name, createdBy, createdAt"

// Store is a domain.Store backed by a SurrealDB connection.
type Store struct {
	db    *surrealdb.DB
	clock *store.Clock
}

// New wraps an open connection. Close closes it.
func New(db *surrealdb.DB) *Store {
	return &Store{db: db, clock: store.NewClock(time.Microsecond)}
}

// Open wraps db and defines the indexes the history queries rely on.
func Open(ctx context.Context, db *surrealdb.DB) (*Store, error) {
	s := New(db)
	schema := strings.Join([]string{
		"DEFINE INDEX IF NOT EXISTS message_room ON message FIELDS room, createdAt",
		"DEFINE INDEX IF NOT EXISTS message_pair ON message FIELDS sender, receiver, createdAt",
		"DEFINE INDEX IF NOT EXISTS membership_user ON membership FIELDS user",
	}, ";\n")
	if err := database.Execute(ctx, db, schema, nil); err != nil {
		return nil, fmt.Errorf("define surreal schema: %w", err)
	}
	return s, nil
}

func (s *Store) PersistMessage(ctx context.Context, d domain.Draft) (domain.Message, error) {
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}

	params := map[string]any{
		"id":     xid.New().String(),
		"sender": string(d.SenderID),
		"text":   d.Text,
		"now":    surrealmodels.CustomDateTime{Time: s.clock.Next()},
	}
	set := "sender = $sender, text = $text, createdAt = $now"
	if d.RoomID != "" {
		set += ", room = $target"
		params["target"] = string(d.RoomID)
	} else {
		set += ", receiver = $target"
		params["target"] = string(d.ReceiverID)
	}

	query := fmt.Sprintf("CREATE type::thing('%s', $id) SET %s RETURN NONE; SELECT %s FROM type::thing('%s', $id)",
		messageTable, set, messageFields, messageTable)
	rec, err := database.QueryLast[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	if len(rec) == 0 {
		return domain.Message{}, fmt.Errorf("message %s was not created", params["id"])
	}
	return rec[0].toDomain(), nil
}

func (s *Store) FetchRoomHistory(ctx context.Context, roomID domain.RoomID, since *time.Time) ([]domain.Message, error) {
	params := map[string]any{"room": string(roomID)}
	where := "room = $room"
	if since != nil {
		where += " AND createdAt > $since"
		params["since"] = surrealmodels.CustomDateTime{Time: since.UTC()}
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY createdAt, id", messageFields, messageTable, where)
	recs, err := database.Query[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room history: %w", err)
	}
	return toMessages(recs), nil
}

func (s *Store) FetchDirectHistory(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE (sender = $a AND receiver = $b) OR (sender = $b AND receiver = $a) ORDER BY createdAt, id",
		messageFields, messageTable)
	recs, err := database.Query[messageRecord](ctx, s.db, query, map[string]any{"a": string(a), "b": string(b)})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch direct history: %w", err)
	}
	return toMessages(recs), nil
}

func (s *Store) IsDurableMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	query := fmt.Sprintf("SELECT room, user FROM type::thing('%s', [$room, $user])", membershipTable)
	rec, err := database.QueryOne[membershipRecord](ctx, s.db, query, map[string]any{
		"room": string(roomID),
		"user": string(userID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return rec != nil, nil
}

func (s *Store) AddDurableMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	room, err := s.room(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.ErrNotFound
	}
	return s.upsertMembers(ctx, roomID, []domain.UserID{userID})
}

func (s *Store) upsertMembers(ctx context.Context, roomID domain.RoomID, members []domain.UserID) error {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = string(m)
	}
	query := fmt.Sprintf("FOR $m IN $members { UPSERT type::thing('%s', [$room, $m]) SET room = $room, user = $m; }", membershipTable)
	if err := database.Execute(ctx, s.db, query, map[string]any{"room": string(roomID), "members": ids}); err != nil {
		return fmt.Errorf("failed to add members: %w", err)
	}
	return nil
}

func (s *Store) ListDurableRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.RoomID, error) {
	query := fmt.Sprintf("SELECT room, user FROM %s WHERE user = $user ORDER BY room", membershipTable)
	recs, err := database.Query[membershipRecord](ctx, s.db, query, map[string]any{"user": string(userID)})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]domain.RoomID, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.RoomID(r.Room))
	}
	return out, nil
}

func (s *Store) CreateRoom(ctx context.Context, name string, createdBy domain.UserID, members []domain.UserID) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || createdBy == "" {
		return domain.Room{}, domain.NewError(domain.CodeInvalidMessage, "room name and creator are required")
	}

	params := map[string]any{
		"id":        xid.New().String(),
		"name":      name,
		"createdBy": string(createdBy),
		"now":       surrealmodels.CustomDateTime{Time: time.Now().UTC()},
	}
	query := fmt.Sprintf("CREATE type::thing('%s', $id) SET name = $name, createdBy = $createdBy, createdAt = $now RETURN NONE; SELECT %s FROM type::thing('%s', $id)",
		roomTable, roomFields, roomTable)
	recs, err := database.QueryLast[roomRecord](ctx, s.db, query, params)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	if len(recs) == 0 {
		return domain.Room{}, fmt.Errorf("room %s was not created", params["id"])
	}

	all := domain.MembersWithCreator(createdBy, members)
	room := toRoom(recs[0], all)
	if err := s.upsertMembers(ctx, room.ID, all); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) ListRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	ids, err := s.ListDurableRoomsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	things := make([]surrealmodels.RecordID, len(ids))
	plain := make([]string, len(ids))
	for i, id := range ids {
		things[i] = surrealmodels.NewRecordID(roomTable, string(id))
		plain[i] = string(id)
	}

	rooms, err := database.Query[roomRecord](ctx, s.db,
		fmt.Sprintf("SELECT %s FROM %s WHERE id IN $ids ORDER BY createdAt", roomFields, roomTable),
		map[string]any{"ids": things})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	members, err := database.Query[membershipRecord](ctx, s.db,
		fmt.Sprintf("SELECT room, user FROM %s WHERE room IN $ids", membershipTable),
		map[string]any{"ids": plain})
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}

	byRoom := make(map[string][]domain.UserID, len(rooms))
	for _, m := range members {
		byRoom[m.Room] = append(byRoom[m.Room], domain.UserID(m.User))
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		list := byRoom[r.ID]
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
	query := fmt.Sprintf("UPSERT type::thing('%s', [$a, $b]) SET a = $a, b = $b, status = $status", friendshipTable)
	if err := database.Execute(ctx, s.db, query, map[string]any{"a": lo, "b": hi, "status": statusAccepted}); err != nil {
		return fmt.Errorf("failed to add friendship: %w", err)
	}
	return nil
}

func (s *Store) ListAcceptedFriends(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	query := fmt.Sprintf(
		"RETURN array::sort(array::union((SELECT VALUE b FROM %[1]s WHERE a = $user AND status = $status), (SELECT VALUE a FROM %[1]s WHERE b = $user AND status = $status)))",
		friendshipTable)
	ids, err := database.Query[string](ctx, s.db, query, map[string]any{"user": string(userID), "status": statusAccepted})
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.UserID(id))
	}
	return out, nil
}

// Close closes the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) room(ctx context.Context, roomID domain.RoomID) (*roomRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM type::thing('%s', $id)", roomFields, roomTable)
	rec, err := database.QueryOne[roomRecord](ctx, s.db, query, map[string]any{"id": string(roomID)})
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return rec, nil
}

func toMessages(recs []messageRecord) []domain.Message {
	out := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out
}

func toRoom(r roomRecord, members []domain.UserID) domain.Room {
	return domain.Room{
		ID:        domain.RoomID(r.ID),
		Name:      r.Name,
		Members:   members,
		CreatedBy: domain.UserID(r.CreatedBy),
		CreatedAt: r.CreatedAt.Time.UTC(),
	}
}
