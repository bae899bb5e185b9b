// Package memory is an in-process implementation of every storage
// collaborator. It backs development mode and the test suites.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/store"
	"github.com/rs/xid"
)

// Store keeps messages, rooms, memberships and friendships in memory.
type Store struct {
	mu          sync.RWMutex
	messages    []domain.Message
	rooms       map[domain.RoomID]*domain.Room
	memberships map[domain.RoomID]map[domain.UserID]struct{}
	friends     map[domain.UserID]map[domain.UserID]struct{}
	clock       *store.Clock
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rooms:       make(map[domain.RoomID]*domain.Room),
		memberships: make(map[domain.RoomID]map[domain.UserID]struct{}),
		friends:     make(map[domain.UserID]map[domain.UserID]struct{}),
		clock:       store.NewClock(time.Microsecond),
	}
}

func (s *Store) PersistMessage(ctx context.Context, d domain.Draft) (domain.Message, error) {
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.clock.Next()

	msg := domain.Message{
		ID:         xid.New().String(),
		SenderID:   d.SenderID,
		RoomID:     d.RoomID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		CreatedAt:  createdAt,
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *Store) FetchRoomHistory(ctx context.Context, roomID domain.RoomID, since *time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages {
		if m.RoomID != roomID {
			continue
		}
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) FetchDirectHistory(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages {
		if m.RoomID != "" {
			continue
		}
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) IsDurableMember(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.memberships[roomID][userID]
	return ok, nil
}

func (s *Store) AddDurableMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.addMemberLocked(roomID, userID) {
		room.Members = append(room.Members, userID)
	}
	return nil
}

func (s *Store) addMemberLocked(roomID domain.RoomID, userID domain.UserID) bool {
	set, ok := s.memberships[roomID]
	if !ok {
		set = make(map[domain.UserID]struct{})
		s.memberships[roomID] = set
	}
	if _, ok := set[userID]; ok {
		return false
	}
	set[userID] = struct{}{}
	return true
}

func (s *Store) ListDurableRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.RoomID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RoomID
	for roomID, set := range s.memberships {
		if _, ok := set[userID]; ok {
			out = append(out, roomID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) CreateRoom(ctx context.Context, name string, createdBy domain.UserID, members []domain.UserID) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || createdBy == "" {
		return domain.Room{}, domain.NewError(domain.CodeInvalidMessage, "room name and creator are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := &domain.Room{
		ID:        domain.RoomID(xid.New().String()),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range domain.MembersWithCreator(createdBy, members) {
		s.addMemberLocked(room.ID, m)
		room.Members = append(room.Members, m)
	}
	s.rooms[room.ID] = room
	return copyRoom(room), nil
}

func (s *Store) ListRoomsFor(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Room
	for roomID, set := range s.memberships {
		if _, ok := set[userID]; !ok {
			continue
		}
		if room, ok := s.rooms[roomID]; ok {
			out = append(out, copyRoom(room))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddFriendship records an accepted friendship in both directions.
func (s *Store) AddFriendship(a, b domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addFriendLocked(a, b)
	s.addFriendLocked(b, a)
}

func (s *Store) addFriendLocked(a, b domain.UserID) {
	set, ok := s.friends[a]
	if !ok {
		set = make(map[domain.UserID]struct{})
		s.friends[a] = set
	}
	set[b] = struct{}{}
}

func (s *Store) ListAcceptedFriends(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserID, 0, len(s.friends[userID]))
	for f := range s.friends[userID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func copyRoom(r *domain.Room) domain.Room {
	out := *r
	out.Members = append([]domain.UserID(nil), r.Members...)
	return out
}
