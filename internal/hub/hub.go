// Package hub accepts persistent connections, turns each into a session and
// dispatches the session's inbound events to the registry, the room index
// and the message router.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/fanout"
	"github.com/nfrund/chatterbox/internal/identity"
	"github.com/nfrund/chatterbox/internal/protocol"
	"github.com/nfrund/chatterbox/internal/rooms"
	"github.com/nfrund/chatterbox/internal/session"
)

// Hub owns the lifecycle of every session it serves.
type Hub struct {
	registry    *identity.Registry
	rooms       *rooms.Index
	router      *fanout.Router
	validate    *validator.Validate
	sessionOpts []session.Option
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int64

	// mu orders wg.Add in Serve against Close; no session starts after Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithSessionOptions applies opts to every session the hub creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(h *Hub) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// New creates a Hub.
func New(registry *identity.Registry, index *rooms.Index, router *fanout.Router, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry: registry,
		rooms:    index,
		router:   router,
		validate: validator.New(),
		logger:   slog.Default().With("service", "hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs a session over t until the transport fails, the session is torn
// down, ctx is canceled or the hub is closed. It always disconnects the
// session before returning. After Close, t is closed without being served.
func (h *Hub) Serve(ctx context.Context, t session.Transport, opts ...session.Option) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = t.Close("server shutting down")
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	all := make([]session.Option, 0, len(h.sessionOpts)+len(opts))
	all = append(all, h.sessionOpts...)
	all = append(all, opts...)
	s := session.New(t, all...)
	s.Start()

	h.active.Add(1)
	defer h.active.Add(-1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.Done():
		case <-h.ctx.Done():
		case <-ctx.Done():
		}
		cancel()
	}()

	defer h.disconnect(s)

	h.logger.Debug("Session opened", "sessionID", s.ID())
	for {
		raw, err := t.Read(ctx)
		if err != nil {
			h.logger.Debug("Session read loop ended", "sessionID", s.ID(), "error", err)
			return
		}
		h.dispatch(ctx, s, raw)
	}
}

// disconnect removes s from the registry and then from every joined room.
func (h *Hub) disconnect(s *session.Session) {
	if uid, ok := s.UserID(); ok {
		h.registry.Deregister(uid, s)
	}
	for _, roomID := range s.Rooms() {
		h.rooms.Leave(roomID, s)
		s.RemoveRoom(roomID)
	}
	s.Close("disconnect")
	h.logger.Debug("Session disconnected", "sessionID", s.ID())
}

// ActiveSessions returns the number of sessions currently being served.
func (h *Hub) ActiveSessions() int {
	return int(h.active.Load())
}

// Close ends every session and waits for their teardown, or for ctx.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) dispatch(ctx context.Context, s *session.Session, raw []byte) {
	// Every frame costs a token, decodable or not. A refused frame is not
	// decoded, so its error carries no id.
	if !s.Allow() {
		h.replyError(s, "", "", domain.ErrRateLimited)
		return
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.replyError(s, env.ID, env.Event, domain.NewError(domain.CodeInvalidMessage, "malformed frame"))
		return
	}

	var err error
	var messageID string
	switch env.Event {
	case protocol.EventRegisterUser:
		err = h.registerUser(s, env.Data)
	case protocol.EventJoinRoom:
		err = h.joinRoom(ctx, s, env.Data)
	case protocol.EventLeaveRoom:
		err = h.leaveRoom(s, env.Data)
	case protocol.EventSendRoomMessage:
		messageID, err = h.sendRoomMessage(ctx, s, env.Data)
	case protocol.EventSendDirectMessage:
		messageID, err = h.sendDirectMessage(ctx, s, env.Data)
	default:
		err = domain.NewError(domain.CodeInvalidMessage, "unknown event "+env.Event)
	}

	if err != nil {
		h.logger.Debug("Event rejected", "sessionID", s.ID(), "event", env.Event, "error", err)
		h.replyError(s, env.ID, env.Event, err)
		return
	}
	h.reply(s, protocol.EventAck, protocol.Ack{ID: env.ID, Event: env.Event, MessageID: messageID})
}

func (h *Hub) registerUser(s *session.Session, data json.RawMessage) error {
	req, err := decode[protocol.RegisterUser](h, data)
	if err != nil {
		return err
	}
	changed, err := s.Bind(req.UserID)
	if err != nil {
		return err
	}
	if changed {
		h.registry.Register(req.UserID, s)
		h.logger.Info("User registered on session", "userID", req.UserID, "sessionID", s.ID())
	}
	return nil
}

func (h *Hub) joinRoom(ctx context.Context, s *session.Session, data json.RawMessage) error {
	uid, err := boundUser(s)
	if err != nil {
		return err
	}
	req, err := decode[protocol.RoomRef](h, data)
	if err != nil {
		return err
	}
	if err := h.rooms.Join(ctx, req.RoomID, uid, s); err != nil {
		return err
	}
	s.AddRoom(req.RoomID)
	return nil
}

func (h *Hub) leaveRoom(s *session.Session, data json.RawMessage) error {
	if _, err := boundUser(s); err != nil {
		return err
	}
	req, err := decode[protocol.RoomRef](h, data)
	if err != nil {
		return err
	}
	h.rooms.Leave(req.RoomID, s)
	s.RemoveRoom(req.RoomID)
	return nil
}

func (h *Hub) sendRoomMessage(ctx context.Context, s *session.Session, data json.RawMessage) (string, error) {
	uid, err := boundUser(s)
	if err != nil {
		return "", err
	}
	req, err := decode[protocol.SendRoomMessage](h, data)
	if err != nil {
		return "", err
	}
	if err := checkSender(uid, req.SenderID); err != nil {
		return "", err
	}
	msg, err := h.router.SendRoomMessage(ctx, uid, req.RoomID, req.Text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (h *Hub) sendDirectMessage(ctx context.Context, s *session.Session, data json.RawMessage) (string, error) {
	uid, err := boundUser(s)
	if err != nil {
		return "", err
	}
	req, err := decode[protocol.SendDirectMessage](h, data)
	if err != nil {
		return "", err
	}
	if err := checkSender(uid, req.SenderID); err != nil {
		return "", err
	}
	msg, err := h.router.SendDirectMessage(ctx, uid, req.ReceiverID, req.Text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (h *Hub) reply(s *session.Session, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		h.logger.Error("Failed to encode reply", "event", event, "error", err)
		return
	}
	if err := s.Deliver(frame); err != nil {
		h.logger.Debug("Reply not delivered", "sessionID", s.ID(), "event", event, "error", err)
	}
}

func (h *Hub) replyError(s *session.Session, id, event string, err error) {
	h.reply(s, protocol.EventError, protocol.ErrorFrame(id, event, err))
}

func boundUser(s *session.Session) (domain.UserID, error) {
	uid, ok := s.UserID()
	if !ok {
		return "", domain.ErrNotAuthenticated
	}
	return uid, nil
}

// checkSender rejects payloads that claim a sender other than the session's
// user. An omitted sender means the session's user.
func checkSender(bound, claimed domain.UserID) error {
	if claimed != "" && claimed != bound {
		return domain.NewError(domain.CodeNotAuthenticated, "senderId does not match registered user")
	}
	return nil
}

func decode[T any](h *Hub, data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, domain.Wrap(domain.CodeInvalidMessage, "malformed payload", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return v, domain.Wrap(domain.CodeInvalidMessage, "invalid payload", err)
	}
	return v, nil
}
