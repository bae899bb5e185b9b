package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/chatterbox/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// DefaultWriteTimeout bounds both queueing a frame and writing it to the
	// transport.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultQueueSize is the capacity of the outbound frame queue.
	DefaultQueueSize = 256
)

// ErrClosed is returned by Deliver once the session has been torn down.
var ErrClosed = errors.New("session closed")

// Transport is the connection a session writes to and reads from.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// State is the lifecycle stage of a session.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one live connection. The joined-room set is owned by the
// goroutine that reads from the transport and must only be touched there.
type Session struct {
	id           string
	transport    Transport
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	queueSize    int
	limiter      *rate.Limiter
	logger       *slog.Logger

	mu       sync.RWMutex
	userID   domain.UserID
	verified domain.UserID

	rooms map[domain.RoomID]struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithQueueSize overrides DefaultQueueSize. Zero makes every Deliver wait for
// the writer.
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.queueSize = n
		}
	}
}

// WithRateLimit limits inbound events to r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Session) {
		if r > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithVerifiedUser records the identity proven by the transport handshake.
// Bind then refuses any other user id.
func WithVerifiedUser(id domain.UserID) Option {
	return func(s *Session) {
		s.verified = id
	}
}

// New creates an Unbound session over t. Call Start to begin writing.
func New(t Transport, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		transport:    t,
		done:         make(chan struct{}),
		writeTimeout: DefaultWriteTimeout,
		queueSize:    DefaultQueueSize,
		rooms:        make(map[domain.RoomID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.send = make(chan []byte, s.queueSize)
	s.logger = slog.Default().With("service", "session", "sessionID", s.id)
	return s
}

// ID returns the process-unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start launches the writer goroutine.
func (s *Session) Start() {
	go s.writePump()
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Transport returns the underlying transport.
func (s *Session) Transport() Transport {
	return s.transport
}

// State reports the current lifecycle stage.
func (s *Session) State() State {
	select {
	case <-s.done:
		return StateClosed
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return StateUnbound
	}
	return StateBound
}

// UserID returns the owning user and whether the session is bound.
func (s *Session) UserID() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// VerifiedUser returns the identity established by the transport, if any.
func (s *Session) VerifiedUser() domain.UserID {
	return s.verified
}

// Bind sets the owning user. It reports whether this call changed the
// binding; binding again to the same user is a no-op.
func (s *Session) Bind(id domain.UserID) (bool, error) {
	if id == "" {
		return false, domain.NewError(domain.CodeInvalidMessage, "userId is required")
	}
	if s.verified != "" && id != s.verified {
		return false, domain.NewError(domain.CodeNotAuthenticated, "userId does not match authenticated identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.userID == id:
		return false, nil
	case s.userID != "":
		return false, domain.NewError(domain.CodeInvalidMessage, "session is already registered to another user")
	}
	s.userID = id
	return true, nil
}

// Allow consumes one inbound event token.
func (s *Session) Allow() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// AddRoom records a live join.
func (s *Session) AddRoom(id domain.RoomID) {
	s.rooms[id] = struct{}{}
}

// RemoveRoom forgets a live join.
func (s *Session) RemoveRoom(id domain.RoomID) {
	delete(s.rooms, id)
}

// InRoom reports whether the session has joined id.
func (s *Session) InRoom(id domain.RoomID) bool {
	_, ok := s.rooms[id]
	return ok
}

// Rooms returns the joined rooms.
func (s *Session) Rooms() []domain.RoomID {
	out := make([]domain.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// Deliver queues frame for writing. If the queue stays full for the write
// timeout the session is torn down and a delivery failure is returned.
func (s *Session) Deliver(frame []byte) error {
	select {
	case <-s.done:
		return domain.Wrap(domain.CodeDelivery, "session closed", ErrClosed)
	default:
	}

	select {
	case s.send <- frame:
		return nil
	default:
	}

	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return domain.Wrap(domain.CodeDelivery, "session closed", ErrClosed)
	case <-timer.C:
		s.logger.Warn("Outbound queue stalled, closing session", "timeout", s.writeTimeout)
		s.Close("outbound queue stalled")
		return domain.Wrap(domain.CodeDelivery, "outbound queue stalled", context.DeadlineExceeded)
	}
}

// Close tears the session down. Only the first call has any effect.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.transport.Close(reason); err != nil {
			s.logger.Debug("Transport close returned error", "error", err)
		}
		s.logger.Debug("Session closed", "reason", reason)
	})
}

// writePump drains the outbound queue into the transport until the session
// closes or a write fails.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
			err := s.transport.Write(ctx, frame)
			cancel()
			if err != nil {
				s.logger.Error("Transport write error", "error", err)
				s.Close("write failed")
				return
			}
		}
	}
}
