package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nfrund/chatterbox/internal/auth"
	"github.com/nfrund/chatterbox/internal/config"
	"github.com/nfrund/chatterbox/internal/database"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/fanout"
	"github.com/nfrund/chatterbox/internal/handlers"
	"github.com/nfrund/chatterbox/internal/hub"
	"github.com/nfrund/chatterbox/internal/identity"
	"github.com/nfrund/chatterbox/internal/middleware"
	"github.com/nfrund/chatterbox/internal/presence"
	"github.com/nfrund/chatterbox/internal/pubsub"
	"github.com/nfrund/chatterbox/internal/rooms"
	"github.com/nfrund/chatterbox/internal/session"
	"github.com/nfrund/chatterbox/internal/store/memory"
	"github.com/nfrund/chatterbox/internal/store/mongodb"
	"github.com/nfrund/chatterbox/internal/store/surreal"
	"github.com/nfrund/chatterbox/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	Store    domain.Store
	Bus      *pubsub.WatermillBridge
	Hub      *hub.Hub
	Registry *identity.Registry
	Rooms    *rooms.Index
	Router   *fanout.Router
	Presence *presence.Tracker
	Verifier auth.Verifier

	Connections *websocket.ConnectionStats

	cancel context.CancelFunc
}

// New connects the configured store backend and builds a Server on it.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewWithStore(cfg, store)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server on an already opened store.
func NewWithStore(cfg *config.Config, store domain.Store) (*Server, error) {
	registry := identity.NewRegistry()
	index := rooms.NewIndex(store)

	routerOpts := []fanout.Option{fanout.WithMaxMessageLength(cfg.MaxMessageLength)}
	if cfg.SanitizeHTML {
		routerOpts = append(routerOpts, fanout.WithSanitizer(bluemonday.StrictPolicy()))
	}
	router := fanout.NewRouter(store, registry, index, routerOpts...)

	bus := pubsub.NewWatermillBridge()
	tracker := presence.NewTracker(bus, registry, store)
	registry.SetListener(tracker)

	ctx, cancel := context.WithCancel(context.Background())
	if err := tracker.Start(ctx, bus); err != nil {
		cancel()
		_ = bus.Close()
		return nil, fmt.Errorf("failed to start presence tracker: %w", err)
	}
	connections := websocket.NewConnectionStats()
	if err := connections.Start(ctx, bus); err != nil {
		cancel()
		_ = bus.Close()
		return nil, fmt.Errorf("failed to start connection stats: %w", err)
	}

	h := hub.New(registry, index, router, hub.WithSessionOptions(
		session.WithWriteTimeout(cfg.WriteTimeout),
		session.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	))

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Validator = handlers.NewValidator()
	setupErrorHandling(e)

	s := &Server{
		E:        e,
		Cfg:      cfg,
		Store:    store,
		Bus:      bus,
		Hub:      h,
		Registry: registry,
		Rooms:    index,
		Router:   router,
		Presence: tracker,
		Verifier: auth.NewVerifier(cfg),

		Connections: connections,
		cancel:      cancel,
	}
	s.RegisterRoutes()
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSurreal:
		db, err := database.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := surreal.Open(ctx, db)
		if err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return store, nil
	case config.BackendMongo:
		return mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	case config.BackendMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// setupErrorHandling renders every error as a JSON body and logs the ones no
// handler translated, with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := handlers.ErrorResponse{Code: string(domain.CodePersistence), Message: "internal error"}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			body.Code = http.StatusText(code)
			body.Message = fmt.Sprint(he.Message)
		} else {
			slog.Error("Internal Server Error (Unhandled)",
				"error", err.Error(),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, body)
		}
		if writeErr != nil {
			slog.Error("Failed to write error response", "error", writeErr)
		}
	}
}
