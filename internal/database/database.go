// Package database connects to SurrealDB and provides generic query helpers
// for the stores built on it.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/chatterbox/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// NewDB creates and configures a new SurrealDB connection, retrying while the
// server is unreachable.
func NewDB(ctx context.Context, cfg *config.Config) (*surrealdb.DB, error) {
	var db *surrealdb.DB
	err := NewRetryer().Retry(ctx, isConnectionError, func() error {
		var err error
		db, err = connect(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Successfully signed in to SurrealDB", "dbURL", redactDBURL(cfg.DBUrl), "namespace", cfg.DBNs, "database", cfg.DBDb)
	return db, nil
}

func connect(ctx context.Context, cfg *config.Config) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to surrealdb at %s: %w", redactDBURL(cfg.DBUrl), err)
	}

	authData := &surrealdb.Auth{
		Username: cfg.DBUser,
		Password: cfg.DBPass,
	}
	if _, err = db.SignIn(ctx, authData); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	if err = db.Use(ctx, cfg.DBNs, cfg.DBDb); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}
	return db, nil
}
