package server

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// waitForShutdown returns a channel that receives an interrupt or terminate
// signal.
func waitForShutdown() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return quit
}

// Shutdown ends every session, stops the HTTP server and releases the bus and
// the store. Sessions go first so their teardown still reaches the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("Shutdown finished with errors", "error", err)
		return err
	}
	slog.Info("Server stopped")
	return nil
}
