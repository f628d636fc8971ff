// Package server hosts the HTTP API and owns its lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/server/ai"
	apiv1 "github.com/aurachat/aura/server/router/api/v1"
	"github.com/aurachat/aura/storage"
	"github.com/aurachat/aura/store"
)

const shutdownTimeout = 10 * time.Second

// Server wires the profile, store and generator into one HTTP service.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	blobStore  *storage.LocalStore
}

// NewServer assembles the API around the given store and generator.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, generator ai.Generator) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	blobDir := filepath.Join(profile.Data, "blobs")
	blobStore, err := storage.NewLocalStore(blobDir, profile.InstanceURL+"/o")
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize blob store")
	}
	// Stored objects are served straight from disk.
	e.Static("/o", blobDir)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiService := apiv1.NewAPIV1Service(profile.Secret, profile, store, generator, blobStore)
	apiService.RegisterRoutes(e)

	return &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
		blobStore:  blobStore,
	}, nil
}

// Start runs the server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "address", address, "mode", s.Profile.Mode)
		errCh <- s.echoServer.Start(address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
