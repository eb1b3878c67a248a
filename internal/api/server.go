// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kapsel-sh/kapsel/internal/api/handlers"
	"github.com/kapsel-sh/kapsel/internal/config"
	"github.com/kapsel-sh/kapsel/internal/covers"
	"github.com/kapsel-sh/kapsel/internal/library"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	queue     *covers.Queue
	store     *library.Store
	cache     *covers.Cache
	validator *covers.Validator
	uploader  *covers.Uploader
}

type Dependencies struct {
	Config    *config.AppConfig
	Version   string
	Queue     *covers.Queue
	Store     *library.Store
	Cache     *covers.Cache
	Validator *covers.Validator
	Uploader  *covers.Uploader
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:    log.Logger.With().Str("module", "api").Logger(),
		config:    deps.Config,
		version:   deps.Version,
		queue:     deps.Queue,
		store:     deps.Store,
		cache:     deps.Cache,
		validator: deps.Validator,
		uploader:  deps.Uploader,
	}
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Msgf("Starting API server - Open: http://%s", host)

	s.server.Handler = s.Handler()

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(s.version)
	coversHandler := handlers.NewCoversHandler(s.queue, s.store, s.cache, s.validator, s.uploader)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		r.Route("/covers", func(r chi.Router) {
			r.Post("/resolve", coversHandler.Resolve)
			r.Post("/validate", coversHandler.Validate)

			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/", coversHandler.Get)
				r.Post("/refresh", coversHandler.Refresh)
				r.Post("/upload", coversHandler.Upload)
			})
		})
	})

	return r
}
