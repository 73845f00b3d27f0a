package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Server wraps the standard http.Server with start/shutdown plumbing.
type Server struct {
	server *http.Server
	log    *zerolog.Logger
}

func NewServer(addr string, handler http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{Addr: addr, Handler: handler},
		log:    logger,
	}
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
