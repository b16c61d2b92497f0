package responder

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ChallengePath is the HTTP-01 well-known prefix.
const ChallengePath = "/.well-known/acme-challenge/"

// Source returns the currently published key authorization.
type Source interface {
	ChallengeResponse(ctx context.Context) (string, error)
}

// Server answers HTTP-01 validation requests from the shared challenge
// record written by the record backend.
type Server struct {
	router chi.Router
	source Source
	logger zerolog.Logger
}

// NewServer creates a Server. HTTP metrics are registered on reg.
func NewServer(source Source, reg prometheus.Registerer, logger zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		source: source,
		logger: logger.With().Str("component", "responder").Logger(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(newHTTPMetrics(reg).middleware)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get(ChallengePath+"{token}", s.handleChallenge)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler in an *http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// handleChallenge serves the stored key authorization only for the token it
// belongs to. A key authorization is "<token>.<thumbprint>".
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	response, err := s.source.ChallengeResponse(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to load challenge record")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if token == "" || !strings.HasPrefix(response, token+".") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(response))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
