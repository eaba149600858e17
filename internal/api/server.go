package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mtconnect/agent-core/internal/config"
	"github.com/mtconnect/agent-core/internal/metrics"
)

// Server wraps the chi-routed REST surface (C11) and streaming dispatcher
// (C12) in an http.Server, adapted from the teacher's server.go wiring.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions configures the REST server.
type ServerOptions struct {
	Config *config.Config
	Data   *DataService
	Log    zerolog.Logger
}

// NewServer builds the chi router and wraps it in an http.Server, without
// starting it.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	if opts.Config.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(1 << 20))
		r.Use(ResponseTimeout(opts.Config.ReadTimeout + 25*time.Second))
		NewDataHandler(opts.Data).Routes(r)
	})

	srv := &http.Server{
		Addr:        opts.Config.HTTPAddr,
		Handler:     r,
		ReadTimeout: opts.Config.ReadTimeout,
		IdleTimeout: opts.Config.IdleTimeout,
		// Zero WriteTimeout: Sample streaming connections are long-lived;
		// ResponseTimeout above bounds the non-streaming handlers instead.
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log}
}

// Start runs the HTTP server until Shutdown is called. A clean shutdown is
// reported as a nil error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
