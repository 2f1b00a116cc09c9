// Package api serves the session state as JSON alongside Prometheus
// metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/rizz/internal/app"
	"github.com/lox/rizz/internal/forecast"
)

type Server struct {
	session *app.Session
	addr    string
	opts    forecast.Options
}

// NewServer serves session on addr. opts supplies the locale and zone
// used to format samples.
func NewServer(session *app.Session, addr string, opts forecast.Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Locale.Today == "" {
		opts.Locale = forecast.German
	}
	return &Server{session: session, addr: addr, opts: opts}
}

func (s *Server) Session() *app.Session {
	return s.session
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/locations", s.handleAPILocations)
	mux.HandleFunc("/api/themes", s.handleAPIThemes)
	mux.HandleFunc("/api/forecast", s.handleAPIForecast)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
