package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	AllowedHosts   []string
	TrustedOrigins []string
	ExposeMetrics  bool
	// Пути без проверки Origin (webhook Telegram).
	OriginExempt []string
}

type Server struct {
	srv *http.Server
	log *slog.Logger
}

// New собирает роутер: /health, /metrics, затем маршруты роли через mount.
func New(addr string, opts Options, log *slog.Logger, mount func(r chi.Router)) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(HostGuard(opts.AllowedHosts))
	r.Use(OriginGuard(opts.TrustedOrigins, opts.OriginExempt...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if opts.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	if mount != nil {
		mount(r)
	}

	return &Server{
		srv: &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second},
		log: log,
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start блокируется до Shutdown. Штатная остановка не считается ошибкой.
func (s *Server) Start() error {
	s.log.Info("http listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Run запускает сервер и гасит его при отмене ctx.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shCtx); err != nil {
			s.log.Warn("http shutdown", "err", err)
		}
		return <-errCh
	}
}
