// Package api serves the session manager over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/PipeOpsHQ/rivalscope/observe"
	"github.com/PipeOpsHQ/rivalscope/session"
)

const (
	defaultAddr     = "127.0.0.1:8080"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr     string
	Sessions *session.Manager
	// Events feeds GET /sessions/{id}/events. Nil disables the endpoint.
	Events         *observe.Hub
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

type Server struct {
	cfg     Config
	handler http.Handler
	http    *http.Server
	once    sync.Once
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg}

	var otelOpts []otelhttp.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	s.handler = otelhttp.NewHandler(s.routes(), "rivalscope.http", otelOpts...)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/message", s.sendMessage)
			r.Get("/state", s.getState)
			r.Get("/events", s.streamEvents)
		})
	})
	return r
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("http server listening", "addr", s.cfg.Addr)
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.cfg.Logger.Info("shutdown signal received")
		if err := s.Close(); err != nil {
			s.cfg.Logger.Warn("http shutdown error", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		outErr = s.http.Shutdown(ctx)
	})
	return outErr
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.cfg.Sessions.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req session.MessageRequest
	if !decode(w, r, &req) {
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	resp, err := s.cfg.Sessions.SendMessage(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cfg.Sessions.GetState(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := session.ListQuery{UserID: q.Get("user_id"), Status: q.Get("status")}
	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be a non-negative integer", Code: session.CodeInvalidInput})
			return
		}
		*dst = n
	}
	items, err := s.cfg.Sessions.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items, "count": len(items)})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: session.CodeInvalidInput})
		return false
	}
	return true
}

type errorBody struct {
	Error string            `json:"error"`
	Code  session.ErrorCode `json:"code"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code session.ErrorCode) int {
	switch code {
	case session.CodeInvalidInput:
		return http.StatusBadRequest
	case session.CodeUnknownSession:
		return http.StatusNotFound
	case session.CodeNoCheckpoint, session.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := session.Code(err)
	msg := err.Error()
	if code == session.CodeInternal {
		msg = "internal error"
	}
	writeJSON(w, StatusFor(code), errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(started).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
