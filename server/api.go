package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIServer exposes conversations over HTTP and WebSocket.
type APIServer struct {
	Conversations Conversations
	Logger        *log.Logger
	// AllowedOrigins lists extra browser origins, e.g. "http://localhost:5173",
	// that may open a WebSocket. Same-host origins are always allowed and "*"
	// allows any origin.
	AllowedOrigins []string
	// PongWait bounds how long a quiet WebSocket stays open. Zero uses 70s.
	PongWait time.Duration
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context cancellation.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logf("API listening on %s", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler builds the router.
func (s *APIServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Route("/api/conversations", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/messages", s.handleMessage)
			r.Post("/reset", s.handleReset)
			r.Get("/ws", s.handleWebSocket)
		})
	})
	return r
}

func (s *APIServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Conversations.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewConversationView(conv))
}

func (s *APIServer) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.Conversations.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *APIServer) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewConversationView(conv))
}

func (s *APIServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	result, err := s.Conversations.Send(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleReset(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Conversations.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewConversationView(conv))
}

func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logf("request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *APIServer) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
