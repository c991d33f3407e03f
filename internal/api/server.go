// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"credence/internal/assistant"
	"credence/internal/logging"
	"credence/internal/types"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps chat request bodies.
const maxBodyBytes = 1 << 20

// Chatter answers chat messages.
type Chatter interface {
	Handle(ctx context.Context, req assistant.Request) (*types.Response, error)
}

// FileLister lists group documents.
type FileLister interface {
	List(ctx context.Context, groupID string) ([]types.DocumentRef, error)
}

// Authorizer computes a caller's authorization in a group.
type Authorizer interface {
	Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	chat     Chatter
	files    FileLister
	auth     Authorizer
	identity types.IdentityProvider
	router   *mux.Router
}

// NewServer wires routes. A nil identity provider means HeaderIdentity.
func NewServer(cfg Config, chat Chatter, files FileLister, auth Authorizer, identity types.IdentityProvider) *Server {
	if identity == nil {
		identity = HeaderIdentity{}
	}
	s := &Server{cfg: cfg, chat: chat, files: files, auth: auth, identity: identity, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(recoverMiddleware, logMiddleware)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/groups/{groupID}/chat", s.handleChat).Methods(http.MethodPost)
	v1.HandleFunc("/groups/{groupID}/files", s.handleFiles).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.HTTP("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.HTTP("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type fileEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	MediaType  string    `json:"media_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	Inline     bool      `json:"inline"`
}

func (s *Server) caller(r *http.Request) (types.Caller, error) {
	return s.identity.Identify(r.Context(), claimsFromRequest(r))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	resp, err := s.chat.Handle(r.Context(), assistant.Request{
		Caller:  caller,
		GroupID: mux.Vars(r)["groupID"],
		Message: body.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	groupID := mux.Vars(r)["groupID"]
	if _, err := s.auth.Authorize(r.Context(), caller.UserID, groupID); err != nil {
		writeError(w, err)
		return
	}

	docs, err := s.files.List(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]fileEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, fileEntry{
			ID:         d.ID,
			Title:      d.Title,
			MediaType:  d.MediaType,
			SizeBytes:  d.SizeBytes,
			UploadedAt: d.UploadedAt,
			Inline:     d.IsInlineContent,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
