package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

const (
	defaultMaxUpload = 64 << 20
	// Larger uploads are spooled to temporary files.
	defaultMaxMemory = 32 << 20
)

// Server exposes sessions over HTTP.
type Server struct {
	sessions  *session.Manager
	metrics   *Metrics
	router    *mux.Router
	maxUpload int64
	maxMemory int64
}

// New builds the router.
func New(sessions *session.Manager, metrics *Metrics) *Server {
	s := &Server{sessions: sessions, metrics: metrics, router: mux.NewRouter(), maxUpload: defaultMaxUpload, maxMemory: defaultMaxMemory}
	s.router.Use(s.logRequests, metrics.middleware)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/sessions").Subrouter()
	api.HandleFunc("", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/{id}", s.deleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/documents", s.uploadDocuments).Methods(http.MethodPost)
	api.HandleFunc("/{id}/ask", s.ask).Methods(http.MethodPost)
	api.HandleFunc("/{id}/history", s.history).Methods(http.MethodGet)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	s.metrics.sessions.Inc()
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, err)
			return
		}
		log.Warn().Err(err).Msg("Failed to release session index")
	}
	s.metrics.sessions.Dec()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	uploads, err := s.readUploads(r)
	if err != nil {
		writeError(w, err)
		return
	}
	started := time.Now()
	res, err := sess.Process(r.Context(), uploads)
	s.metrics.observe("process", started, err)
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID()).Msg("Process failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	started := time.Now()
	ans, err := sess.Ask(r.Context(), req.Question)
	if errors.Is(err, domain.ErrEmptyQuestion) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.metrics.observe("ask", started, err)
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID()).Msg("Ask failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": sess.History()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

// readUploads reads the multipart "files" field in upload order.
func (s *Server) readUploads(r *http.Request) ([]domain.Upload, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, domain.ErrNoDocuments
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}()
	var uploads []domain.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", errBadRequest, fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", errBadRequest, fh.Filename, err)
		}
		uploads = append(uploads, domain.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(started)).
			Msg("HTTP request")
	})
}
