// Package server exposes the snapshot manager over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/feature"
	"github.com/needledetector/unit-search/internal/match"
	"github.com/needledetector/unit-search/internal/search"
	"github.com/needledetector/unit-search/internal/snapshot"
)

// Server wires HTTP routes to the snapshot manager.
type Server struct {
	manager *snapshot.Manager
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a server over the given manager.
func New(manager *snapshot.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/members/search", s.handleMemberSearch)
	s.mux.HandleFunc("GET /api/members/{id}", s.handleMember)
	s.mux.HandleFunc("GET /api/units/{id}", s.handleUnit)
	s.mux.HandleFunc("GET /api/similarity", s.handleSimilarity)
	s.mux.HandleFunc("POST /api/match", s.handleMatch)
	s.mux.HandleFunc("POST /api/reload", s.handleReload)
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Info("request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("took", time.Since(started)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.manager.Ready() {
		status = "loading"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleMemberSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := search.Params{
		Keyword:     q.Get("q"),
		Branches:    q["branch"],
		Statuses:    q["status"],
		Generations: q["generation"],
	}
	var err error
	if p.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		s.writeError(w, badRequest("limit must be an integer"))
		return
	}
	if p.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		s.writeError(w, badRequest("offset must be an integer"))
		return
	}

	results, err := s.manager.SearchMembers(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, memberSearchResponse{
		Results: emptyIfNil(results),
		Count:   len(results),
	})
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager.Member(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUnit(w http.ResponseWriter, r *http.Request) {
	u, err := s.manager.Unit(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unitResponse{Unit: u})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	memberID := q.Get("member_id")
	if memberID == "" {
		s.writeError(w, badRequest("member_id is required"))
		return
	}
	top, err := intParam(q.Get("top"), 0)
	if err != nil {
		s.writeError(w, badRequest("top must be an integer"))
		return
	}
	scores, err := s.manager.SimilarMembers(memberID, top)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, similarityResponse{
		MemberID: memberID,
		Results:  emptyIfNil(scores),
	})
}

type matchRequest struct {
	Members     []string `json:"members"`
	Branches    []string `json:"branches"`
	Statuses    []string `json:"statuses"`
	Generations []string `json:"generations"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest("invalid JSON body"))
		return
	}
	if len(req.Members) == 0 {
		s.writeError(w, badRequest("members must not be empty"))
		return
	}
	results, err := s.manager.MatchUnits(match.NewQuery(req.Members, req.Branches, req.Statuses, req.Generations))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]matchResult, 0, len(results))
	for _, res := range results {
		out = append(out, matchResult{
			UnitID:       res.Unit.ID,
			Name:         res.Unit.Name,
			Note:         res.Unit.Note,
			Members:      res.Unit.MemberNames,
			Aliases:      res.Unit.Aliases,
			AliasNotes:   res.Unit.AliasNotes,
			Branches:     bundle.SortedSet(res.Unit.Branches),
			Statuses:     bundle.SortedSet(res.Unit.Statuses),
			Generations:  bundle.SortedSet(res.Unit.Generations),
			Score:        res.Score,
			Intersection: res.Intersection,
		})
	}
	s.writeJSON(w, http.StatusOK, matchResponse{Results: out, Count: len(out)})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Reload(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reloadResponse{
		Version: snap.Version,
		Members: len(snap.Bundle.Members),
		Units:   len(snap.Bundle.Units),
	})
}

type memberSearchResponse struct {
	Results []search.MemberResult `json:"results"`
	Count   int                   `json:"count"`
}

type unitResponse struct {
	Unit *bundle.Unit `json:"unit"`
}

type similarityResponse struct {
	MemberID string          `json:"member_id"`
	Results  []feature.Score `json:"results"`
}

type matchResult struct {
	UnitID       string   `json:"unit_id"`
	Name         string   `json:"name"`
	Note         string   `json:"note,omitempty"`
	Members      []string `json:"members"`
	Aliases      []string `json:"aliases,omitempty"`
	AliasNotes   []string `json:"alias_notes,omitempty"`
	Branches     []string `json:"branches"`
	Statuses     []string `json:"statuses"`
	Generations  []string `json:"generations"`
	Score        float64  `json:"score"`
	Intersection int      `json:"intersection"`
}

type matchResponse struct {
	Results []matchResult `json:"results"`
	Count   int           `json:"count"`
}

type reloadResponse struct {
	Version uint64 `json:"version"`
	Members int    `json:"members"`
	Units   int    `json:"units"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, msg)
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case apperr.IsInvalidArgument(err):
		code = http.StatusBadRequest
	case apperr.IsNotLoaded(err):
		code = http.StatusServiceUnavailable
	case apperr.IsNotFound(err):
		code = http.StatusNotFound
	case apperr.IsValidation(err):
		code = http.StatusUnprocessableEntity
	case apperr.IsFetch(err):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", slog.String("error", err.Error()))
	}
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
