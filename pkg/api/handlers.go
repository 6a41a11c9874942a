package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tb0hdan/polyprompt-mcp/pkg/export"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runs"
	"github.com/tb0hdan/polyprompt-mcp/pkg/runstate"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, runs.ErrMissingOwner):
		return http.StatusUnauthorized
	case errors.Is(err, runstate.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", runs.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", runs.ErrInvalidInput, key)
	}
	return n, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": s.cfg.ServiceName,
		"version": s.cfg.Version,
		"endpoints": map[string]string{
			"mcp": "/mcp",
			"api": "/api/v1",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := s.registry.Available()
	if r.URL.Query().Get("include_unavailable") == "true" {
		list = s.registry.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(list),
		"models": list,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.runs.ListRuns(r.Context(), ownerFromContext(r.Context()), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var in runs.CreateInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.runs.CreateRun(r.Context(), ownerFromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var in runs.UpdateInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.runs.UpdateRun(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.DeleteRun(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunPrompt(w http.ResponseWriter, r *http.Request) {
	res, err := s.runs.RunPrompt(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListEvals(w http.ResponseWriter, r *http.Request) {
	evals, err := s.runs.ListEvals(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(evals),
		"evals": evals,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.runs.Export(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()), r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType(doc.ExportFormat))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(doc.Run.Title, doc.ExportFormat)))
	w.WriteHeader(http.StatusOK)

	if err := export.Write(w, *doc); err != nil {
		s.logger.Error().Err(err).Str("run_id", doc.Run.ID).Msg("Export write failed")
	}
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Share(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleUnshare(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Unshare(r.Context(), chi.URLParam(r, "id"), ownerFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetShared(w http.ResponseWriter, r *http.Request) {
	shared, err := s.runs.GetShared(r.Context(), chi.URLParam(r, "shareID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared)
}
