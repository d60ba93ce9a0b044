package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/backend/remote"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"indexes":   len(s.Indexes()),
		"inFlight":  s.ctrl.InFlight(),
		"bodyBytes": s.ctrl.MemoryUsage(),
	})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req remote.CreateIndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	desc, err := s.CreateIndex(req.Name, req.Dimension, req.Metric)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, desc)
}

func (s *Server) handleDescribeIndex(w http.ResponseWriter, r *http.Request) {
	name, idx, ok := s.index(w, r)
	if !ok {
		return
	}
	desc, err := describe(r.Context(), name, idx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, desc)
}

func describe(ctx context.Context, name string, idx *hostedIndex) (remote.IndexDescription, error) {
	count, err := idx.svc.Size(ctx)
	if err != nil {
		return remote.IndexDescription{}, err
	}
	return remote.IndexDescription{Name: name, Dimension: idx.svc.Dimension(), Metric: idx.metric, Count: count}, nil
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	_, idx, ok := s.index(w, r)
	if !ok {
		return
	}
	var req remote.UpsertRequest
	if !s.decode(w, r, &req) {
		return
	}

	records := make([]model.Record, len(req.Vectors))
	for i, v := range req.Vectors {
		records[i] = model.Record{ID: v.ID, Vector: v.Values, Metadata: v.Metadata}
	}

	res, err := idx.svc.UpsertBatch(r.Context(), records)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := remote.UpsertResponse{UpsertedCount: res.Upserted}
	for _, ie := range res.Errors {
		_, body := errorBody(ie.Err)
		if body.Code == remote.CodeInternal {
			body.Code = remote.CodeInvalidRequest
		}
		resp.Errors = append(resp.Errors, remote.ItemErrorBody{Index: ie.Index, ID: ie.ID, ErrorBody: body})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	_, idx, ok := s.index(w, r)
	if !ok {
		return
	}
	var req remote.QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	k := req.TopK
	if k > 0 {
		size, err := idx.svc.Size(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		k = min(k, max(size, 1))
	}

	matches, err := idx.svc.Query(r.Context(), req.Vector, k, req.Filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := remote.QueryResponse{Matches: make([]remote.Match, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = remote.Match{ID: m.ID, Score: m.Score, Distance: m.Distance, Metadata: m.Metadata}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, idx, ok := s.index(w, r)
	if !ok {
		return
	}
	var req remote.DeleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := idx.svc.Delete(r.Context(), req.IDs...); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"deletedCount": len(req.IDs)})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) (string, *hostedIndex, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeInvalidRequest, Message: "invalid index name"})
		return "", nil, false
	}
	idx, ok := s.lookup(name)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, remote.ErrorBody{Code: remote.CodeNotFound, Message: "index " + name + " not found"})
		return "", nil, false
	}
	return name, idx, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.respondError(w, r, status, remote.ErrorBody{Code: remote.CodeInvalidRequest, Message: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// errorBody maps a service error to its status and wire body.
func errorBody(err error) (int, remote.ErrorBody) {
	var dm *vecsearch.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeDimensionMismatch, Message: err.Error(), Expected: dm.Expected, Actual: dm.Actual}
	}
	var idm *index.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeDimensionMismatch, Message: err.Error(), Expected: idm.Expected, Actual: idm.Actual}
	}

	var (
		invalidDim    *vecsearch.ErrInvalidDimension
		indexDim      *index.ErrInvalidDimension
		unsupported   *index.ErrUnsupportedMetric
		invalidRecord *index.ErrInvalidMetadata
	)
	switch {
	case errors.Is(err, vecsearch.ErrInvalidK):
		return http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeInvalidK, Message: err.Error()}
	case errors.Is(err, vecsearch.ErrInvalidQuery),
		errors.Is(err, index.ErrEmptyID),
		errors.As(err, &invalidDim),
		errors.As(err, &indexDim),
		errors.As(err, &unsupported),
		errors.As(err, &invalidRecord):
		return http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, vecsearch.ErrNotFound):
		return http.StatusNotFound, remote.ErrorBody{Code: remote.CodeNotFound, Message: err.Error()}
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict, remote.ErrorBody{Code: remote.CodeAlreadyExists, Message: err.Error()}
	case errors.Is(err, vecsearch.ErrAuthFailure):
		return http.StatusUnauthorized, remote.ErrorBody{Code: remote.CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, vecsearch.ErrClosed), errors.Is(err, vecsearch.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, remote.ErrorBody{Code: remote.CodeUnavailable, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, remote.ErrorBody{Code: remote.CodeUnavailable, Message: err.Error()}
	}
	return http.StatusInternalServerError, remote.ErrorBody{Code: remote.CodeInternal, Message: err.Error()}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "error", err, "request_id", RequestID(r.Context()))
	}
	s.respondError(w, r, status, body)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, _ *http.Request, status int, body remote.ErrorBody) {
	s.respondJSON(w, status, body)
}
