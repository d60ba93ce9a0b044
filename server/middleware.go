package server

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/hupe1980/vecsearch/backend/remote"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the request id stored by the server, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID reuses the caller's X-Request-Id so that retries of one call
// share an id, and assigns a fresh one otherwise.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(remote.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(remote.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Log(r.Context(), levelFor(ww.Status()), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()),
		)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" {
			got := r.Header.Get(remote.HeaderAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) != 1 {
				s.respondError(w, r, http.StatusUnauthorized, remote.ErrorBody{Code: remote.CodeUnauthorized, Message: "invalid api key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// admit reserves a request slot and the body bytes, and bounds the body.
// Requests that cannot be admitted within AdmissionTimeout get 503.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.opts.AdmissionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.AdmissionTimeout)
			defer cancel()
		}

		if err := s.ctrl.AcquireRequest(ctx); err != nil {
			s.busy(w, r, err)
			return
		}
		defer s.ctrl.ReleaseRequest()

		reserve := s.opts.MaxBodyBytes
		if r.ContentLength >= 0 && r.ContentLength < reserve {
			reserve = r.ContentLength
		}
		if err := s.ctrl.AcquireMemory(ctx, reserve); err != nil {
			s.busy(w, r, err)
			return
		}
		defer s.ctrl.ReleaseMemory(reserve)

		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) busy(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.WarnContext(r.Context(), "request rejected", "error", err, "in_flight", s.ctrl.InFlight())
	w.Header().Set("Retry-After", "1")
	s.respondError(w, r, http.StatusServiceUnavailable, remote.ErrorBody{Code: remote.CodeUnavailable, Message: "server busy"})
}

// decompress inflates gzip request bodies, bounded like plain bodies.
func (s *Server) decompress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			s.respondError(w, r, http.StatusBadRequest, remote.ErrorBody{Code: remote.CodeInvalidRequest, Message: "invalid gzip body"})
			return
		}
		defer zr.Close()

		r.Header.Del("Content-Encoding")
		r.ContentLength = -1
		r.Body = http.MaxBytesReader(w, gzipBody{Reader: zr, body: r.Body}, s.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g gzipBody) Close() error {
	_ = g.Reader.Close()
	return g.body.Close()
}
