package remote

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/metadata"
)

// Protocol headers.
const (
	HeaderAPIKey    = "Api-Key"
	HeaderRequestID = "X-Request-Id"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeDimensionMismatch = "dimension_mismatch"
	CodeInvalidK          = "invalid_k"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeAlreadyExists     = "already_exists"
	CodeUnauthorized      = "unauthorized"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
)

// CreateIndexRequest is the body of POST /indexes.
type CreateIndexRequest struct {
	Name      string          `json:"name"`
	Dimension int             `json:"dimension"`
	Metric    distance.Metric `json:"metric"`
}

// IndexDescription describes an index (POST /indexes, GET /indexes/{name}).
type IndexDescription struct {
	Name      string          `json:"name"`
	Dimension int             `json:"dimension"`
	Metric    distance.Metric `json:"metric"`
	Count     int             `json:"count"`
}

// Vector is one record on the wire.
type Vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata metadata.Document `json:"metadata,omitempty"`
}

// UpsertRequest is the body of POST /indexes/{name}/vectors/upsert.
type UpsertRequest struct {
	Vectors []Vector `json:"vectors"`
}

// UpsertResponse reports how many vectors were applied and which failed.
type UpsertResponse struct {
	UpsertedCount int             `json:"upsertedCount"`
	Errors        []ItemErrorBody `json:"errors,omitempty"`
}

// QueryRequest is the body of POST /indexes/{name}/query.
type QueryRequest struct {
	Vector []float32           `json:"vector"`
	TopK   int                 `json:"topK"`
	Filter *metadata.FilterSet `json:"filter,omitempty"`
}

// Match is one query result on the wire. Score is the metric's native value.
type Match struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Distance float32           `json:"distance"`
	Metadata metadata.Document `json:"metadata,omitempty"`
}

// QueryResponse is the result of a query.
type QueryResponse struct {
	Matches []Match `json:"matches"`
}

// DeleteRequest is the body of POST /indexes/{name}/vectors/delete.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Expected int    `json:"expected,omitempty"`
	Actual   int    `json:"actual,omitempty"`
}

// ItemErrorBody is the failure of one vector of an upsert.
type ItemErrorBody struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	ErrorBody
}

// Err converts the body to a Go error that unwraps to the matching sentinel.
func (b ErrorBody) Err() error {
	return &APIError{Code: b.Code, Message: b.Message, Expected: b.Expected, Actual: b.Actual}
}

// APIError is an error reported by the remote service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Expected   int
	Actual     int
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %s: %s", e.Code, e.Message)
}

// Unwrap maps the code to the error taxonomy of the index and backend packages.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeDimensionMismatch:
		return &index.ErrDimensionMismatch{Expected: e.Expected, Actual: e.Actual}
	case CodeInvalidK:
		return index.ErrInvalidK
	case CodeNotFound:
		return backend.ErrNotFound
	case CodeAlreadyExists:
		return backend.ErrAlreadyExists
	case CodeUnauthorized:
		return backend.ErrAuth
	}
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backend.ErrAuth
	case http.StatusNotFound:
		return backend.ErrNotFound
	}
	return nil
}

// Retryable reports whether the status is transient.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Paths of the protocol.
func indexesPath() string { return "/indexes" }

func indexPath(name string) string { return "/indexes/" + url.PathEscape(name) }

func upsertPath(name string) string { return indexPath(name) + "/vectors/upsert" }

func queryPath(name string) string { return indexPath(name) + "/query" }

func deletePath(name string) string { return indexPath(name) + "/vectors/delete" }
