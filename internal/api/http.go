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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/rolo/internal/intent"
	"github.com/kalambet/rolo/internal/pipeline"
	"github.com/kalambet/rolo/internal/retrieval"
	"github.com/kalambet/rolo/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxBatchQueries    = 32
	maxQueryLength     = 4096
)

// Asker answers free-text questions. *pipeline.Pipeline implements it.
type Asker interface {
	Run(ctx context.Context, query string) pipeline.Result
	AnswerBatch(ctx context.Context, queries []string) ([]pipeline.Result, error)
}

// Finder searches the contact store without generation.
// *retrieval.Repository implements it.
type Finder interface {
	Search(ctx context.Context, in intent.Intent) retrieval.SearchResult
	Stats(ctx context.Context) (storage.Stats, error)
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Pipeline Asker
	Contacts Finder
	// Token enables bearer auth on /v1 routes when non-empty.
	Token string
}

// NewHandler returns the HTTP API. /health is always open.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/ask", handleAsk(deps.Pipeline))
		r.Post("/ask/batch", handleAskBatch(deps.Pipeline))
		r.Get("/contacts", handleContacts(deps.Contacts))
		r.Get("/stats", handleStats(deps.Contacts))
	})

	return r
}

// requestID tags each request with an X-Request-Id, keeping the caller's if
// it sent one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is one answered query.
type AskResponse struct {
	Query   string           `json:"query"`
	Answer  string           `json:"answer"`
	Outcome pipeline.Outcome `json:"outcome"`
	Intent  intent.Kind      `json:"intent"`
	Terms   []string         `json:"terms"`
	Matched int              `json:"matched"`
}

// BatchRequest is the body of POST /v1/ask/batch.
type BatchRequest struct {
	Queries []string `json:"queries"`
}

// BatchResponse holds answers in request order.
type BatchResponse struct {
	Results []AskResponse `json:"results"`
}

func toAskResponse(res pipeline.Result) AskResponse {
	terms := res.Intent.Terms
	if terms == nil {
		terms = []string{}
	}
	return AskResponse{
		Query:   res.Query,
		Answer:  res.Answer,
		Outcome: res.Outcome,
		Intent:  res.Intent.Kind,
		Terms:   terms,
		Matched: res.Retrieved,
	}
}

func handleAsk(p Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := checkQuery(req.Query); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, toAskResponse(p.Run(r.Context(), req.Query)))
	}
}

func handleAskBatch(p Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Queries) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "queries must not be empty")
			return
		}
		if len(req.Queries) > maxBatchQueries {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at most %d queries per batch", maxBatchQueries)
			return
		}
		for i, q := range req.Queries {
			if err := checkQuery(q); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "queries[%d]: %v", i, err)
				return
			}
		}

		results, err := p.AnswerBatch(r.Context(), req.Queries)
		if err != nil {
			// The only failure is a cancelled request context.
			httpError(w, http.StatusServiceUnavailable, "api_error", "batch aborted: %v", err)
			return
		}

		resp := BatchResponse{Results: make([]AskResponse, len(results))}
		for i, res := range results {
			resp.Results[i] = toAskResponse(res)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ContactsResponse is the body of GET /v1/contacts.
type ContactsResponse struct {
	Intent   intent.Kind       `json:"intent"`
	Terms    []string          `json:"terms"`
	Total    int               `json:"total"`
	Contacts []storage.Contact `json:"contacts"`
}

func handleContacts(f Finder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		in := intent.Intent{Kind: intent.KindGeneral}
		if q != "" {
			in = intent.Classify(q)
		}

		found := f.Search(r.Context(), in)
		if found.Status == retrieval.StatusUnavailable {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "contact store is unavailable")
			return
		}

		contacts := found.Contacts
		if contacts == nil {
			contacts = []storage.Contact{}
		}
		resp := ContactsResponse{Intent: in.Kind, Terms: in.Terms, Total: len(contacts), Contacts: contacts}
		if resp.Terms == nil {
			resp.Terms = []string{}
		}
		if limit > 0 && len(contacts) > limit {
			resp.Contacts = contacts[:limit]
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	storage.Stats
	AvgInteractions float64 `json:"avg_interactions"`
}

func handleStats(f Finder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := f.Stats(r.Context())
		if err != nil {
			slog.Warn("reading stats failed", "error", err)
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "contact store is unavailable")
			return
		}
		writeJSON(w, http.StatusOK, StatsResponse{Stats: st, AvgInteractions: st.AvgInteractions()})
	}
}

func checkQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return errors.New("query must not be empty")
	}
	if len(q) > maxQueryLength {
		return fmt.Errorf("query exceeds %d bytes", maxQueryLength)
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
