package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/rolo/internal/composer"
	"github.com/kalambet/rolo/internal/intent"
	"github.com/kalambet/rolo/internal/pipeline"
	"github.com/kalambet/rolo/internal/retrieval"
	"github.com/kalambet/rolo/internal/storage"
)

const testToken = "test-token-12345"

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	return g.text, g.err
}

type brokenStore struct{}

func (brokenStore) SearchContacts(context.Context, storage.ContactQuery) ([]storage.Contact, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Stats(context.Context) (storage.Stats, error) {
	return storage.Stats{}, errors.New("connection refused")
}

var testContacts = []storage.Contact{
	{Name: "Ivan Petrov", Company: "TechCorp", Position: "HR Manager", Telegram: "ivan_hr", Tags: []string{"hiring"}},
	{Name: "Anna Smirnova", Company: "Acme", Position: "CTO", Tags: []string{"investor", "tech"}},
	{Name: "John Doe", Company: "Acme", Position: "Sales Lead"},
}

func newTestRepository(t *testing.T) *retrieval.Repository {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range testContacts {
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.SaveContact(context.Background(), c); err != nil {
			t.Fatalf("SaveContact: %v", err)
		}
	}
	return retrieval.NewRepository(s, 0)
}

func setupHandler(t *testing.T, token string, gen stubGenerator) http.Handler {
	t.Helper()
	repo := newTestRepository(t)
	return NewHandler(Deps{
		Pipeline: pipeline.New(repo, gen, pipeline.Options{}),
		Contacts: repo,
		Token:    token,
	})
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func TestHealth(t *testing.T) {
	h := setupHandler(t, testToken, stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}
}

func TestRequestID_KeepsCallerID(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("X-Request-Id = %q, want abc-123", got)
	}
}

func TestAsk_Answered(t *testing.T) {
	h := setupHandler(t, testToken, stubGenerator{text: "Ivan Petrov is HR Manager at TechCorp."})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", `{"query":"Who works at TechCorp?"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp AskResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Outcome != pipeline.OutcomeAnswered {
		t.Errorf("outcome = %q, want answered", resp.Outcome)
	}
	if resp.Intent != intent.KindCompany {
		t.Errorf("intent = %q, want %q", resp.Intent, intent.KindCompany)
	}
	if len(resp.Terms) != 1 || resp.Terms[0] != "TechCorp" {
		t.Errorf("terms = %v, want [TechCorp]", resp.Terms)
	}
	if resp.Matched != 1 {
		t.Errorf("matched = %d, want 1", resp.Matched)
	}
	want := composer.FormatResponse("Ivan Petrov is HR Manager at TechCorp.")
	if resp.Answer != want {
		t.Errorf("answer = %q, want %q", resp.Answer, want)
	}
}

func TestAsk_PossessiveName(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{text: "Ivan is on Telegram as @ivan_hr."})

	for _, q := range []string{"What is Ivan's phone?", "What's Ivan's email", "Ivan’s telegram"} {
		body, _ := json.Marshal(AskRequest{Query: q})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", string(body), ""))

		if rr.Code != http.StatusOK {
			t.Fatalf("%q: status = %d; body = %s", q, rr.Code, rr.Body.String())
		}
		var resp AskResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("%q: decoding: %v", q, err)
		}
		if resp.Outcome != pipeline.OutcomeAnswered || resp.Matched != 1 {
			t.Errorf("%q: outcome = %q, matched = %d, want answered with 1 match", q, resp.Outcome, resp.Matched)
		}
		if len(resp.Terms) != 1 || resp.Terms[0] != "Ivan" {
			t.Errorf("%q: terms = %v, want [Ivan]", q, resp.Terms)
		}
	}
}

func TestAsk_NotFound(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{text: "unused"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", `{"query":"contacts at Globex"}`, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp AskResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Outcome != pipeline.OutcomeNotFound || resp.Answer != pipeline.NotFoundMessage {
		t.Errorf("got outcome=%q answer=%q, want not_found", resp.Outcome, resp.Answer)
	}
	if resp.Matched != 0 {
		t.Errorf("matched = %d, want 0", resp.Matched)
	}
}

func TestAsk_GeneratorFailure(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{err: errors.New("quota exceeded")})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", `{"query":"Ivan"}`, ""))

	var resp AskResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Outcome != pipeline.OutcomeGenerationFailed || resp.Answer != pipeline.ErrorMessage {
		t.Errorf("got outcome=%q answer=%q, want generation_failed", resp.Outcome, resp.Answer)
	}
}

func TestAsk_BadRequests(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing query", `{}`, http.StatusBadRequest},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest},
		{"query too long", `{"query":"` + strings.Repeat("a", maxQueryLength+1) + `"}`, http.StatusBadRequest},
		{"body too large", `{"query":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", tt.body, ""))
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if got := errorType(t, rr); got != "invalid_request_error" {
				t.Errorf("error type = %q", got)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	h := setupHandler(t, testToken, stubGenerator{})

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/stats", "", tt.token))
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if tt.code == http.StatusUnauthorized {
				if got := errorType(t, rr); got != "authentication_error" {
					t.Errorf("error type = %q, want authentication_error", got)
				}
				if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="rolo"` {
					t.Errorf("WWW-Authenticate = %q", got)
				}
			}
		})
	}
}

func TestHealth_OpenWithToken(t *testing.T) {
	h := setupHandler(t, testToken, stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/health", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without a token", rr.Code)
	}
}

func TestAskBatch(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{text: "ok"})

	body := `{"queries":["Ivan","contacts at Globex","#investor"]}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask/batch", body, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp BatchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(resp.Results))
	}
	wantOutcomes := []pipeline.Outcome{pipeline.OutcomeAnswered, pipeline.OutcomeNotFound, pipeline.OutcomeAnswered}
	wantKinds := []intent.Kind{intent.KindName, intent.KindCompany, intent.KindTag}
	for i, r := range resp.Results {
		if r.Outcome != wantOutcomes[i] {
			t.Errorf("results[%d].outcome = %q, want %q", i, r.Outcome, wantOutcomes[i])
		}
		if r.Intent != wantKinds[i] {
			t.Errorf("results[%d].intent = %q, want %q", i, r.Intent, wantKinds[i])
		}
	}
}

func TestAskBatch_Rejects(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	many := make([]string, maxBatchQueries+1)
	for i := range many {
		many[i] = "Ivan"
	}
	tooMany, _ := json.Marshal(BatchRequest{Queries: many})

	for name, body := range map[string]string{
		"empty":    `{"queries":[]}`,
		"blank":    `{"queries":["Ivan",""]}`,
		"too many": string(tooMany),
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask/batch", body, ""))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestContacts(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	tests := []struct {
		name      string
		url       string
		wantKind  intent.Kind
		wantTotal int
		wantNames []string
	}{
		{"recent", "/v1/contacts", intent.KindGeneral, 3, []string{"John Doe", "Anna Smirnova", "Ivan Petrov"}},
		{"recent limited", "/v1/contacts?limit=2", intent.KindGeneral, 3, []string{"John Doe", "Anna Smirnova"}},
		{"company", "/v1/contacts?q=contacts+at+Acme", intent.KindCompany, 2, []string{"John Doe", "Anna Smirnova"}},
		{"tag", "/v1/contacts?q=%23investor", intent.KindTag, 1, []string{"Anna Smirnova"}},
		{"no match", "/v1/contacts?q=Zed", intent.KindName, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodGet, tt.url, "", ""))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
			}
			var resp ContactsResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if resp.Intent != tt.wantKind {
				t.Errorf("intent = %q, want %q", resp.Intent, tt.wantKind)
			}
			if resp.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Total, tt.wantTotal)
			}
			if len(resp.Contacts) != len(tt.wantNames) {
				t.Fatalf("got %d contacts, want %d", len(resp.Contacts), len(tt.wantNames))
			}
			for i, c := range resp.Contacts {
				if c.Name != tt.wantNames[i] {
					t.Errorf("contacts[%d] = %q, want %q", i, c.Name, tt.wantNames[i])
				}
			}
		})
	}
}

func TestContacts_InvalidLimit(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	for _, raw := range []string{"abc", "-1"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/contacts?limit="+raw, "", ""))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", raw, rr.Code)
		}
	}
}

func TestStats(t *testing.T) {
	h := setupHandler(t, "", stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/v1/stats", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp StatsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Contacts != 3 || resp.Interactions != 0 || resp.UniqueTags != 3 {
		t.Errorf("stats = %+v, want 3 contacts, 0 interactions, 3 tags", resp.Stats)
	}
	if resp.AvgInteractions != 0 {
		t.Errorf("avg = %v, want 0", resp.AvgInteractions)
	}
}

func TestStoreUnavailable(t *testing.T) {
	repo := retrieval.NewRepository(brokenStore{}, 0)
	h := NewHandler(Deps{
		Pipeline: pipeline.New(repo, stubGenerator{text: "unused"}, pipeline.Options{}),
		Contacts: repo,
	})

	for _, url := range []string{"/v1/contacts?q=Ivan", "/v1/stats"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, url, "", ""))
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", url, rr.Code)
		}
	}

	// Asking still answers, with the not-found reply.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/v1/ask", `{"query":"Ivan"}`, ""))
	var resp AskResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if rr.Code != http.StatusOK || resp.Answer != pipeline.NotFoundMessage {
		t.Errorf("status = %d answer = %q, want 200 with not-found reply", rr.Code, resp.Answer)
	}
}
