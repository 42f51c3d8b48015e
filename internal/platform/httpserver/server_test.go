package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pollingledger "agora/contexts/governance/polling-ledger"
	"agora/contexts/governance/polling-ledger/domain/entities"
	ledgerhttp "agora/contexts/governance/polling-ledger/transport/http"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer() (*Server, pollingledger.Module) {
	policy := entities.DefaultPolicy()
	policy.Operators = []string{"admin"}
	module := pollingledger.NewInMemoryModule(entities.NewState(policy, testNow), policy, nil)
	module.Store.SetNow(testNow)
	return New(module, nil, ":0"), module
}

func doRequest(t *testing.T, server *Server, method string, path string, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-User-Id", caller)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func createPoll(t *testing.T, server *Server, req ledgerhttp.CreatePollRequest) uint64 {
	t.Helper()
	rr := doRequest(t, server, http.MethodPost, "/api/v1/polls", "alice", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp ledgerhttp.CreatePollResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.PollID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ledgerhttp.ErrorResponse {
	t.Helper()
	var resp ledgerhttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func TestCreateVoteAndReadResults(t *testing.T) {
	server, _ := newTestServer()
	pollID := createPoll(t, server, ledgerhttp.CreatePollRequest{
		Question: "Adopt the roadmap?",
		Options:  []string{"yes", "no"},
		Tags:     []string{"Roadmap"},
	})
	if pollID != 0 {
		t.Fatalf("expected first poll id 0, got %d", pollID)
	}

	rr := doRequest(t, server, http.MethodPost, "/api/v1/polls/0/votes", "bob", ledgerhttp.VoteRequest{Option: 0})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/v1/polls/0/results", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var results ledgerhttp.PollResultsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results.Votes) != 2 || results.Votes[0] != 1 || results.Votes[1] != 0 {
		t.Fatalf("unexpected votes: %v", results.Votes)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/v1/tags/roadmap/polls", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"poll_ids":[0]`) {
		t.Fatalf("unexpected tag listing: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMutationsRequireCallerHeader(t *testing.T) {
	server, _ := newTestServer()
	rr := doRequest(t, server, http.MethodPost, "/api/v1/polls", "", ledgerhttp.CreatePollRequest{Question: "q", Options: []string{"a", "b"}})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestDomainErrorsMapToStatusCodes(t *testing.T) {
	server, module := newTestServer()
	createPoll(t, server, ledgerhttp.CreatePollRequest{
		Question:         "Ship it?",
		Options:          []string{"yes", "no"},
		MinParticipation: 5,
	})
	createPoll(t, server, ledgerhttp.CreatePollRequest{
		Question:   "Treasury allocation",
		Options:    []string{"a", "b"},
		PollType:   "weighted",
		AssetID:    "AGORA",
		MinBalance: entities.Tokens(1).String(),
	})
	module.Store.SetBalance("bob", "AGORA", entities.Tokens(1))

	if rr := doRequest(t, server, http.MethodPost, "/api/v1/polls/0/votes", "bob", ledgerhttp.VoteRequest{Option: 1}); rr.Code != http.StatusOK {
		t.Fatalf("first vote: %d %s", rr.Code, rr.Body.String())
	}

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		status int
		code   string
	}{
		{"already voted", http.MethodPost, "/api/v1/polls/0/votes", "bob", ledgerhttp.VoteRequest{Option: 0}, http.StatusConflict, "already_voted"},
		{"unknown poll", http.MethodGet, "/api/v1/polls/42", "", nil, http.StatusNotFound, "poll_not_found"},
		{"option out of range", http.MethodPost, "/api/v1/polls/0/votes", "carol", ledgerhttp.VoteRequest{Option: 7}, http.StatusBadRequest, "invalid_option"},
		{"not operator", http.MethodPost, "/api/v1/polls/0/emergency-close", "bob", nil, http.StatusForbidden, "not_operator"},
		{"participation gate", http.MethodPost, "/api/v1/polls/0/close", "alice", nil, http.StatusPreconditionFailed, "min_participation_not_met"},
		{"insufficient balance", http.MethodPost, "/api/v1/polls/1/votes", "dave", ledgerhttp.VoteRequest{Option: 0}, http.StatusUnprocessableEntity, "insufficient_token_balance"},
		{"bad export format", http.MethodGet, "/api/v1/polls/0/export?format=xml", "", nil, http.StatusBadRequest, "invalid_option"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server, tc.method, tc.path, tc.caller, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
			if got := decodeError(t, rr).Code; got != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, got)
			}
		})
	}
}

func TestOperatorPausesPlatform(t *testing.T) {
	server, _ := newTestServer()
	rr := doRequest(t, server, http.MethodPut, "/api/v1/admin/pause", "admin", ledgerhttp.PauseRequest{Paused: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, server, http.MethodPost, "/api/v1/polls", "alice", ledgerhttp.CreatePollRequest{Question: "q", Options: []string{"a", "b"}})
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 while paused, got %d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	server, _ := newTestServer()
	createPoll(t, server, ledgerhttp.CreatePollRequest{Question: "Colour?", Options: []string{"red", "blue"}})

	rr := doRequest(t, server, http.MethodGet, "/api/v1/polls/0/export?format=csv", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "red") {
		t.Fatalf("export missing option label: %s", rr.Body.String())
	}
}

func TestInvalidPathAndBody(t *testing.T) {
	server, _ := newTestServer()
	if rr := doRequest(t, server, http.MethodGet, "/api/v1/polls/abc", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad poll id, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/polls", strings.NewReader("{"))
	req.Header.Set("X-User-Id", "alice")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}
}

func TestSwaggerDocServed(t *testing.T) {
	server, _ := newTestServer()
	rr := doRequest(t, server, http.MethodGet, "/swagger/doc.json", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/polls/{poll_id}/votes") {
		t.Fatalf("swagger doc missing vote route")
	}
}
