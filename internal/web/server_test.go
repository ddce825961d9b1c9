package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
	"github.com/colmryan/notedeck/internal/session"
	"github.com/colmryan/notedeck/internal/storage"
	"github.com/colmryan/notedeck/internal/store"
	"github.com/colmryan/notedeck/internal/syncer"
)

type nopPersister struct{}

func (nopPersister) SaveDecks(map[string]*domain.Deck) error { return nil }
func (nopPersister) SaveSession(*domain.Session) error       { return nil }
func (nopPersister) ClearSession() error                     { return nil }
func (nopPersister) SaveStats(*domain.Stats) error           { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	now := time.Now()
	past := now.Add(-time.Hour)
	st := store.Load(map[string]*domain.Deck{
		"page-1": {
			PageTitle: "Networking",
			Cards: []*domain.Card{
				{ID: "a", Question: "Q a", Answer: "A a", Ease: 2.5, Interval: 1, ReviewCount: 1, Due: &past},
				{ID: "b", Question: "Q b", Answer: "A b", Ease: 2.5},
			},
		},
	})
	mgr := session.NewManager(st, nil, nil, nopPersister{}, nil, session.Limits{})
	return NewServer(mgr, nil)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestGetCounts(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/counts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}

	var body struct {
		Global struct {
			New int `json:"new"`
			Due int `json:"due"`
		} `json:"global"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Global.New != 1 || body.Global.Due != 1 {
		t.Errorf("Expected one new and one due card, but got %+v", body.Global)
	}
}

func TestStudyFlow(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/session", `{"includeDue": true, "includeNew": true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/session/card", "")
	var card struct {
		Done bool `json:"done"`
		Card struct {
			CardID   string `json:"cardId"`
			Answer   string `json:"answer"`
			Revealed bool   `json:"revealed"`
		} `json:"card"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("Failed to decode card: %v", err)
	}
	if card.Done || card.Card.CardID != "a" || card.Card.Answer != "" {
		t.Errorf("Expected the due card question side, but got %+v", card)
	}

	rec = do(t, srv, http.MethodPost, "/session/reveal", "")
	var revealed struct {
		Answer   string `json:"answer"`
		Revealed bool   `json:"revealed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &revealed); err != nil {
		t.Fatalf("Failed to decode reveal: %v", err)
	}
	if !revealed.Revealed || revealed.Answer != "A a" {
		t.Errorf("Expected the revealed answer, but got %+v", revealed)
	}

	rec = do(t, srv, http.MethodPost, "/session/rate", `{"rating": "good"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/session/rate", `{"rating": "good"}`)
	var final struct {
		Done    bool `json:"done"`
		Summary struct {
			Reviewed int `json:"reviewed"`
			Minutes  int `json:"minutes"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
		t.Fatalf("Failed to decode completion: %v", err)
	}
	if !final.Done || final.Summary.Reviewed != 2 {
		t.Errorf("Expected completion after two ratings, but got %+v", final)
	}

	// Completed is terminal.
	rec = do(t, srv, http.MethodGet, "/session", "")
	var status session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.State != session.StateNone {
		t.Errorf("Expected state none after completion, but got %q", status.State)
	}
}

func TestStartWithNothingToStudy(t *testing.T) {
	mgr := session.NewManager(store.New(), nil, nil, nopPersister{}, nil, session.Limits{})
	srv := NewServer(mgr, nil)

	rec := do(t, srv, http.MethodPost, "/session", `{"includeDue": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
	var body struct {
		Started bool   `json:"started"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Started || body.Reason == "" {
		t.Errorf("Expected a nothing-to-study response, but got %+v", body)
	}
}

func TestRateWithoutSessionIsConflict(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/session/rate", `{"rating": "good"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, but got %d", rec.Code)
	}
}

func TestRateWithUnknownRatingIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/session", `{"includeDue": true}`)

	rec := do(t, srv, http.MethodPost, "/session/rate", `{"rating": "meh"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, but got %d", rec.Code)
	}
}

func TestExitAndResumeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/session", `{"includeDue": true, "includeNew": true}`)

	rec := do(t, srv, http.MethodPost, "/session/exit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/session", "")
	var status session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.State != session.StateResumable {
		t.Fatalf("Expected resumable state, but got %q", status.State)
	}

	rec = do(t, srv, http.MethodPost, "/session/resume", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 on resume, but got %d", rec.Code)
	}
}

func TestClearSession(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/session", `{"includeDue": true}`)
	do(t, srv, http.MethodPost, "/session/exit", "")

	rec := do(t, srv, http.MethodDelete, "/session", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, but got %d", rec.Code)
	}
	rec = do(t, srv, http.MethodPost, "/session/resume", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 after clear, but got %d", rec.Code)
	}
}

func TestSessionStatusReportsPendingPushes(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Enqueue([]byte(`{}`)); err != nil {
		t.Fatalf("Enqueue returned unexpected error: %v", err)
	}

	mgr := session.NewManager(store.New(), nil, nil, nopPersister{}, nil, session.Limits{})
	srv := NewServer(mgr, syncer.New(nil, nil, db, mgr))

	rec := do(t, srv, http.MethodGet, "/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
	var body struct {
		State         string `json:"state"`
		PendingPushes int    `json:"pendingPushes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if body.PendingPushes != 1 {
		t.Errorf("Expected 1 pending push to be reported, but got %d", body.PendingPushes)
	}
}

func TestSyncUnconfigured(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/sync", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a coordinator, but got %d", rec.Code)
	}
}

func TestCreateAndUpdateCard(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/decks/page-1/cards", `{"question": "New Q", "answer": "New A"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, but got %d: %s", rec.Code, rec.Body.String())
	}
	var card domain.Card
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("Failed to decode card: %v", err)
	}
	if card.ID == "" {
		t.Error("Expected the created card to carry an id")
	}

	rec = do(t, srv, http.MethodPatch, "/decks/page-1/cards/"+card.ID, `{"suspended": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/decks/missing/cards", `{"question": "Q", "answer": "A"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing deck, but got %d", rec.Code)
	}
}

func TestTagCardsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/decks/page-1/tags", `{"cardIds": ["a", "b"], "tags": ["exam"]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, but got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/decks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", rec.Code)
	}
}
