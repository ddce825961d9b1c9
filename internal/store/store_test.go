package store

import (
	"errors"
	"testing"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
)

func intPtr(v int) *int              { return &v }
func floatPtr(v float64) *float64    { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestMergeAdoptsNewDeck(t *testing.T) {
	s := New()
	res := s.Merge(map[string]domain.IncomingDeck{
		"page-1": {
			PageTitle:   "TCP Basics",
			LastUpdated: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Cards: []domain.IncomingCard{
				{Question: "What is a SYN?", Answer: "The first segment of the handshake."},
				{Question: "What is a FIN?", Answer: "A connection teardown segment."},
			},
		},
	})

	if res.DecksAdded != 1 || res.CardsAdded != 2 {
		t.Fatalf("Expected 1 deck and 2 cards added, but got %+v", res)
	}
	deck, ok := s.Deck("page-1")
	if !ok {
		t.Fatal("Expected deck page-1 to exist after merge")
	}
	for _, c := range deck.Cards {
		if c.ID == "" {
			t.Error("Expected every adopted card to get a derived id")
		}
		if c.Interval != 0 || c.Ease != domain.DefaultEase || c.Due != nil || c.ReviewCount != 0 || c.Suspended {
			t.Errorf("Expected default scheduling state, but got %+v", c)
		}
	}
}

func TestMergePreservesLocalSchedulingState(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {
			PageTitle: "TCP Basics",
			Cards:     []domain.IncomingCard{{Question: "What is a SYN?", Answer: "old answer"}},
		},
	})

	// Simulate review progress.
	deck, _ := s.Deck("page-1")
	card := deck.Cards[0]
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	card.Interval = 12
	card.Ease = 2.1
	card.Due = &due
	card.ReviewCount = 5

	// Re-sync the same question with no scheduling fields and a fresher answer.
	res := s.Merge(map[string]domain.IncomingDeck{
		"page-1": {
			PageTitle: "TCP Basics (rev 2)",
			Cards:     []domain.IncomingCard{{Question: "What is a SYN?", Answer: "new answer"}},
		},
	})

	if res.CardsMatched != 1 || res.CardsAdded != 0 {
		t.Fatalf("Expected one matched card, but got %+v", res)
	}
	if card.Answer != "new answer" {
		t.Errorf("Expected answer to be refreshed, but got %q", card.Answer)
	}
	if card.Interval != 12 || card.Ease != 2.1 || card.ReviewCount != 5 || card.Due == nil || !card.Due.Equal(due) {
		t.Errorf("Expected scheduling state to survive re-sync, but got %+v", card)
	}
	if deck.PageTitle != "TCP Basics (rev 2)" {
		t.Errorf("Expected deck title to update, but got %q", deck.PageTitle)
	}
}

func TestMergeUsesExplicitSchedulingFields(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{Question: "Q1", Answer: "A1"}}},
	})

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{
			Question:    "Q1",
			Answer:      "A1",
			Interval:    intPtr(7),
			Ease:        floatPtr(1.9),
			Due:         timePtr(due),
			ReviewCount: intPtr(3),
		}}},
	})

	deck, _ := s.Deck("page-1")
	card := deck.Cards[0]
	if card.Interval != 7 || card.Ease != 1.9 || card.ReviewCount != 3 || card.Due == nil || !card.Due.Equal(due) {
		t.Errorf("Expected explicit payload fields to win, but got %+v", card)
	}
}

func TestMergeNeverDeletesLocalCards(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{
			{Question: "Keep me", Answer: "a"},
			{Question: "Also keep me", Answer: "b"},
		}},
	})

	// A later fetch no longer contains the second card.
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{Question: "Keep me", Answer: "a"}}},
	})

	deck, _ := s.Deck("page-1")
	if len(deck.Cards) != 2 {
		t.Errorf("Expected both local cards to survive, but got %d", len(deck.Cards))
	}
}

func TestMergeMatchesByIDBeforeQuestionText(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{ID: "card-1", Question: "Original wording", Answer: "a"}}},
	})

	// The remote rewrote the question but kept the id.
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{ID: "card-1", Question: "New wording", Answer: "a"}}},
	})

	deck, _ := s.Deck("page-1")
	if len(deck.Cards) != 1 {
		t.Fatalf("Expected id match to avoid a duplicate card, but got %d cards", len(deck.Cards))
	}
	if deck.Cards[0].Question != "New wording" {
		t.Errorf("Expected question to be updated, but got %q", deck.Cards[0].Question)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	payload := map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{Question: "Q", Answer: "A"}}},
	}
	s := New()
	s.Merge(payload)
	res := s.Merge(payload)

	if res.CardsAdded != 0 || res.DecksAdded != 0 {
		t.Errorf("Expected repeated merge to add nothing, but got %+v", res)
	}
}

func TestCardLookupByPosition(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{
			{ID: "c1", Question: "Q1"},
			{ID: "c2", Question: "Q2"},
		}},
	})

	card, ok := s.Card("page-1", 1)
	if !ok || card.ID != "c2" {
		t.Errorf("Expected c2 at position 1, but got %+v (ok=%v)", card, ok)
	}
	if _, ok := s.Card("page-1", 5); ok {
		t.Error("Expected no card at an out-of-range position")
	}
	if _, ok := s.Card("missing", 0); ok {
		t.Error("Expected no card in an unknown deck")
	}
}

func TestCreateCard(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{"page-1": {PageTitle: "T"}})

	card, err := s.CreateCard("page-1", "Manual question", "Manual answer", []string{"manual"})
	if err != nil {
		t.Fatalf("CreateCard returned unexpected error: %v", err)
	}
	if card.ID == "" {
		t.Error("Expected created card to get a generated id")
	}
	if card.Ease != domain.DefaultEase || card.Due != nil {
		t.Errorf("Expected new-card defaults, but got %+v", card)
	}

	if _, err := s.CreateCard("missing", "Q", "A", nil); !errors.Is(err, ErrDeckNotFound) {
		t.Errorf("Expected ErrDeckNotFound, but got %v", err)
	}
}

func TestUpdateCard(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{{ID: "c1", Question: "Q", Answer: "A"}}},
	})

	answer := "better answer"
	suspended := true
	card, err := s.UpdateCard("page-1", "c1", CardUpdate{Answer: &answer, Suspended: &suspended})
	if err != nil {
		t.Fatalf("UpdateCard returned unexpected error: %v", err)
	}
	if card.Answer != "better answer" || !card.Suspended {
		t.Errorf("Expected updated fields, but got %+v", card)
	}

	if _, err := s.UpdateCard("page-1", "ghost", CardUpdate{}); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Expected ErrCardNotFound, but got %v", err)
	}
}

func TestTagCards(t *testing.T) {
	s := New()
	s.Merge(map[string]domain.IncomingDeck{
		"page-1": {Cards: []domain.IncomingCard{
			{ID: "c1", Question: "Q1"},
			{ID: "c2", Question: "Q2", Tags: []string{"net"}},
		}},
	})

	if err := s.TagCards("page-1", []string{"c1", "c2"}, []string{"net", "exam"}); err != nil {
		t.Fatalf("TagCards returned unexpected error: %v", err)
	}
	deck, _ := s.Deck("page-1")
	if len(deck.Cards[0].Tags) != 2 {
		t.Errorf("Expected c1 to gain both tags, but got %v", deck.Cards[0].Tags)
	}
	if len(deck.Cards[1].Tags) != 2 {
		t.Errorf("Expected c2 to gain only the missing tag, but got %v", deck.Cards[1].Tags)
	}
}
