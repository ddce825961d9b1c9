// Package store holds the in-memory card store: every synced deck and
// its cards, keyed by source page id. The store itself is not safe for
// concurrent use; the session manager serializes access.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/colmryan/notedeck/internal/cardid"
	"github.com/colmryan/notedeck/internal/domain"
)

var (
	ErrDeckNotFound = errors.New("store: deck not found")
	ErrCardNotFound = errors.New("store: card not found")
)

// Store maps deck id to deck.
type Store struct {
	decks map[string]*domain.Deck
}

// New returns an empty store.
func New() *Store {
	return &Store{decks: make(map[string]*domain.Deck)}
}

// Load wraps previously persisted decks in a store.
func Load(decks map[string]*domain.Deck) *Store {
	if decks == nil {
		decks = make(map[string]*domain.Deck)
	}
	return &Store{decks: decks}
}

// Decks exposes the live deck map. Callers must not mutate it outside
// the single-writer discipline.
func (s *Store) Decks() map[string]*domain.Deck {
	return s.decks
}

// Deck returns the deck with the given id.
func (s *Store) Deck(id string) (*domain.Deck, bool) {
	d, ok := s.decks[id]
	return d, ok
}

// Card resolves a queue entry's deck id and position to a live card.
func (s *Store) Card(deckID string, index int) (*domain.Card, bool) {
	deck, ok := s.decks[deckID]
	if !ok || index < 0 || index >= len(deck.Cards) {
		return nil, false
	}
	return deck.Cards[index], true
}

// MergeResult summarizes what a merge changed.
type MergeResult struct {
	DecksAdded   int `json:"decksAdded"`
	CardsAdded   int `json:"cardsAdded"`
	CardsMatched int `json:"cardsMatched"`
}

// Merge reconciles freshly fetched decks with local state. New decks are
// adopted wholesale; for existing decks, incoming cards are matched
// against local cards by id first and question text second. A matched
// card's scheduling fields are only overwritten where the payload
// explicitly supplies them, so local review progress always survives a
// re-sync. Local cards absent from the fetch are preserved: sync is
// additive and never deletes.
func (s *Store) Merge(incoming map[string]domain.IncomingDeck) MergeResult {
	var res MergeResult

	for deckID, in := range incoming {
		deck, ok := s.decks[deckID]
		if !ok {
			deck = &domain.Deck{}
			s.decks[deckID] = deck
			res.DecksAdded++
		}
		deck.PageTitle = in.PageTitle
		deck.LastUpdated = in.LastUpdated

		for _, inCard := range in.Cards {
			if strings.TrimSpace(inCard.Question) == "" {
				continue
			}
			local := matchCard(deck, inCard)
			if local == nil {
				deck.Cards = append(deck.Cards, adoptCard(inCard))
				res.CardsAdded++
				continue
			}
			res.CardsMatched++
			local.Question = inCard.Question
			local.Answer = inCard.Answer
			if inCard.Tags != nil {
				local.Tags = inCard.Tags
			}
			// Scheduling fields: incoming only as explicit fallback.
			if inCard.Interval != nil {
				local.Interval = *inCard.Interval
			}
			if inCard.Ease != nil {
				local.Ease = *inCard.Ease
			}
			if inCard.Due != nil {
				local.Due = inCard.Due
			}
			if inCard.ReviewCount != nil {
				local.ReviewCount = *inCard.ReviewCount
			}
			if inCard.Suspended != nil {
				local.Suspended = *inCard.Suspended
			}
		}
	}
	return res
}

// matchCard finds the local card an incoming card corresponds to: by id
// when the payload carries one, otherwise by normalized question text.
// The first question-text match wins, in deck order.
func matchCard(deck *domain.Deck, in domain.IncomingCard) *domain.Card {
	if in.ID != "" {
		if c := deck.CardByID(in.ID); c != nil {
			return c
		}
	}
	want := cardid.Normalize(in.Question)
	for _, c := range deck.Cards {
		if cardid.Normalize(c.Question) == want {
			return c
		}
	}
	return nil
}

// adoptCard turns an incoming card into a local one, defaulting every
// scheduling field the payload did not supply.
func adoptCard(in domain.IncomingCard) *domain.Card {
	c := &domain.Card{
		ID:       in.ID,
		Question: in.Question,
		Answer:   in.Answer,
		Tags:     in.Tags,
		Ease:     domain.DefaultEase,
	}
	if c.ID == "" {
		c.ID = cardid.FromQuestion(in.Question)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if in.Interval != nil {
		c.Interval = *in.Interval
	}
	if in.Ease != nil {
		c.Ease = *in.Ease
	}
	if in.Due != nil {
		c.Due = in.Due
	}
	if in.ReviewCount != nil {
		c.ReviewCount = *in.ReviewCount
	}
	if in.Suspended != nil {
		c.Suspended = *in.Suspended
	}
	return c
}

// CreateCard appends a manually authored card to an existing deck. The
// card gets a generated id so later edits and merges never collide with
// question-text matching.
func (s *Store) CreateCard(deckID, question, answer string, tags []string) (*domain.Card, error) {
	deck, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("store: question cannot be empty")
	}
	if tags == nil {
		tags = []string{}
	}
	card := &domain.Card{
		ID:       uuid.NewString(),
		Question: question,
		Answer:   answer,
		Tags:     tags,
		Ease:     domain.DefaultEase,
	}
	deck.Cards = append(deck.Cards, card)
	return card, nil
}

// CardUpdate carries the editable fields of a card; nil fields are left
// untouched.
type CardUpdate struct {
	Question  *string  `json:"question,omitempty"`
	Answer    *string  `json:"answer,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Suspended *bool    `json:"suspended,omitempty"`
}

// UpdateCard edits a card in place.
func (s *Store) UpdateCard(deckID, cardID string, upd CardUpdate) (*domain.Card, error) {
	deck, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	card := deck.CardByID(cardID)
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	if upd.Question != nil && strings.TrimSpace(*upd.Question) != "" {
		card.Question = *upd.Question
	}
	if upd.Answer != nil {
		card.Answer = *upd.Answer
	}
	if upd.Tags != nil {
		card.Tags = upd.Tags
	}
	if upd.Suspended != nil {
		card.Suspended = *upd.Suspended
	}
	return card, nil
}

// TagCards adds tags to every listed card in a deck in one batch edit.
func (s *Store) TagCards(deckID string, cardIDs []string, tags []string) error {
	deck, ok := s.decks[deckID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	for _, id := range cardIDs {
		card := deck.CardByID(id)
		if card == nil {
			return fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		for _, tag := range tags {
			if !card.MatchesTags([]string{tag}) {
				card.Tags = append(card.Tags, tag)
			}
		}
	}
	return nil
}
