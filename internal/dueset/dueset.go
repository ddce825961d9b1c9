// Package dueset classifies cards as new, due, or in-progress for badge
// counts and for study-queue construction. Everything here is a pure
// function over a card-store snapshot and a point in time.
package dueset

import (
	"sort"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
)

// InProgress marks a card with a future due date and recorded reviews.
// New and due cards reuse the queue entry types; an in-progress card
// never enters a queue.
const InProgress = "in-progress"

// Counts holds the classification totals. Suspended cards are excluded
// from all three buckets.
type Counts struct {
	New        int `json:"new"`
	Due        int `json:"due"`
	InProgress int `json:"inProgress"`
}

// CardRef identifies a live card by deck and position.
type CardRef struct {
	DeckID    string
	CardIndex int
	Card      *domain.Card
}

// Calculate returns global and per-deck counts for every non-suspended
// card in decks at time now.
func Calculate(decks map[string]*domain.Deck, now time.Time) (Counts, map[string]Counts) {
	var global Counts
	perDeck := make(map[string]Counts, len(decks))

	for deckID, deck := range decks {
		var dc Counts
		for _, card := range deck.Cards {
			if card.Suspended {
				continue
			}
			switch classify(card, now) {
			case domain.QueueNew:
				dc.New++
			case domain.QueueReview:
				dc.Due++
			default:
				dc.InProgress++
			}
		}
		perDeck[deckID] = dc
		global.New += dc.New
		global.Due += dc.Due
		global.InProgress += dc.InProgress
	}
	return global, perDeck
}

// DueCards returns every non-suspended due card whose tags intersect
// filter, sorted ascending by due timestamp so the longest-overdue card
// is reviewed first. Ties fall back to deck id then position to keep the
// order deterministic.
func DueCards(decks map[string]*domain.Deck, now time.Time, filter []string) []CardRef {
	var refs []CardRef
	for _, deckID := range sortedDeckIDs(decks) {
		for i, card := range decks[deckID].Cards {
			if card.Suspended || !card.MatchesTags(filter) {
				continue
			}
			if classify(card, now) == domain.QueueReview {
				refs = append(refs, CardRef{DeckID: deckID, CardIndex: i, Card: card})
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Card.Due.Before(*refs[j].Card.Due)
	})
	return refs
}

// NewCards returns every non-suspended new card whose tags intersect
// filter, in deterministic insertion order (deck id, then position).
func NewCards(decks map[string]*domain.Deck, now time.Time, filter []string) []CardRef {
	var refs []CardRef
	for _, deckID := range sortedDeckIDs(decks) {
		for i, card := range decks[deckID].Cards {
			if card.Suspended || !card.MatchesTags(filter) {
				continue
			}
			if classify(card, now) == domain.QueueNew {
				refs = append(refs, CardRef{DeckID: deckID, CardIndex: i, Card: card})
			}
		}
	}
	return refs
}

// classify buckets a card as new, due, or in-progress. A card with a
// future due date but no recorded reviews is inconsistent state and is
// defensively treated as new.
func classify(card *domain.Card, now time.Time) string {
	switch {
	case card.Due == nil:
		return domain.QueueNew
	case !card.Due.After(now):
		return domain.QueueReview
	case card.ReviewCount > 0:
		return InProgress
	default:
		return domain.QueueNew
	}
}

func sortedDeckIDs(decks map[string]*domain.Deck) []string {
	ids := make([]string, 0, len(decks))
	for id := range decks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
