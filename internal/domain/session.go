package domain

import "time"

// Queue entry types.
const (
	QueueNew    = "new"
	QueueReview = "review"
)

// QueueEntry points at one card in the study queue by position within
// its deck, so a rating writes back to the live card.
type QueueEntry struct {
	DeckID    string `json:"deckId"`
	CardIndex int    `json:"cardIndex"`
	Type      string `json:"type"`
}

// Session is one bounded run through a queue of due and new cards. It is
// persisted after every index advance so an interrupted session can be
// resumed.
type Session struct {
	Active       bool         `json:"active"`
	Queue        []QueueEntry `json:"queue"`
	CurrentIndex int          `json:"currentIndex"`
	StartTime    time.Time    `json:"startTime"`
}

// Resumable reports whether the session still has unreviewed entries.
func (s *Session) Resumable() bool {
	return s != nil && len(s.Queue) > 0 && s.CurrentIndex < len(s.Queue)
}
