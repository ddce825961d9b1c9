package domain

import (
	"fmt"
	"time"
)

// DefaultEase is the ease multiplier assigned to a card that has never
// been reviewed.
const DefaultEase = 2.5

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Valid reports whether r is one of the four recognized ratings.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

// ParseRating converts the wire form of a rating into a Rating.
func ParseRating(s string) (Rating, error) {
	switch s {
	case "again":
		return Again, nil
	case "hard":
		return Hard, nil
	case "good":
		return Good, nil
	case "easy":
		return Easy, nil
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// Card represents a single question-answer unit plus its scheduling state.
// A nil Due means the card is new and has never been scheduled.
type Card struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	Tags        []string   `json:"tags,omitempty"`
	Interval    int        `json:"interval"`
	Ease        float64    `json:"ease"`
	Due         *time.Time `json:"due,omitempty"`
	ReviewCount int        `json:"reviewCount"`
	Suspended   bool       `json:"suspended"`
}

// IsNew reports whether the card has never been scheduled. A card whose
// scheduling state is internally inconsistent (reviews recorded but no
// due date) is treated as new rather than rejected.
func (c *Card) IsNew() bool {
	return c.Due == nil
}

// MatchesTags reports whether the card's tag set intersects filter.
// An empty filter matches every card.
func (c *Card) MatchesTags(filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range c.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Deck owns the ordered cards derived from one source page.
type Deck struct {
	PageTitle   string    `json:"pageTitle"`
	LastUpdated time.Time `json:"lastUpdated"`
	Cards       []*Card   `json:"cards"`
}

// CardByID returns the deck's card with the given id, or nil.
func (d *Deck) CardByID(id string) *Card {
	for _, c := range d.Cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// IncomingCard is a card as delivered by the remote source. Scheduling
// fields are pointers: a nil field was not supplied by the payload and
// must never overwrite local state during a merge.
type IncomingCard struct {
	ID          string     `json:"id,omitempty"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	Tags        []string   `json:"tags,omitempty"`
	Interval    *int       `json:"interval,omitempty"`
	Ease        *float64   `json:"ease,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	ReviewCount *int       `json:"reviewCount,omitempty"`
	Suspended   *bool      `json:"suspended,omitempty"`
}

// IncomingDeck is one deck's worth of freshly fetched remote data.
type IncomingDeck struct {
	PageTitle   string         `json:"pageTitle"`
	LastUpdated time.Time      `json:"lastUpdated"`
	Cards       []IncomingCard `json:"cards"`
}
