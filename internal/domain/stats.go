package domain

import "time"

// MaxReviewHistory bounds the review log; the oldest entries are evicted
// once the cap is reached.
const MaxReviewHistory = 1000

// ReviewRecord is one entry in the bounded review log. It carries enough
// to reconstruct per-day activity (heatmaps) and interval growth.
type ReviewRecord struct {
	Date             time.Time `json:"date"`
	DeckID           string    `json:"deckId"`
	CardID           string    `json:"cardId"`
	Rating           string    `json:"rating"`
	PreviousInterval int       `json:"previousInterval"`
	NewInterval      int       `json:"newInterval"`
	Ease             float64   `json:"ease"`
}

// DeckStats holds the per-deck slice of the cumulative counters.
type DeckStats struct {
	CardsStudied   int `json:"cardsStudied"`
	TotalReviews   int `json:"totalReviews"`
	CorrectReviews int `json:"correctReviews"`
}

// Stats accumulates study activity across sessions. CardsStudied counts
// cards reviewed for the first time ever; CorrectReviews counts every
// rating other than "again".
type Stats struct {
	CardsStudied     int                   `json:"cardsStudied"`
	TotalReviews     int                   `json:"totalReviews"`
	CorrectReviews   int                   `json:"correctReviews"`
	StudyTimeMinutes int                   `json:"studyTimeMinutes"`
	StreakDays       int                   `json:"streakDays"`
	LastStudyDate    *time.Time            `json:"lastStudyDate,omitempty"`
	ReviewHistory    []ReviewRecord        `json:"reviewHistory,omitempty"`
	DeckStats        map[string]*DeckStats `json:"deckStats,omitempty"`
}

// NewStats returns an empty statistics record ready for use.
func NewStats() *Stats {
	return &Stats{DeckStats: make(map[string]*DeckStats)}
}

// Deck returns the stats bucket for deckID, creating it if needed.
func (s *Stats) Deck(deckID string) *DeckStats {
	if s.DeckStats == nil {
		s.DeckStats = make(map[string]*DeckStats)
	}
	ds, ok := s.DeckStats[deckID]
	if !ok {
		ds = &DeckStats{}
		s.DeckStats[deckID] = ds
	}
	return ds
}

// AppendHistory adds rec to the review log, evicting the oldest entries
// beyond MaxReviewHistory.
func (s *Stats) AppendHistory(rec ReviewRecord) {
	s.ReviewHistory = append(s.ReviewHistory, rec)
	if n := len(s.ReviewHistory); n > MaxReviewHistory {
		s.ReviewHistory = s.ReviewHistory[n-MaxReviewHistory:]
	}
}

// TouchStudyDay updates the streak counters for a review happening at
// now: same calendar day holds the streak, the next day extends it, and
// a longer gap restarts it at one.
func (s *Stats) TouchStudyDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	switch {
	case s.LastStudyDate == nil:
		s.StreakDays = 1
	case s.LastStudyDate.Truncate(24 * time.Hour).Equal(day):
		// Already counted today.
	case s.LastStudyDate.Truncate(24 * time.Hour).Equal(day.AddDate(0, 0, -1)):
		s.StreakDays++
	default:
		s.StreakDays = 1
	}
	s.LastStudyDate = &now
}
