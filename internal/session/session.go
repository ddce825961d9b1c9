// Package session drives the study flow: it builds the review queue,
// walks it card by card, applies ratings through the scheduler, records
// statistics, and keeps the persisted session resumable across restarts.
package session

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
	"github.com/colmryan/notedeck/internal/dueset"
	"github.com/colmryan/notedeck/internal/scheduler"
	"github.com/colmryan/notedeck/internal/store"
)

var (
	// ErrNoActiveSession marks a caller bug: a mutator was invoked
	// outside an active session.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrSessionActive is returned when starting over an active session.
	ErrSessionActive = errors.New("session: a session is already active")
	// ErrNothingToStudy is returned when the built queue is empty; no
	// session is created.
	ErrNothingToStudy = errors.New("session: nothing to study")
	// ErrNotResumable is returned when there is no interrupted session
	// left to resume.
	ErrNotResumable = errors.New("session: no session to resume")
	// ErrSyncBusy is returned when a merge is attempted while a session
	// is active; sync and study never interleave.
	ErrSyncBusy = errors.New("session: sync refused while a session is active")
)

// New-card ordering policies.
const (
	NewOrderInsertion = "insertion"
	NewOrderRandom    = "random"
)

// Persister is the local persistence boundary. Every mutating operation
// commits here before any remote push is attempted.
type Persister interface {
	SaveDecks(decks map[string]*domain.Deck) error
	SaveSession(sess *domain.Session) error
	ClearSession() error
	SaveStats(stats *domain.Stats) error
}

// RemoteSink receives best-effort pushes of the card store after local
// commit. Implementations must not fail the caller: delivery problems
// are absorbed into a durable retry queue.
type RemoteSink interface {
	Push(decks map[string]*domain.Deck)
}

// Limits caps how many cards a single session may pull in. Zero means
// unlimited.
type Limits struct {
	DailyNew    int
	DailyReview int
	NewOrder    string
}

// Options selects what goes into a session queue.
type Options struct {
	IncludeDue bool     `json:"includeDue"`
	IncludeNew bool     `json:"includeNew"`
	Limit      int      `json:"limit"`
	Tags       []string `json:"tags"`
}

// Current describes the card being presented. Answer is only populated
// once the card has been revealed.
type Current struct {
	DeckID   string   `json:"deckId"`
	CardID   string   `json:"cardId"`
	Question string   `json:"question"`
	Answer   string   `json:"answer,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Type     string   `json:"type"`
	Position int      `json:"position"`
	Total    int      `json:"total"`
	Revealed bool     `json:"revealed"`
}

// Summary reports a completed session.
type Summary struct {
	Reviewed int `json:"reviewed"`
	New      int `json:"new"`
	Review   int `json:"review"`
	Minutes  int `json:"minutes"`
}

// Session lifecycle states as reported by Status.
const (
	StateNone      = "none"
	StateActive    = "active"
	StateResumable = "resumable"
)

// Status is the session state exposed to the client.
type Status struct {
	State    string `json:"state"`
	Position int    `json:"position,omitempty"`
	Total    int    `json:"total,omitempty"`
}

// Manager owns the card store, the session, and the statistics. All
// mutation funnels through its mutex: HTTP handlers may run
// concurrently, but the store only ever has one writer at a time.
type Manager struct {
	mu       sync.Mutex
	store    *store.Store
	stats    *domain.Stats
	sess     *domain.Session
	revealed bool

	persist Persister
	remote  RemoteSink
	limits  Limits
	now     func() time.Time
}

// NewManager wires a manager around previously restored state. restored
// may be nil (no interrupted session) and stats may be nil (fresh
// statistics).
func NewManager(st *store.Store, stats *domain.Stats, restored *domain.Session, persist Persister, remote RemoteSink, limits Limits) *Manager {
	if stats == nil {
		stats = domain.NewStats()
	}
	if limits.NewOrder == "" {
		limits.NewOrder = NewOrderInsertion
	}
	return &Manager{
		store:   st,
		stats:   stats,
		sess:    restored,
		persist: persist,
		remote:  remote,
		limits:  limits,
		now:     time.Now,
	}
}

// SetRemote attaches the remote sink after construction. The sync
// coordinator and the manager reference each other, so one side has to
// be wired late.
func (m *Manager) SetRemote(remote RemoteSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote = remote
}

// Start builds the review queue and opens a session. Due cards come
// first, longest-overdue leading; new cards follow, capped by the daily
// limits and the per-call limit.
func (m *Manager) Start(opts Options) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && m.sess.Active {
		return Status{}, ErrSessionActive
	}

	now := m.now()
	decks := m.store.Decks()
	var queue []domain.QueueEntry

	if opts.IncludeDue {
		refs := dueset.DueCards(decks, now, opts.Tags)
		refs = truncate(refs, capLimit(m.limits.DailyReview, opts.Limit))
		for _, ref := range refs {
			queue = append(queue, domain.QueueEntry{DeckID: ref.DeckID, CardIndex: ref.CardIndex, Type: domain.QueueReview})
		}
	}

	// A per-call limit already consumed by due cards leaves no room for
	// new ones.
	if opts.IncludeNew && (opts.Limit <= 0 || len(queue) < opts.Limit) {
		refs := dueset.NewCards(decks, now, opts.Tags)
		if m.limits.NewOrder == NewOrderRandom {
			rand.Shuffle(len(refs), func(i, j int) {
				refs[i], refs[j] = refs[j], refs[i]
			})
		}
		remaining := 0
		if opts.Limit > 0 {
			remaining = opts.Limit - len(queue)
		}
		refs = truncate(refs, capLimit(m.limits.DailyNew, remaining))
		for _, ref := range refs {
			queue = append(queue, domain.QueueEntry{DeckID: ref.DeckID, CardIndex: ref.CardIndex, Type: domain.QueueNew})
		}
	}

	if len(queue) == 0 {
		return Status{}, ErrNothingToStudy
	}

	m.sess = &domain.Session{
		Active:       true,
		Queue:        queue,
		CurrentIndex: 0,
		StartTime:    now,
	}
	m.revealed = false
	if err := m.persist.SaveSession(m.sess); err != nil {
		return Status{}, fmt.Errorf("persisting session: %w", err)
	}
	return m.statusLocked(), nil
}

// Current returns the card at the queue cursor, skipping entries whose
// card no longer exists. When the cursor reaches the end of the queue
// the session completes and a summary is returned instead of a card.
func (m *Manager) Current() (*Current, *Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

// Reveal flips the presented card from question to answer. The flag is
// presentation state only and is never persisted.
func (m *Manager) Reveal() (*Current, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, _, err := m.currentLocked()
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNoActiveSession
	}
	m.revealed = true
	cur.Revealed = true
	if card, ok := m.store.Card(cur.DeckID, m.sess.Queue[m.sess.CurrentIndex].CardIndex); ok {
		cur.Answer = card.Answer
	}
	return cur, nil
}

// ApplyRating runs the scheduler on the current card, writes the result
// back, records history and statistics, advances the cursor, commits
// everything locally, and then pushes to the remote sink. It returns the
// next card, or a summary when the session just completed.
func (m *Manager) ApplyRating(rating domain.Rating) (*Current, *Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || !m.sess.Active {
		return nil, nil, ErrNoActiveSession
	}

	cur, summary, err := m.currentLocked()
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		// The skip pass exhausted the queue; the session already closed.
		return nil, summary, nil
	}

	entry := m.sess.Queue[m.sess.CurrentIndex]
	card, _ := m.store.Card(entry.DeckID, entry.CardIndex)
	now := m.now()

	ease := card.Ease
	if ease == 0 {
		ease = domain.DefaultEase
	}
	next, err := scheduler.Next(scheduler.CardSchedule{
		Interval:    card.Interval,
		Ease:        ease,
		Due:         card.Due,
		ReviewCount: card.ReviewCount,
	}, rating, now)
	if err != nil {
		return nil, nil, err
	}

	prevInterval := card.Interval
	firstReview := card.ReviewCount == 0

	card.Interval = next.Interval
	card.Ease = next.Ease
	card.Due = next.Due
	card.ReviewCount = next.ReviewCount

	m.recordReview(entry.DeckID, card.ID, rating, prevInterval, next, firstReview, now)

	// Local commit strictly precedes the remote push: a crash in between
	// is recovered through the retry queue, never by losing the review.
	if err := m.persist.SaveDecks(m.store.Decks()); err != nil {
		return nil, nil, fmt.Errorf("persisting card store: %w", err)
	}
	if err := m.persist.SaveStats(m.stats); err != nil {
		return nil, nil, fmt.Errorf("persisting statistics: %w", err)
	}

	m.sess.CurrentIndex++
	m.revealed = false
	if m.sess.CurrentIndex < len(m.sess.Queue) {
		if err := m.persist.SaveSession(m.sess); err != nil {
			return nil, nil, fmt.Errorf("persisting session: %w", err)
		}
	}

	if m.remote != nil {
		m.remote.Push(m.store.Decks())
	}

	return m.currentLocked()
}

// Exit deactivates the session but keeps its queue so a later resume
// prompt can offer to continue. Ratings already applied are committed.
func (m *Manager) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || !m.sess.Active {
		return ErrNoActiveSession
	}
	m.sess.Active = false
	m.revealed = false
	if err := m.persist.SaveSession(m.sess); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

// Resume reactivates an interrupted session.
func (m *Manager) Resume() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sess.Resumable() {
		return Status{}, ErrNotResumable
	}
	m.sess.Active = true
	m.revealed = false
	if err := m.persist.SaveSession(m.sess); err != nil {
		return Status{}, fmt.Errorf("persisting session: %w", err)
	}
	return m.statusLocked(), nil
}

// Clear discards the persisted session entirely, used when the user
// declines the resume prompt.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sess = nil
	m.revealed = false
	if err := m.persist.ClearSession(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Status reports the session lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// DueCounts classifies the store for badge counts.
func (m *Manager) DueCounts() (dueset.Counts, map[string]dueset.Counts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return dueset.Calculate(m.store.Decks(), m.now())
}

// DeckSummary is one deck's listing entry.
type DeckSummary struct {
	ID          string        `json:"id"`
	PageTitle   string        `json:"pageTitle"`
	LastUpdated time.Time     `json:"lastUpdated"`
	TotalCards  int           `json:"totalCards"`
	Counts      dueset.Counts `json:"counts"`
}

// DeckSummaries lists every deck with raw totals and due-set counts.
func (m *Manager) DeckSummaries() []DeckSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, perDeck := dueset.Calculate(m.store.Decks(), m.now())
	summaries := make([]DeckSummary, 0, len(m.store.Decks()))
	for id, deck := range m.store.Decks() {
		summaries = append(summaries, DeckSummary{
			ID:          id,
			PageTitle:   deck.PageTitle,
			LastUpdated: deck.LastUpdated,
			TotalCards:  len(deck.Cards),
			Counts:      perDeck[id],
		})
	}
	return summaries
}

// Statistics returns a snapshot safe to serialize outside the lock.
func (m *Manager) Statistics() domain.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := *m.stats
	snap.ReviewHistory = append([]domain.ReviewRecord(nil), m.stats.ReviewHistory...)
	snap.DeckStats = make(map[string]*domain.DeckStats, len(m.stats.DeckStats))
	for id, ds := range m.stats.DeckStats {
		copied := *ds
		snap.DeckStats[id] = &copied
	}
	return snap
}

// MergeDecks merges freshly fetched decks into the store and persists
// the result. Refused while a session is active so sync and study never
// mutate the store in the same window.
func (m *Manager) MergeDecks(incoming map[string]domain.IncomingDeck) (store.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && m.sess.Active {
		return store.MergeResult{}, ErrSyncBusy
	}
	res := m.store.Merge(incoming)
	if err := m.persist.SaveDecks(m.store.Decks()); err != nil {
		return res, fmt.Errorf("persisting card store: %w", err)
	}
	if m.remote != nil {
		m.remote.Push(m.store.Decks())
	}
	return res, nil
}

// CreateCard adds a manual card and commits the store.
func (m *Manager) CreateCard(deckID, question, answer string, tags []string) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, err := m.store.CreateCard(deckID, question, answer, tags)
	if err != nil {
		return nil, err
	}
	if err := m.persist.SaveDecks(m.store.Decks()); err != nil {
		return nil, fmt.Errorf("persisting card store: %w", err)
	}
	if m.remote != nil {
		m.remote.Push(m.store.Decks())
	}
	return card, nil
}

// UpdateCard edits a card and commits the store.
func (m *Manager) UpdateCard(deckID, cardID string, upd store.CardUpdate) (*domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, err := m.store.UpdateCard(deckID, cardID, upd)
	if err != nil {
		return nil, err
	}
	if err := m.persist.SaveDecks(m.store.Decks()); err != nil {
		return nil, fmt.Errorf("persisting card store: %w", err)
	}
	if m.remote != nil {
		m.remote.Push(m.store.Decks())
	}
	return card, nil
}

// TagCards applies tags to a batch of cards and commits the store.
func (m *Manager) TagCards(deckID string, cardIDs []string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.TagCards(deckID, cardIDs, tags); err != nil {
		return err
	}
	if err := m.persist.SaveDecks(m.store.Decks()); err != nil {
		return fmt.Errorf("persisting card store: %w", err)
	}
	if m.remote != nil {
		m.remote.Push(m.store.Decks())
	}
	return nil
}

func (m *Manager) statusLocked() Status {
	switch {
	case m.sess == nil:
		return Status{State: StateNone}
	case m.sess.Active:
		return Status{State: StateActive, Position: m.sess.CurrentIndex, Total: len(m.sess.Queue)}
	case m.sess.Resumable():
		return Status{State: StateResumable, Position: m.sess.CurrentIndex, Total: len(m.sess.Queue)}
	default:
		return Status{State: StateNone}
	}
}

// currentLocked resolves the queue cursor to a live card. Stale entries
// (card deleted or suspended since the queue was built) are skipped; the
// loop is bounded by the queue length so it terminates even when every
// remaining entry is stale. Reaching the end finalizes the session.
func (m *Manager) currentLocked() (*Current, *Summary, error) {
	if m.sess == nil || !m.sess.Active {
		return nil, nil, ErrNoActiveSession
	}

	advanced := false
	for m.sess.CurrentIndex < len(m.sess.Queue) {
		entry := m.sess.Queue[m.sess.CurrentIndex]
		card, ok := m.store.Card(entry.DeckID, entry.CardIndex)
		if ok && !card.Suspended {
			if advanced {
				if err := m.persist.SaveSession(m.sess); err != nil {
					return nil, nil, fmt.Errorf("persisting session: %w", err)
				}
			}
			cur := &Current{
				DeckID:   entry.DeckID,
				CardID:   card.ID,
				Question: card.Question,
				Tags:     card.Tags,
				Type:     entry.Type,
				Position: m.sess.CurrentIndex,
				Total:    len(m.sess.Queue),
				Revealed: m.revealed,
			}
			if m.revealed {
				cur.Answer = card.Answer
			}
			return cur, nil, nil
		}
		m.sess.CurrentIndex++
		m.revealed = false
		advanced = true
	}

	summary, err := m.finalizeLocked()
	if err != nil {
		return nil, nil, err
	}
	return nil, summary, nil
}

// finalizeLocked closes a completed session: study time is added to the
// cumulative statistics and the persisted session is cleared. Completed
// is terminal.
func (m *Manager) finalizeLocked() (*Summary, error) {
	sess := m.sess
	minutes := int(math.Round(m.now().Sub(sess.StartTime).Minutes()))
	m.stats.StudyTimeMinutes += minutes

	summary := &Summary{Reviewed: len(sess.Queue), Minutes: minutes}
	for _, entry := range sess.Queue {
		if entry.Type == domain.QueueNew {
			summary.New++
		} else {
			summary.Review++
		}
	}

	m.sess = nil
	m.revealed = false
	if err := m.persist.SaveStats(m.stats); err != nil {
		return nil, fmt.Errorf("persisting statistics: %w", err)
	}
	if err := m.persist.ClearSession(); err != nil {
		return nil, fmt.Errorf("clearing session: %w", err)
	}
	return summary, nil
}

// recordReview updates every statistics counter for one applied rating.
func (m *Manager) recordReview(deckID, cardID string, rating domain.Rating, prevInterval int, next scheduler.CardSchedule, firstReview bool, now time.Time) {
	m.stats.TotalReviews++
	deckStats := m.stats.Deck(deckID)
	deckStats.TotalReviews++
	if rating != domain.Again {
		m.stats.CorrectReviews++
		deckStats.CorrectReviews++
	}
	if firstReview {
		m.stats.CardsStudied++
		deckStats.CardsStudied++
	}
	m.stats.TouchStudyDay(now)
	m.stats.AppendHistory(domain.ReviewRecord{
		Date:             now,
		DeckID:           deckID,
		CardID:           cardID,
		Rating:           rating.String(),
		PreviousInterval: prevInterval,
		NewInterval:      next.Interval,
		Ease:             next.Ease,
	})
}

// capLimit combines a daily limit with a per-call limit; zero or
// negative values mean unbounded.
func capLimit(daily, limit int) int {
	switch {
	case daily <= 0:
		return limit
	case limit <= 0:
		return daily
	case daily < limit:
		return daily
	default:
		return limit
	}
}

func truncate(refs []dueset.CardRef, limit int) []dueset.CardRef {
	if limit > 0 && len(refs) > limit {
		return refs[:limit]
	}
	return refs
}
