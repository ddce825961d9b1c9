package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/colmryan/notedeck/internal/domain"
)

// Record names in the records table.
const (
	recordSession = "session"
	recordStats   = "stats"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveDecks atomically replaces the persisted card store with the given
// snapshot. The delete-and-reinsert inside one transaction gives the
// whole-structure write the merge and rating paths rely on.
func (db *DB) SaveDecks(decks map[string]*domain.Deck) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deck save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cards`); err != nil {
		return fmt.Errorf("failed to clear cards: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM decks`); err != nil {
		return fmt.Errorf("failed to clear decks: %w", err)
	}

	for deckID, deck := range decks {
		if _, err := tx.Exec(`
			INSERT INTO decks (id, page_title, last_updated)
			VALUES (?, ?, ?)
		`, deckID, deck.PageTitle, deck.LastUpdated); err != nil {
			return fmt.Errorf("failed to insert deck %s: %w", deckID, err)
		}

		for pos, card := range deck.Cards {
			tags, err := json.Marshal(card.Tags)
			if err != nil {
				return fmt.Errorf("failed to encode tags for card %s: %w", card.ID, err)
			}
			var due sql.NullTime
			if card.Due != nil {
				due = sql.NullTime{Time: *card.Due, Valid: true}
			}
			if _, err := tx.Exec(`
				INSERT INTO cards (deck_id, position, id, question, answer, tags, interval, ease, due, review_count, suspended)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				deckID, pos, card.ID, card.Question, card.Answer, string(tags),
				card.Interval, card.Ease, due, card.ReviewCount, card.Suspended,
			); err != nil {
				return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deck save: %w", err)
	}
	return nil
}

// LoadDecks reconstructs the card store from the database.
func (db *DB) LoadDecks() (map[string]*domain.Deck, error) {
	decks := make(map[string]*domain.Deck)

	rows, err := db.conn.Query(`SELECT id, page_title, last_updated FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		deck := &domain.Deck{}
		if err := rows.Scan(&id, &deck.PageTitle, &deck.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks[id] = deck
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deck rows: %w", err)
	}

	cardRows, err := db.conn.Query(`
		SELECT deck_id, id, question, answer, tags, interval, ease, due, review_count, suspended
		FROM cards ORDER BY deck_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	defer cardRows.Close()
	for cardRows.Next() {
		var (
			deckID string
			card   domain.Card
			tags   string
			due    sql.NullTime
		)
		if err := cardRows.Scan(
			&deckID, &card.ID, &card.Question, &card.Answer, &tags,
			&card.Interval, &card.Ease, &due, &card.ReviewCount, &card.Suspended,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &card.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for card %s: %w", card.ID, err)
		}
		if due.Valid {
			t := due.Time
			card.Due = &t
		}
		deck, ok := decks[deckID]
		if !ok {
			// Orphaned card row; skip rather than invent a deck.
			continue
		}
		deck.Cards = append(deck.Cards, &card)
	}
	if err := cardRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card rows: %w", err)
	}

	return decks, nil
}

// SaveSession persists the study session as one JSON record.
func (db *DB) SaveSession(sess *domain.Session) error {
	return db.saveRecord(recordSession, sess)
}

// LoadSession restores the persisted session. A missing record returns
// (nil, nil); a corrupted one returns an error so the caller can discard
// it and reinitialize.
func (db *DB) LoadSession() (*domain.Session, error) {
	var sess domain.Session
	ok, err := db.loadRecord(recordSession, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

// ClearSession removes the persisted session record.
func (db *DB) ClearSession() error {
	if _, err := db.conn.Exec(`DELETE FROM records WHERE name = ?`, recordSession); err != nil {
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

// SaveStats persists the cumulative statistics as one JSON record.
func (db *DB) SaveStats(stats *domain.Stats) error {
	return db.saveRecord(recordStats, stats)
}

// LoadStats restores the persisted statistics; (nil, nil) when absent.
func (db *DB) LoadStats() (*domain.Stats, error) {
	var stats domain.Stats
	ok, err := db.loadRecord(recordStats, &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

func (db *DB) saveRecord(name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", name, err)
	}
	if _, err := db.conn.Exec(`
		INSERT INTO records (name, body) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body
	`, name, string(body)); err != nil {
		return fmt.Errorf("failed to save %s record: %w", name, err)
	}
	return nil
}

func (db *DB) loadRecord(name string, v any) (bool, error) {
	var body string
	err := db.conn.QueryRow(`SELECT body FROM records WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s record: %w", name, err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return false, fmt.Errorf("failed to decode %s record: %w", name, err)
	}
	return true, nil
}

// QueuedPush is one pending remote write waiting for connectivity.
type QueuedPush struct {
	ID        int64
	CreatedAt time.Time
	Payload   []byte
}

// Enqueue appends a failed push payload to the durable retry queue.
func (db *DB) Enqueue(payload []byte) error {
	if _, err := db.conn.Exec(`
		INSERT INTO push_queue (created_at, payload) VALUES (?, ?)
	`, time.Now(), string(payload)); err != nil {
		return fmt.Errorf("failed to enqueue push payload: %w", err)
	}
	return nil
}

// Pending returns every queued push in FIFO order.
func (db *DB) Pending() ([]QueuedPush, error) {
	rows, err := db.conn.Query(`
		SELECT id, created_at, payload FROM push_queue ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read push queue: %w", err)
	}
	defer rows.Close()

	var pending []QueuedPush
	for rows.Next() {
		var (
			p       QueuedPush
			payload string
		)
		if err := rows.Scan(&p.ID, &p.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan push queue row: %w", err)
		}
		p.Payload = []byte(payload)
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push queue rows: %w", err)
	}
	return pending, nil
}

// Remove deletes a queued push after it has been delivered.
func (db *DB) Remove(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM push_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove push queue entry %d: %w", id, err)
	}
	return nil
}
