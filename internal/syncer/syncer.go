// Package syncer coordinates traffic between the remote deck source and
// the local card store: fetch-and-merge on sync, best-effort pushes
// after every local commit, and a durable FIFO retry queue for pushes
// that fail while offline.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/colmryan/notedeck/internal/domain"
	"github.com/colmryan/notedeck/internal/storage"
	"github.com/colmryan/notedeck/internal/store"
)

// Fetcher retrieves fresh deck payloads from the remote source.
type Fetcher interface {
	FetchDecks(ctx context.Context) (map[string]domain.IncomingDeck, error)
}

// Pusher delivers a card-store snapshot to the remote store.
type Pusher interface {
	PushDecks(ctx context.Context, decks map[string]*domain.Deck) error
}

// Queue is the durable retry queue for failed pushes, backed by the
// sqlite push_queue table.
type Queue interface {
	Enqueue(payload []byte) error
	Pending() ([]storage.QueuedPush, error)
	Remove(id int64) error
}

// Merger applies fetched decks to the card store. Implemented by the
// session manager, which refuses merges while a session is active.
type Merger interface {
	MergeDecks(incoming map[string]domain.IncomingDeck) (store.MergeResult, error)
}

// Coordinator owns the sync and push paths.
type Coordinator struct {
	fetcher Fetcher
	pusher  Pusher
	queue   Queue
	merger  Merger
}

// New creates a coordinator. pusher may be nil for local-only operation;
// pushes then become no-ops.
func New(fetcher Fetcher, pusher Pusher, queue Queue, merger Merger) *Coordinator {
	return &Coordinator{fetcher: fetcher, pusher: pusher, queue: queue, merger: merger}
}

// Sync fetches the remote decks and merges them into the store. A fetch
// failure is transient: the caller keeps serving last-known-good local
// data and surfaces a non-fatal notification.
func (c *Coordinator) Sync(ctx context.Context) (store.MergeResult, error) {
	if c.fetcher == nil {
		return store.MergeResult{}, errors.New("syncer: no deck source configured")
	}
	slog.Info("Starting sync")
	incoming, err := c.fetcher.FetchDecks(ctx)
	if err != nil {
		return store.MergeResult{}, fmt.Errorf("fetching decks: %w", err)
	}

	res, err := c.merger.MergeDecks(incoming)
	if err != nil {
		return store.MergeResult{}, err
	}
	slog.Info("Sync complete",
		"decks_fetched", len(incoming),
		"decks_added", res.DecksAdded,
		"cards_added", res.CardsAdded,
		"cards_matched", res.CardsMatched,
	)
	return res, nil
}

// Push delivers a store snapshot to the remote, queueing it durably when
// delivery fails. Older queued payloads are flushed first so the remote
// always sees writes in commit order. Push never fails the caller: local
// state is already committed, and the queue guarantees eventual
// consistency.
func (c *Coordinator) Push(decks map[string]*domain.Deck) {
	if c.pusher == nil {
		return
	}
	payload, err := json.Marshal(decks)
	if err != nil {
		slog.Error("Failed to encode push payload", "error", err)
		return
	}

	if err := c.Flush(context.Background()); err != nil {
		// Still offline: keep ordering by queueing behind the backlog.
		if qErr := c.queue.Enqueue(payload); qErr != nil {
			slog.Error("Failed to enqueue push payload", "error", qErr)
		}
		return
	}

	if err := c.pusher.PushDecks(context.Background(), decks); err != nil {
		slog.Warn("Remote push failed, queueing for retry", "error", err)
		if qErr := c.queue.Enqueue(payload); qErr != nil {
			slog.Error("Failed to enqueue push payload", "error", qErr)
		}
	}
}

// Flush retries queued pushes in FIFO order. On the first failure it
// stops and leaves the unsent suffix intact: no partial loss, no
// reordering.
func (c *Coordinator) Flush(ctx context.Context) error {
	if c.pusher == nil {
		return nil
	}
	pending, err := c.queue.Pending()
	if err != nil {
		return fmt.Errorf("reading push queue: %w", err)
	}

	for _, entry := range pending {
		var decks map[string]*domain.Deck
		if err := json.Unmarshal(entry.Payload, &decks); err != nil {
			// A corrupt payload can never succeed; drop it and move on.
			slog.Warn("Dropping corrupt queued push", "id", entry.ID, "error", err)
			if rmErr := c.queue.Remove(entry.ID); rmErr != nil {
				return fmt.Errorf("removing corrupt queue entry %d: %w", entry.ID, rmErr)
			}
			continue
		}
		if err := c.pusher.PushDecks(ctx, decks); err != nil {
			return fmt.Errorf("flushing queued push %d: %w", entry.ID, err)
		}
		if err := c.queue.Remove(entry.ID); err != nil {
			return fmt.Errorf("removing delivered queue entry %d: %w", entry.ID, err)
		}
	}
	return nil
}

// PendingCount reports how many pushes are waiting for connectivity.
func (c *Coordinator) PendingCount() (int, error) {
	pending, err := c.queue.Pending()
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}
