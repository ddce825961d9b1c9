package graph

import (
	"context"
	"log/slog"

	"github.com/colmryan/notedeck/internal/domain"
)

// PageLister is the slice of Client the deck source needs; split out so
// tests can stub Graph.
type PageLister interface {
	ListPages(ctx context.Context) ([]Page, error)
	PageContent(ctx context.Context, pageID string) (string, error)
}

// CardGenerator converts one page's HTML into flashcards.
type CardGenerator interface {
	Generate(ctx context.Context, pageTitle, html string) ([]domain.IncomingCard, error)
}

// DeckSource turns OneNote pages into incoming decks: one deck per page,
// cards generated from the page HTML. It implements syncer.Fetcher.
type DeckSource struct {
	pages PageLister
	gen   CardGenerator
}

// NewDeckSource wires a page lister to a card generator.
func NewDeckSource(pages PageLister, gen CardGenerator) *DeckSource {
	return &DeckSource{pages: pages, gen: gen}
}

// FetchDecks lists every page and generates cards for each. A failure on
// one page skips that page rather than aborting the whole fetch, so a
// single bad page never blocks a sync.
func (s *DeckSource) FetchDecks(ctx context.Context) (map[string]domain.IncomingDeck, error) {
	pages, err := s.pages.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	decks := make(map[string]domain.IncomingDeck, len(pages))
	for _, page := range pages {
		html, err := s.pages.PageContent(ctx, page.ID)
		if err != nil {
			slog.Warn("Skipping page, content fetch failed", "page_id", page.ID, "error", err)
			continue
		}
		cards, err := s.gen.Generate(ctx, page.Title, html)
		if err != nil {
			slog.Warn("Skipping page, card generation failed", "page_id", page.ID, "error", err)
			continue
		}
		decks[page.ID] = domain.IncomingDeck{
			PageTitle:   page.Title,
			LastUpdated: page.LastModified,
			Cards:       cards,
		}
	}
	return decks, nil
}
