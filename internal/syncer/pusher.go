package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
)

// HTTPPusher delivers card-store snapshots to a remote sync backend as
// one JSON document per push.
type HTTPPusher struct {
	url    string
	client *http.Client
}

// NewHTTPPusher creates a pusher for the given endpoint.
func NewHTTPPusher(url string) *HTTPPusher {
	return &HTTPPusher{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// PushDecks implements Pusher.
func (p *HTTPPusher) PushDecks(ctx context.Context, decks map[string]*domain.Deck) error {
	body, err := json.Marshal(decks)
	if err != nil {
		return fmt.Errorf("encoding deck snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushing decks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pushing decks: unexpected status %s", resp.Status)
	}
	return nil
}
