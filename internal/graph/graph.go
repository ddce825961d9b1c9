// Package graph is a thin client for the Microsoft Graph OneNote API:
// OAuth token refresh, page listing with pagination, and page HTML
// retrieval. No scheduling logic lives here.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Config holds the OAuth application credentials and the user's refresh
// token. Access tokens are minted and renewed transparently by the
// oauth2 transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Client talks to Microsoft Graph with an auto-refreshing token.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Graph client whose transport refreshes the access
// token from the stored refresh token as needed.
func NewClient(ctx context.Context, cfg Config) *Client {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(cfg.TenantID),
		Scopes:       []string{"offline_access", "Notes.Read"},
	}
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	return &Client{
		http:    oauth2.NewClient(ctx, conf.TokenSource(ctx, token)),
		baseURL: defaultBaseURL,
	}
}

// Page is one OneNote page as listed by Graph.
type Page struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"lastModifiedDateTime"`
}

type pageListResponse struct {
	Value    []Page `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// ListPages returns every OneNote page in the user's notebooks,
// following @odata.nextLink pagination until exhausted.
func (c *Client) ListPages(ctx context.Context) ([]Page, error) {
	url := c.baseURL + "/me/onenote/pages?$select=id,title,lastModifiedDateTime"
	var pages []Page

	for url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building page list request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("listing pages: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("listing pages: unexpected status %s", resp.Status)
		}

		var body pageListResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding page list: %w", err)
		}
		resp.Body.Close()

		pages = append(pages, body.Value...)
		url = body.NextLink
	}
	return pages, nil
}

// PageContent fetches the HTML body of one page.
func (c *Client) PageContent(ctx context.Context, pageID string) (string, error) {
	url := fmt.Sprintf("%s/me/onenote/pages/%s/content", c.baseURL, pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building page content request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching page %s: unexpected status %s", pageID, resp.Status)
	}
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading page %s: %w", pageID, err)
	}
	return string(html), nil
}
