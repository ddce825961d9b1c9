// Package cardgen turns page HTML into flashcards through one prompt
// call to a chat-completions endpoint. The model is asked for a JSON
// array; extraction tolerates the prose models like to wrap around it.
package cardgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/colmryan/notedeck/internal/cardid"
	"github.com/colmryan/notedeck/internal/domain"
)

const prompt = `You are a flashcard author. Read the following notes and produce
question/answer flashcards covering every distinct fact in them.
Respond with ONLY a JSON array in this exact shape:
[{"question": "...", "answer": "...", "tags": ["..."]}]
Keep questions self-contained and answers short. Notes follow:

`

// Generator calls an OpenAI-compatible chat-completions API.
type Generator struct {
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
}

// New creates a generator for the given endpoint and model.
func New(endpoint, apiKey, model string) *Generator {
	return &Generator{
		http:     &http.Client{},
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for flashcards covering the page and parses
// its reply. Cards with an empty question are dropped; surviving cards
// get stable ids derived from their question text.
func (g *Generator) Generate(ctx context.Context, pageTitle, html string) ([]domain.IncomingCard, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt + "Title: " + pageTitle + "\n\n" + html},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation endpoint returned %s", resp.Status)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("generation response had no choices")
	}

	return ExtractCards(chat.Choices[0].Message.Content)
}

type generatedCard struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Tags     []string `json:"tags"`
}

// ExtractCards pulls the first JSON array out of model output and turns
// it into incoming cards. Models often wrap the array in prose or code
// fences; everything outside the outermost brackets is ignored.
func ExtractCards(text string) ([]domain.IncomingCard, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON array found in model output")
	}

	var generated []generatedCard
	if err := json.Unmarshal([]byte(text[start:end+1]), &generated); err != nil {
		return nil, fmt.Errorf("parsing model output: %w", err)
	}

	cards := make([]domain.IncomingCard, 0, len(generated))
	for _, gc := range generated {
		if strings.TrimSpace(gc.Question) == "" {
			continue
		}
		cards = append(cards, domain.IncomingCard{
			ID:       cardid.FromQuestion(gc.Question),
			Question: gc.Question,
			Answer:   gc.Answer,
			Tags:     gc.Tags,
		})
	}
	return cards, nil
}
