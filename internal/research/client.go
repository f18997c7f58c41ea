package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// Client enriches high-scoring entry signals with a one-paragraph market
// context note from an external research endpoint. Research is strictly
// best-effort: any failure produces an empty note, never a failed tick.
type Client struct {
	endpoint   string
	apiKey     string
	threshold  float64
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a research client, or nil when research is disabled
func NewClient(cfg config.ResearchConfig, logger zerolog.Logger) *Client {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil
	}
	timeout := cfg.GetTimeout()
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		threshold:  cfg.ScoreThreshold,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type researchRequest struct {
	Query string `json:"query"`
}

type researchResponse struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}

// Enrich fetches notes for entry signals at or above the score threshold.
// Exits never get research; they are not a judgment call.
func (c *Client) Enrich(ctx context.Context, scored []signal.ScoredSignal) map[string]string {
	notes := make(map[string]string)
	for _, ss := range scored {
		if ss.Signal.IsExit() || ss.TotalScore < c.threshold {
			continue
		}
		if _, done := notes[ss.Signal.Symbol]; done {
			continue
		}
		note, err := c.query(ctx, ss.Signal)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", ss.Signal.Symbol).Msg("Research lookup failed")
			continue
		}
		notes[ss.Signal.Symbol] = note
	}
	return notes
}

func (c *Client) query(ctx context.Context, sig signal.Signal) (string, error) {
	query := fmt.Sprintf(
		"In two sentences: any material news or events for %s in the last week that would argue against a %d-day %s breakout entry today?",
		sig.Symbol, sig.System, strings.ToLower(string(sig.Direction)))

	body, err := json.Marshal(researchRequest{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal research request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("research request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read research response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("research API status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed researchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse research response: %w", err)
	}
	return parsed.Content, nil
}
