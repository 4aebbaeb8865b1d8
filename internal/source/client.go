package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chiraitori/HoYo-Code-Sender-Discord-Bot/internal/game"
)

const (
	// DefaultBaseURL is the public hoyo-codes aggregator
	DefaultBaseURL = "https://hoyo-codes.seria.moe"

	// StatusOK marks a code as currently redeemable at the source
	StatusOK = "OK"

	fetchTimeout = 12 * time.Second
)

// Candidate is a single code entry as reported by the source
type Candidate struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Rewards string `json:"rewards"`
}

// Active reports whether the source considers the code redeemable
func (c Candidate) Active() bool {
	return c.Status == StatusOK
}

type codesResponse struct {
	Codes []Candidate `json:"codes"`
}

// Result is the outcome of fetching one game. Err is set when the
// source was unavailable for that game; an empty Codes slice with a
// nil Err means the game genuinely has no codes.
type Result struct {
	Game  game.ID
	Codes []Candidate
	Err   error
}

// Failed reports whether this game's source was unavailable this cycle
func (r Result) Failed() bool {
	return r.Err != nil
}

// Client fetches redemption codes from the source API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new source API client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// Fetch retrieves the current code list for a single game. Timeouts,
// non-2xx responses and malformed bodies are all returned as errors so
// callers can tell an unavailable source apart from an empty code list.
func (c *Client) Fetch(ctx context.Context, g game.ID) ([]Candidate, error) {
	url := fmt.Sprintf("%s/codes?game=%s", c.baseURL, g)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var decoded codesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return decoded.Codes, nil
}

// FetchAll fetches every supported game concurrently. A failed game is
// reported through its Result's Err and never affects the other games.
func (c *Client) FetchAll(ctx context.Context) map[game.ID]Result {
	games := game.All()
	results := make([]Result, len(games))

	var g errgroup.Group
	for i, id := range games {
		i, id := i, id
		g.Go(func() error {
			codes, err := c.Fetch(ctx, id)
			results[i] = Result{Game: id, Codes: codes, Err: err}
			return nil
		})
	}
	// Goroutines always return nil; per-game failures live in Results
	_ = g.Wait()

	out := make(map[game.ID]Result, len(results))
	for _, r := range results {
		out[r.Game] = r
	}
	return out
}
