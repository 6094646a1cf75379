package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultSerperURL is the Serper web search endpoint.
const DefaultSerperURL = "https://google.serper.dev/search"

// NotFound is the sentinel text tools return when nothing matched.
const NotFound = "NOT FOUND"

// SerperConfig configures a SerperClient.
type SerperConfig struct {
	APIKey  string
	BaseURL string
	// GL and HL are the country and interface language sent with every query.
	GL string
	HL string
}

// SerperClient queries the Serper Google Search API.
type SerperClient struct {
	cfg    SerperConfig
	http   *http.Client
	logger zerolog.Logger
}

// SerperResponse is the subset of a Serper search response the tools use.
type SerperResponse struct {
	Organic           []SerperOrganic        `json:"organic"`
	KnowledgeGraph    map[string]interface{} `json:"knowledgeGraph,omitempty"`
	AnswerBox         map[string]interface{} `json:"answerBox,omitempty"`
	SearchInformation *struct {
		DidYouMean string `json:"didYouMean"`
	} `json:"searchInformation,omitempty"`
}

// SerperOrganic is one organic search hit.
type SerperOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// DidYouMean returns the spelling suggestion, if any.
func (r *SerperResponse) DidYouMean() string {
	if r == nil || r.SearchInformation == nil {
		return ""
	}
	return r.SearchInformation.DidYouMean
}

// NewSerperClient creates a Serper client. httpClient may be nil.
func NewSerperClient(cfg SerperConfig, httpClient *http.Client, logger zerolog.Logger) *SerperClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSerperURL
	}
	return &SerperClient{
		cfg:    cfg,
		http:   orDefaultClient(httpClient),
		logger: logger.With().Str("component", "serper").Logger(),
	}
}

// Search runs one query. tool names the calling tool in returned errors.
func (c *SerperClient) Search(ctx context.Context, tool, query string) (*SerperResponse, error) {
	if c.cfg.APIKey == "" {
		return nil, Fatal(tool, errors.New("serper API key not configured"))
	}

	payload := map[string]string{"q": query}
	if c.cfg.GL != "" {
		payload["gl"] = c.cfg.GL
	}
	if c.cfg.HL != "" {
		payload["hl"] = c.cfg.HL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Fatal(tool, fmt.Errorf("failed to encode query: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, Fatal(tool, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("query", query).Msg("Searching")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Recoverable(tool, fmt.Errorf("search request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Recoverable(tool, fmt.Errorf("failed to read search response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(tool, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out SerperResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, Recoverable(tool, fmt.Errorf("failed to decode search response: %w", err))
	}
	return &out, nil
}
