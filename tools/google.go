package tools

import (
	"context"
	"encoding/json"
)

const googleDescription = "useful for fact-checking or when you need to find information on events. you should use targeted questions"

// SearchResult is one entry of the google tool output.
type SearchResult struct {
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description"`
}

// NewGoogleTool returns the "google" tool: a web search that reports the
// topK organic results.
func NewGoogleTool(client *SerperClient, topK int) Tool {
	if topK <= 0 {
		topK = 3
	}
	return NewFunc("google", googleDescription, []string{"query"}, func(ctx context.Context, args map[string]string) (string, error) {
		query, err := required("google", args, "query")
		if err != nil {
			return "", err
		}
		res, err := client.Search(ctx, "google", query)
		if err != nil {
			return "", err
		}
		return marshalResult(organicResults(res, topK))
	})
}

func organicResults(res *SerperResponse, topK int) []SearchResult {
	if len(res.Organic) == 0 {
		return []SearchResult{{Description: NotFound}}
	}
	n := len(res.Organic)
	if n > topK {
		n = topK
	}
	out := make([]SearchResult, 0, n)
	for _, o := range res.Organic[:n] {
		out = append(out, SearchResult{Title: o.Title, URL: o.Link, Description: o.Snippet})
	}
	return out
}

func marshalResult(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
