package tools

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

const (
	gmapsDescription = "useful for fact-checking on event locations"
	// DefaultWhereIsPrefix is prepended to location queries.
	DefaultWhereIsPrefix = "where is"
)

// LocationTool is the "gmaps" tool. It asks web search where a place is,
// follows one spelling suggestion and falls back to the geocoder.
type LocationTool struct {
	search   *SerperClient
	geocoder *Geocoder
	prefix   string
	logger   zerolog.Logger
}

// NewLocationTool creates the gmaps tool. geocoder may be nil.
func NewLocationTool(search *SerperClient, geocoder *Geocoder, prefix string, logger zerolog.Logger) *LocationTool {
	if prefix == "" {
		prefix = DefaultWhereIsPrefix
	}
	return &LocationTool{
		search:   search,
		geocoder: geocoder,
		prefix:   prefix,
		logger:   logger.With().Str("component", "gmaps").Logger(),
	}
}

func (t *LocationTool) Name() string        { return "gmaps" }
func (t *LocationTool) Params() []string    { return []string{"location"} }
func (t *LocationTool) Description() string { return gmapsDescription }

func (t *LocationTool) Run(ctx context.Context, args map[string]string) (string, error) {
	location, err := required(t.Name(), args, "location")
	if err != nil {
		return "", err
	}

	res, err := t.search.Search(ctx, t.Name(), t.prefix+" "+location)
	if err != nil {
		return "", err
	}
	if suggestion := res.DidYouMean(); suggestion != "" {
		t.logger.Debug().Str("location", location).Str("suggestion", suggestion).Msg("Following search suggestion")
		if res, err = t.search.Search(ctx, t.Name(), suggestion); err != nil {
			return "", err
		}
	}

	if address := addressOf(res); address != nil {
		return marshalResult(map[string]interface{}{"address": address})
	}
	if t.geocoder == nil {
		return marshalResult(NotFound)
	}

	place, err := t.geocoder.WhereIs(ctx, location)
	if err != nil {
		return "", err
	}
	if place == NotFound {
		return marshalResult(NotFound)
	}
	return marshalResult([]SearchResult{{Title: location, Description: place}})
}

// addressOf prefers a direct answer over the knowledge graph card.
func addressOf(res *SerperResponse) interface{} {
	if res.AnswerBox != nil {
		if answer, ok := res.AnswerBox["answer"].(string); ok && strings.TrimSpace(answer) != "" {
			return answer
		}
	}
	if len(res.KnowledgeGraph) > 0 {
		return res.KnowledgeGraph
	}
	return nil
}
