package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/flyercal/llm"
	"github.com/rs/zerolog"
)

const (
	webpageQADescription = "web page question answering, useful when you need extract and/or fact-check event data"

	// PageLoadError is returned to the model when a page cannot be read.
	PageLoadError = "Error loading page"

	// DefaultMaxContextTokens bounds the page text sent in one QA call.
	DefaultMaxContextTokens = 12000
)

const qaSystemPrompt = `You answer questions using only the provided extracts of a web page.
If the extracts do not contain the answer, say that you don't know. Do not make up an answer.
Be concise and quote dates, times, prices and addresses exactly as they appear.`

const combineSystemPrompt = `You merge partial answers about one web page into a single final answer.
Drop partial answers that say they don't know unless all of them do. Be concise.`

// WebpageQAConfig configures the webpageqa tool.
type WebpageQAConfig struct {
	Model            string
	MaxContextTokens int
}

// WebpageQATool is the "webpageqa" tool. It loads a page, reduces it to
// text and asks a language model the given question about it.
type WebpageQATool struct {
	fetcher  Fetcher
	splitter *Splitter
	client   llm.Client
	cfg      WebpageQAConfig
	logger   zerolog.Logger
}

// NewWebpageQATool creates the webpageqa tool.
func NewWebpageQATool(fetcher Fetcher, splitter *Splitter, client llm.Client, cfg WebpageQAConfig, logger zerolog.Logger) *WebpageQATool {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	return &WebpageQATool{
		fetcher:  fetcher,
		splitter: splitter,
		client:   client,
		cfg:      cfg,
		logger:   logger.With().Str("component", "webpageqa").Logger(),
	}
}

func (t *WebpageQATool) Name() string        { return "webpageqa" }
func (t *WebpageQATool) Params() []string    { return []string{"url", "query_context", "query"} }
func (t *WebpageQATool) Description() string { return webpageQADescription }

func (t *WebpageQATool) Run(ctx context.Context, args map[string]string) (string, error) {
	url, err := required(t.Name(), args, "url")
	if err != nil {
		return "", err
	}
	query, err := required(t.Name(), args, "query")
	if err != nil {
		return "", err
	}
	question := Question(query, args["query_context"])

	page, err := t.fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, ErrFatal) || ctx.Err() != nil {
			return "", err
		}
		t.logger.Warn().Err(err).Str("url", url).Msg("Failed to load page")
		return PageLoadError, nil
	}

	text := Scrape(page.Body)
	if text == "" {
		return PageLoadError, nil
	}
	chunks := t.splitter.Split(text)
	groups := t.group(chunks)
	t.logger.Debug().Str("url", url).Int("chunks", len(chunks)).Int("groups", len(groups)).Msg("Answering question")

	if len(groups) == 1 {
		return t.ask(ctx, qaSystemPrompt, qaPrompt(page, groups[0], question))
	}

	partials := make([]string, 0, len(groups))
	for _, g := range groups {
		answer, err := t.ask(ctx, qaSystemPrompt, qaPrompt(page, g, question))
		if err != nil {
			return "", err
		}
		partials = append(partials, answer)
	}
	return t.ask(ctx, combineSystemPrompt, combinePrompt(partials, question))
}

// Question builds the QA question, scoping it to the event being researched.
func Question(query, queryContext string) string {
	return query + " \nOnly consider information related to this event: " + queryContext
}

// group packs consecutive chunks into batches that fit the context budget.
func (t *WebpageQATool) group(chunks []string) [][]string {
	var (
		groups  [][]string
		current []string
		total   int
	)
	for _, c := range chunks {
		n := len(t.splitter.Tokenizer.Encode(c))
		if total+n > t.cfg.MaxContextTokens && len(current) > 0 {
			groups = append(groups, current)
			current, total = nil, 0
		}
		current = append(current, c)
		total += n
	}
	if len(current) > 0 || len(groups) == 0 {
		groups = append(groups, current)
	}
	return groups
}

func (t *WebpageQATool) ask(ctx context.Context, system, prompt string) (string, error) {
	resp, err := t.client.Synchronous(ctx, &llm.Request{
		Model:     t.cfg.Model,
		System:    system,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		MaxTokens: 1024,
	})
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && llmErr.Type == llm.ErrorTypeInvalidRequest {
			return "", Fatal(t.Name(), err)
		}
		return "", Recoverable(t.Name(), err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func qaPrompt(page *Page, chunks []string, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SOURCE: %s\nTITLE: %s\n\n", page.URL, page.Title)
	for i, c := range chunks {
		fmt.Fprintf(&b, "EXTRACT %d:\n%s\n\n", i+1, c)
	}
	fmt.Fprintf(&b, "QUESTION: %s\n", question)
	return b.String()
}

func combinePrompt(partials []string, question string) string {
	var b strings.Builder
	for i, p := range partials {
		fmt.Fprintf(&b, "PARTIAL ANSWER %d:\n%s\n\n", i+1, p)
	}
	fmt.Fprintf(&b, "QUESTION: %s\n", question)
	return b.String()
}
