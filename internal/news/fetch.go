// Package news retrieves recent headlines for a symbol and scores their
// sentiment.
package news

import (
	"context"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Article is a single news item.
type Article struct {
	Time     time.Time
	Source   string
	Headline string
	Content  string
}

// Text is the headline followed by the body, the input to Score.
func (a Article) Text() string {
	if a.Content == "" {
		return a.Headline
	}
	return a.Headline + ". " + a.Content
}

// Fetcher returns articles about symbol published in [start, end].
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Article, error)
}

// NewsClient is the subset of *marketdata.Client used by AlpacaFetcher.
type NewsClient interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// AlpacaFetcher reads news from the Alpaca market-data API.
type AlpacaFetcher struct {
	client NewsClient
	limit  int
}

// NewAlpacaFetcher returns a Fetcher that requests at most limit articles per
// call. A non-positive limit means 50.
func NewAlpacaFetcher(client NewsClient, limit int) *AlpacaFetcher {
	if limit <= 0 {
		limit = 50
	}
	return &AlpacaFetcher{client: client, limit: limit}
}

// Fetch implements Fetcher.
func (f *AlpacaFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := f.client.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         f.limit,
		IncludeContent:     true,
		ExcludeContentless: false,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(items))
	for _, a := range items {
		body := a.Summary
		if a.Content != "" {
			body = ExtractSymbolContent(a.Content, symbol)
		}
		articles = append(articles, Article{
			Time:     a.CreatedAt,
			Source:   "alpaca",
			Headline: StripHTML(a.Headline),
			Content:  body,
		})
	}
	return articles, nil
}

var (
	htmlTagRe  = regexp.MustCompile(`<[^>]*>`)
	htmlParaRe = regexp.MustCompile(`(?i)</?(p|br|div|li|h[1-6])\b[^>]*>`)
)

// StripHTML removes tags, unescapes entities and collapses whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// ExtractSymbolContent keeps the paragraphs of rawHTML that mention symbol,
// or the whole stripped text when none do.
func ExtractSymbolContent(rawHTML, symbol string) string {
	upper := strings.ToUpper(symbol)
	var matched []string
	for _, chunk := range htmlParaRe.Split(rawHTML, -1) {
		plain := StripHTML(chunk)
		if plain != "" && strings.Contains(strings.ToUpper(plain), upper) {
			matched = append(matched, plain)
		}
	}
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return StripHTML(rawHTML)
}
