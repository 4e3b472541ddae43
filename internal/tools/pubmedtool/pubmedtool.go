// Package pubmedtool exposes PubMed literature lookups as agent tools.
//
// Two tools are exported via [Tools]:
//   - "get_medical_articles" searches by a free-text symptom description.
//   - "search_by_pmid" fetches one article by its PubMed identifier.
package pubmedtool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/curaai/internal/pubmed"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/types"
)

const (
	// SearchName is the identifier of the search tool.
	SearchName = "get_medical_articles"

	// FetchName is the identifier of the lookup tool.
	FetchName = "search_by_pmid"

	// NoResults is returned when a search matched nothing. It is a normal
	// result, not a failure.
	NoResults = "No relevant articles found."

	// SearchSentinel is shown to the model when the search fails.
	SearchSentinel = "PUBMED TOOL ERROR"

	// FetchSentinel is shown to the model when the lookup fails.
	FetchSentinel = "SEARCH BY PMID TOOL ERROR"

	defaultTimeout = 20 * time.Second
)

// Client is the subset of *pubmed.Client the tools use.
type Client interface {
	Search(ctx context.Context, term string) ([]pubmed.Article, error)
	Fetch(ctx context.Context, pmid string) (string, error)
}

var _ Client = (*pubmed.Client)(nil)

// Tools returns both literature tools bound to c.
func Tools(c Client) []toolbox.Tool {
	return []toolbox.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        SearchName,
				Description: "Fetch medical articles related to symptoms from PubMed.",
				Parameters:  toolbox.StringParam("symptoms", "The patient's symptoms, e.g. \"persistent headache and dizziness\"."),
			},
			Handler: searchHandler(c),
			Timeout: defaultTimeout,
		},
		{
			Definition: types.ToolDefinition{
				Name:        FetchName,
				Description: "Fetch detailed information about a medical article using its PubMed ID (PMID).",
				Parameters:  toolbox.StringParam("pmid", "The PubMed identifier, digits only."),
			},
			Handler: fetchHandler(c),
			Timeout: defaultTimeout,
		},
	}
}

func searchHandler(c Client) toolbox.Handler {
	return func(ctx context.Context, raw string) toolbox.Result {
		a, err := toolbox.DecodeArgs[struct {
			Symptoms string `json:"symptoms"`
		}](raw)
		if err != nil {
			return toolbox.Fail(SearchSentinel, err)
		}
		articles, err := c.Search(ctx, a.Symptoms)
		if err != nil {
			return toolbox.Fail(SearchSentinel, err)
		}
		if len(articles) == 0 {
			return toolbox.OK(NoResults)
		}
		return toolbox.OK(Format(articles))
	}
}

func fetchHandler(c Client) toolbox.Handler {
	return func(ctx context.Context, raw string) toolbox.Result {
		a, err := toolbox.DecodeArgs[struct {
			PMID string `json:"pmid"`
		}](raw)
		if err != nil {
			return toolbox.Fail(FetchSentinel, err)
		}
		body, err := c.Fetch(ctx, a.PMID)
		if err != nil {
			return toolbox.Fail(FetchSentinel, err)
		}
		return toolbox.OK(body)
	}
}

// Format renders articles as blank-line separated records.
func Format(articles []pubmed.Article) string {
	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "PMID: %s\nTitle: %s\nJournal: %s\nDate: %s", a.PMID, a.Title, a.Journal, a.PubDate)
	}
	return b.String()
}
