// Package pubmed is a small client for the NCBI E-utilities endpoints used by
// the literature tools: esearch + esummary to find articles for a free-text
// symptom description and efetch to retrieve one article by PMID.
//
// Calls go through a circuit breaker so that an unreachable NCBI does not
// stall every conversation turn for the full HTTP timeout.
package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrWong99/curaai/internal/resilience"
)

// DefaultBaseURL is the public E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

var (
	// ErrInvalidPMID is returned for identifiers that are not all digits.
	ErrInvalidPMID = errors.New("pubmed: invalid PMID")

	// ErrEmptyQuery is returned when searching for blank text.
	ErrEmptyQuery = errors.New("pubmed: empty search term")
)

// Article is the summary of one search hit.
type Article struct {
	PMID    string
	Title   string
	Journal string
	PubDate string
	Authors []string
}

// Client talks to E-utilities. It is safe for concurrent use.
type Client struct {
	http       *resty.Client
	breaker    *resilience.CircuitBreaker
	apiKey     string
	maxResults int
}

type config struct {
	baseURL    string
	apiKey     string
	maxResults int
	timeout    time.Duration
	retries    int
	breaker    resilience.CircuitBreakerConfig
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the E-utilities base URL.
func WithBaseURL(u string) Option { return func(c *config) { c.baseURL = u } }

// WithAPIKey sets the NCBI API key, which raises the rate limit from 3 to 10
// requests per second.
func WithAPIKey(k string) Option { return func(c *config) { c.apiKey = k } }

// WithMaxResults caps the number of articles returned by Search. Default 5.
func WithMaxResults(n int) Option { return func(c *config) { c.maxResults = n } }

// WithTimeout sets the per-request HTTP timeout. Default 10s.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithRetries sets how often a failed request is retried. Default 1.
func WithRetries(n int) Option { return func(c *config) { c.retries = n } }

// WithCircuitBreaker tunes the breaker guarding all calls.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *config) { c.breaker = cfg }
}

// New creates a Client.
func New(opts ...Option) *Client {
	cfg := &config{
		baseURL:    DefaultBaseURL,
		maxResults: 5,
		timeout:    10 * time.Second,
		retries:    1,
		breaker:    resilience.CircuitBreakerConfig{Name: "pubmed", MaxFailures: 3, ResetTimeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.maxResults <= 0 {
		cfg.maxResults = 5
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.baseURL, "/")).
		SetTimeout(cfg.timeout).
		SetRetryCount(cfg.retries).
		SetRetryWaitTime(250*time.Millisecond).
		SetHeader("User-Agent", "curaai/1.0")

	return &Client{
		http:       httpClient,
		breaker:    resilience.NewCircuitBreaker(cfg.breaker),
		apiKey:     cfg.apiKey,
		maxResults: cfg.maxResults,
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryDoc struct {
	UID             string `json:"uid"`
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	Source          string `json:"source"`
	PubDate         string `json:"pubdate"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// Search finds articles matching term, most relevant first. An empty slice
// with a nil error means nothing matched.
func (c *Client) Search(ctx context.Context, term string) ([]Article, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyQuery
	}

	var ids []string
	err := c.breaker.Execute(func() error {
		var out esearchResponse
		resp, err := c.request(ctx).
			SetQueryParams(map[string]string{
				"db":      "pubmed",
				"term":    term,
				"retmode": "json",
				"retmax":  strconv.Itoa(c.maxResults),
				"sort":    "relevance",
			}).
			SetResult(&out).
			Get("/esearch.fcgi")
		if err := checkResponse("esearch", resp, err); err != nil {
			return err
		}
		ids = out.Result.IDList
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Article{}, nil
	}
	return c.summaries(ctx, ids)
}

func (c *Client) summaries(ctx context.Context, ids []string) ([]Article, error) {
	var out esummaryResponse
	err := c.breaker.Execute(func() error {
		resp, err := c.request(ctx).
			SetQueryParams(map[string]string{
				"db":      "pubmed",
				"id":      strings.Join(ids, ","),
				"retmode": "json",
			}).
			SetResult(&out).
			Get("/esummary.fcgi")
		return checkResponse("esummary", resp, err)
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(ids))
	for _, id := range ids {
		raw, ok := out.Result[id]
		if !ok {
			continue
		}
		var doc esummaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("pubmed: decode summary %s: %w", id, err)
		}
		a := Article{
			PMID:    id,
			Title:   strings.TrimSpace(doc.Title),
			Journal: doc.FullJournalName,
			PubDate: doc.PubDate,
		}
		if a.Journal == "" {
			a.Journal = doc.Source
		}
		for _, au := range doc.Authors {
			a.Authors = append(a.Authors, au.Name)
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// Fetch returns the efetch response body for one PMID unchanged.
func (c *Client) Fetch(ctx context.Context, pmid string) (string, error) {
	pmid = strings.TrimSpace(pmid)
	if !validPMID(pmid) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPMID, pmid)
	}

	var body string
	err := c.breaker.Execute(func() error {
		resp, err := c.request(ctx).
			SetQueryParams(map[string]string{
				"db":      "pubmed",
				"id":      pmid,
				"retmode": "json",
				"rettype": "abstract",
			}).
			Get("/efetch.fcgi")
		if err := checkResponse("efetch", resp, err); err != nil {
			return err
		}
		body = resp.String()
		return nil
	})
	return body, err
}

// BreakerState exposes the circuit breaker state for health checks.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

func (c *Client) request(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).SetQueryParam("tool", "curaai")
	if c.apiKey != "" {
		r.SetQueryParam("api_key", c.apiKey)
	}
	return r
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("pubmed: %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pubmed: %s: unexpected status %d", op, resp.StatusCode())
	}
	return nil
}

func validPMID(s string) bool {
	if s == "" || len(s) > 12 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
