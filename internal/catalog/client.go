package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cardcat/internal/card"
	"cardcat/internal/logging"
)

// MaxCollectionSize is the identifier limit of one collection request.
const MaxCollectionSize = 75

// Identifier names one card in a collection request.
type Identifier struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name,omitempty"`
	Set             string `json:"set,omitempty"`
	CollectorNumber string `json:"collector_number,omitempty"`
}

// IdentifierFor picks the most specific identifier form for q.
func IdentifierFor(q card.Query) Identifier {
	q = q.Normalize()
	switch {
	case q.HasPrinting():
		return Identifier{Set: q.Set, CollectorNumber: q.Number}
	case q.Set != "":
		return Identifier{Name: q.Name, Set: q.Set}
	default:
		return Identifier{Name: q.Name}
	}
}

// CollectionResult is the decoded collection response.
type CollectionResult struct {
	Data     []card.Record
	NotFound []Identifier
}

// SearchOptions tunes a search request.
type SearchOptions struct {
	Unique              string
	Order               string
	Dir                 string
	IncludeMultilingual bool
}

// PrintsNewestFirst lists every printing, newest release first.
var PrintsNewestFirst = SearchOptions{Unique: "prints", Order: "released", Dir: "desc"}

// Client exposes the catalog endpoints.
type Client struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewClient wraps fetcher.
func NewClient(fetcher *Fetcher, logger *slog.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "catalog"),
	}
}

type collectionRequest struct {
	Identifiers []Identifier `json:"identifiers"`
}

type collectionResponse struct {
	Data     []card.Record `json:"data"`
	NotFound []Identifier  `json:"not_found"`
}

// Collection looks up to MaxCollectionSize identifiers in one request.
func (c *Client) Collection(ctx context.Context, ids []Identifier) (CollectionResult, error) {
	if len(ids) == 0 {
		return CollectionResult{}, nil
	}
	if len(ids) > MaxCollectionSize {
		return CollectionResult{}, fmt.Errorf("collection request: %d identifiers exceeds limit of %d", len(ids), MaxCollectionSize)
	}
	resp, err := c.fetcher.Do(ctx, Request{
		Lane:   LaneBulk,
		Method: http.MethodPost,
		Path:   "/cards/collection",
		Body:   collectionRequest{Identifiers: ids},
	}, DefaultPolicy)
	if err != nil {
		return CollectionResult{}, fmt.Errorf("collection request: %w", err)
	}
	var decoded collectionResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return CollectionResult{}, fmt.Errorf("decode collection response: %w", err)
	}
	return CollectionResult{Data: ingest(decoded.Data), NotFound: decoded.NotFound}, nil
}

func (o SearchOptions) params(query string) map[string]string {
	params := map[string]string{"q": query}
	if o.Unique != "" {
		params["unique"] = o.Unique
	}
	if o.Order != "" {
		params["order"] = o.Order
	}
	if o.Dir != "" {
		params["dir"] = o.Dir
	}
	if o.IncludeMultilingual {
		params["include_multilingual"] = "true"
	}
	return params
}

// Search returns the first page of results. No matches is an empty page.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (Page[card.Record], error) {
	resp, err := c.fetcher.Do(ctx, Request{
		Lane:  LaneSearch,
		Path:  "/cards/search",
		Query: opts.params(query),
	}, DefaultPolicy)
	if err != nil {
		if IsNotFound(err) {
			return Page[card.Record]{Data: []card.Record{}}, nil
		}
		return Page[card.Record]{}, fmt.Errorf("search %q: %w", query, err)
	}
	var page Page[card.Record]
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return Page[card.Record]{}, fmt.Errorf("decode search %q: %w", query, err)
	}
	page.Data = ingest(page.Data)
	return page, nil
}

// SearchAll walks every page of a search.
func (c *Client) SearchAll(ctx context.Context, query string, opts SearchOptions) ([]card.Record, error) {
	recs, err := CollectPages[card.Record](ctx, c.fetcher, Request{
		Lane:  LaneSearch,
		Path:  "/cards/search",
		Query: opts.params(query),
	}, DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return ingest(recs), nil
}

// Printing fetches the default printing at set and collector number.
func (c *Client) Printing(ctx context.Context, set, number string) (card.Record, error) {
	return c.getRecord(ctx, "/cards/"+url.PathEscape(strings.ToLower(set))+"/"+url.PathEscape(strings.ToLower(number)), nil)
}

// LocalizedPrinting fetches the lang printing at set and collector number.
func (c *Client) LocalizedPrinting(ctx context.Context, set, number, lang string) (card.Record, error) {
	path := "/cards/" + url.PathEscape(strings.ToLower(set)) + "/" + url.PathEscape(strings.ToLower(number)) +
		"/" + url.PathEscape(strings.ToLower(lang))
	return c.getRecord(ctx, path, nil)
}

// Named fetches the card whose name matches exactly.
func (c *Client) Named(ctx context.Context, exact string) (card.Record, error) {
	return c.getRecord(ctx, "/cards/named", map[string]string{"exact": exact})
}

func (c *Client) getRecord(ctx context.Context, path string, query map[string]string) (card.Record, error) {
	resp, err := c.fetcher.Do(ctx, Request{Lane: LaneBulk, Path: path, Query: query}, DefaultPolicy)
	if err != nil {
		return card.Record{}, fmt.Errorf("get %s: %w", path, err)
	}
	var rec card.Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return card.Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec.WithEnrichedRelations(), nil
}

// ingest marks catalog records as enriched; an omitted relation list means none.
func ingest(recs []card.Record) []card.Record {
	out := make([]card.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.WithEnrichedRelations())
	}
	return out
}

// ExactQuery builds a search expression for an exact name, optionally
// narrowed by set, collector number and language.
func ExactQuery(name, set, number, lang string) string {
	var b strings.Builder
	b.WriteString(`!"`)
	b.WriteString(strings.ReplaceAll(strings.TrimSpace(name), `"`, `\"`))
	b.WriteString(`"`)
	if set != "" {
		b.WriteString(" set:")
		b.WriteString(strings.ToLower(set))
	}
	if number != "" {
		b.WriteString(" cn:")
		b.WriteString(strings.ToLower(number))
	}
	if lang != "" {
		b.WriteString(" lang:")
		b.WriteString(strings.ToLower(lang))
	}
	return b.String()
}
