package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"cardcat/internal/logging"
)

// Page is one page of a list response.
type Page[T any] struct {
	Data       []T    `json:"data"`
	HasMore    bool   `json:"has_more"`
	NextPage   string `json:"next_page,omitempty"`
	TotalCards int    `json:"total_cards,omitempty"`
}

// PageInfo carries the continuation fields of a decoded page.
type PageInfo struct {
	HasMore  bool
	NextPage string
}

// Paginate fetches first and follows next_page links until has_more is
// false, handing every body to decode. A 404 on the first page is an empty
// result. A failure on a later page is logged and ends the walk without an
// error so callers keep the pages already decoded.
func (f *Fetcher) Paginate(ctx context.Context, first Request, policy Policy, decode func([]byte) (PageInfo, error)) error {
	req := first
	seen := map[string]struct{}{}
	for page := 1; ; page++ {
		resp, err := f.Do(ctx, req, policy)
		if err != nil {
			if page == 1 {
				if IsNotFound(err) {
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(f.logger, "catalog pagination stopped early", "catalog_pagination_partial",
				logging.String("path", first.Path),
				logging.Int("page", page),
				logging.Error(err),
				logging.String(logging.FieldImpact, "results limited to the pages already fetched"),
			)
			return nil
		}

		info, err := decode(resp.Body)
		if err != nil {
			if page == 1 {
				return fmt.Errorf("decode page %d: %w", page, err)
			}
			logging.WarnWithContext(f.logger, "catalog page undecodable", "catalog_pagination_partial",
				logging.String("path", first.Path),
				logging.Int("page", page),
				logging.Error(err),
			)
			return nil
		}
		if !info.HasMore || info.NextPage == "" {
			return nil
		}
		if _, dup := seen[info.NextPage]; dup {
			return nil
		}
		seen[info.NextPage] = struct{}{}
		req = Request{Lane: first.Lane, Method: http.MethodGet, Path: info.NextPage}
	}
}

// CollectPages walks every page of first and returns the concatenated data.
func CollectPages[T any](ctx context.Context, f *Fetcher, first Request, policy Policy) ([]T, error) {
	var items []T
	err := f.Paginate(ctx, first, policy, func(body []byte) (PageInfo, error) {
		var page Page[T]
		if err := json.Unmarshal(body, &page); err != nil {
			return PageInfo{}, err
		}
		items = append(items, page.Data...)
		return PageInfo{HasMore: page.HasMore, NextPage: page.NextPage}, nil
	})
	return items, err
}
