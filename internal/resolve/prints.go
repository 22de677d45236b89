package resolve

import (
	"context"
	"fmt"
	"strings"

	"cardcat/internal/card"
	"cardcat/internal/catalog"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

// ResolvePrints returns every printing of the queried card, newest first.
// A query naming a printing yields just that printing.
func (s *Service) ResolvePrints(ctx context.Context, q card.Query) ([]card.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q = q.Normalize()
	if q.HasPrinting() {
		rec, err := s.ResolveOne(ctx, q)
		if err != nil {
			return nil, err
		}
		return []card.Record{rec}, nil
	}

	list := func(lang string) ([]card.Record, error) {
		return s.catalog.SearchAll(ctx, catalog.ExactQuery(q.Name, q.Set, "", lang), catalog.PrintsNewestFirst)
	}
	recs, err := list(q.Lang)
	if err != nil {
		return nil, fmt.Errorf("list printings of %s: %w", q, err)
	}
	if len(recs) == 0 && q.Lang != card.DefaultLang {
		if recs, err = list(card.DefaultLang); err != nil {
			return nil, fmt.Errorf("list printings of %s: %w", q, err)
		}
	}
	recs = filterRecords(recs, func(rec card.Record) bool {
		return matchesName(rec, q.Name) && (q.Set == "" || strings.EqualFold(rec.Set, q.Set))
	})
	if len(recs) == 0 {
		metrics.Resolved("missing")
		return nil, fmt.Errorf("%s: %w", q, ErrNotFound)
	}

	if err := s.store.UpsertCards(ctx, recs); err != nil {
		logging.WarnWithContext(s.logger, "failed to persist printings", "card_persist_failed",
			logging.String(logging.FieldCardName, q.String()),
			logging.Int("records", len(recs)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "printings are served now but will be listed again next time"),
		)
	}
	metrics.Resolved("prints")
	return recs, nil
}
