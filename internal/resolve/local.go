package resolve

import (
	"context"
	"strings"

	"cardcat/internal/card"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

// resolveLocal answers what it can from memory and the store, recording hits
// in found, and returns the queries still pending.
func (s *Service) resolveLocal(ctx context.Context, qs []card.Query, found map[string]card.Record) []card.Query {
	remaining := make([]card.Query, 0, len(qs))
	for i, q := range qs {
		if ctx.Err() != nil {
			return append(remaining, qs[i:]...)
		}
		rec, tier, ok := s.lookupLocal(ctx, q)
		if !ok {
			remaining = append(remaining, q)
			continue
		}
		found[q.Key()] = rec
		metrics.Resolved(tier)
	}
	return remaining
}

func (s *Service) lookupLocal(ctx context.Context, q card.Query) (card.Record, string, bool) {
	if rec, ok := s.hot.Get(q.Key()); ok && rec.HasRelations() {
		return rec, "hot", true
	}
	if q.Set == "" {
		if id, ok := s.scoring.Get(card.NameKey(q.Name, q.Lang)); ok {
			rec, err := s.store.CardByID(ctx, id)
			if err != nil {
				s.warnStore(q, err)
			} else if rec != nil && rec.HasRelations() {
				s.hot.Add(q.Key(), *rec)
				return *rec, "local", true
			}
		}
	}

	rec := s.lookupStore(ctx, q)
	if rec == nil || !rec.HasRelations() {
		return card.Record{}, "", false
	}
	s.hot.Add(q.Key(), *rec)
	return *rec, "local", true
}

func (s *Service) lookupStore(ctx context.Context, q card.Query) *card.Record {
	if q.HasPrinting() {
		rec, err := s.store.CardByPrinting(ctx, q.Set, q.Number, q.Lang)
		if err != nil {
			s.warnStore(q, err)
			return nil
		}
		return rec
	}

	recs, err := s.store.CardsByName(ctx, q.Name, q.Lang)
	if err != nil {
		s.warnStore(q, err)
		return nil
	}
	candidates := make([]card.Record, 0, len(recs))
	for _, rec := range recs {
		if !rec.HasRelations() {
			continue
		}
		if q.Set != "" && !strings.EqualFold(rec.Set, q.Set) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil
	}
	best := pickBest(candidates, q.Name)
	return &best
}

func (s *Service) warnStore(q card.Query, err error) {
	logging.WarnWithContext(s.logger, "local card lookup failed", "card_store_read_failed",
		logging.String(logging.FieldCardName, q.String()),
		logging.Error(err),
		logging.String(logging.FieldImpact, "query resolved from the catalog instead"),
	)
}
