package resolve

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"cardcat/internal/card"
	"cardcat/internal/catalog"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

// resolveFallbacks runs the per-query search strategies concurrently.
func (s *Service) resolveFallbacks(ctx context.Context, qs []card.Query, remote *remoteResults) {
	g := new(errgroup.Group)
	g.SetLimit(s.fallbackConcurrency)
	for _, q := range qs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec, ok := s.fallback(ctx, q)
			if !ok {
				return nil
			}
			remote.set(q.Key(), rec)
			if q.Set == "" {
				remote.decide(card.NameKey(q.Name, q.Lang), q.Key())
			}
			metrics.Resolved("fallback")
			return nil
		})
	}
	_ = g.Wait()
}

// fallback tries, in order: set + collector number + exact name, set + exact
// name, exact name alone, then the named endpoint. Queries naming a printing never leave the
// exact-printing strategies.
func (s *Service) fallback(ctx context.Context, q card.Query) (card.Record, bool) {
	if q.HasPrinting() {
		candidates := s.searchWithEnglishRetry(ctx, q, func(lang string) string {
			return catalog.ExactQuery(q.Name, q.Set, q.Number, lang)
		})
		candidates = filterRecords(candidates, func(rec card.Record) bool {
			return strings.EqualFold(rec.Set, q.Set) && strings.EqualFold(rec.CollectorNumber, q.Number)
		})
		if len(candidates) > 0 {
			return pickBest(candidates, q.Name), true
		}
		if ctx.Err() != nil {
			return card.Record{}, false
		}
		rec, err := s.catalog.Printing(ctx, q.Set, q.Number)
		if err != nil {
			s.warnFallback(ctx, q, err)
			return card.Record{}, false
		}
		return rec, true
	}

	if q.Set != "" {
		candidates := s.searchWithEnglishRetry(ctx, q, func(lang string) string {
			return catalog.ExactQuery(q.Name, q.Set, "", lang)
		})
		candidates = filterRecords(candidates, func(rec card.Record) bool {
			return strings.EqualFold(rec.Set, q.Set) && matchesName(rec, q.Name)
		})
		if len(candidates) > 0 {
			return pickBest(candidates, q.Name), true
		}
	}

	candidates := s.searchWithEnglishRetry(ctx, q, func(lang string) string {
		return catalog.ExactQuery(q.Name, "", "", lang)
	})
	candidates = filterRecords(candidates, func(rec card.Record) bool {
		return matchesName(rec, q.Name)
	})
	if len(candidates) > 0 {
		return pickBest(candidates, q.Name), true
	}
	if ctx.Err() != nil {
		return card.Record{}, false
	}
	rec, err := s.catalog.Named(ctx, q.Name)
	if err != nil {
		s.warnFallback(ctx, q, err)
		return card.Record{}, false
	}
	if !matchesName(rec, q.Name) {
		return card.Record{}, false
	}
	return rec, true
}

// searchWithEnglishRetry runs the search built for the query language and,
// when that finds nothing for a non-English query, once more in English.
func (s *Service) searchWithEnglishRetry(ctx context.Context, q card.Query, build func(lang string) string) []card.Record {
	recs := s.search(ctx, q, build(q.Lang))
	if len(recs) == 0 && q.Lang != card.DefaultLang && ctx.Err() == nil {
		recs = s.search(ctx, q, build(card.DefaultLang))
	}
	return recs
}

func (s *Service) search(ctx context.Context, q card.Query, expr string) []card.Record {
	page, err := s.catalog.Search(ctx, expr, catalog.PrintsNewestFirst)
	if err != nil {
		s.warnFallback(ctx, q, err)
		return nil
	}
	return page.Data
}

func (s *Service) warnFallback(ctx context.Context, q card.Query, err error) {
	if ctx.Err() != nil || errors.Is(err, catalog.ErrNotFound) {
		return
	}
	logging.WarnWithContext(s.logger, "card search failed", "card_search_failed",
		logging.String(logging.FieldCardName, q.String()),
		logging.Error(err),
		logging.String(logging.FieldImpact, "query reported as not found"),
	)
}

// localize swaps English results of non-English queries for the localized
// printing. A failed lookup keeps the English record.
func (s *Service) localize(ctx context.Context, queries map[string]card.Query, remote *remoteResults) {
	type job struct {
		key string
		q   card.Query
		rec card.Record
	}
	var jobs []job
	for key, rec := range remote.records {
		q, ok := queries[key]
		if !ok || q.Lang == card.DefaultLang || rec.Lang == q.Lang {
			continue
		}
		jobs = append(jobs, job{key: key, q: q, rec: rec})
	}
	if len(jobs) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.fallbackConcurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			loc, err := s.catalog.LocalizedPrinting(ctx, j.rec.Set, j.rec.CollectorNumber, j.q.Lang)
			if err != nil {
				s.logger.Debug("localized printing unavailable",
					logging.String(logging.FieldCardName, j.q.String()),
					logging.Error(err),
				)
				return nil
			}
			if len(loc.AllParts) == 0 && len(j.rec.AllParts) > 0 {
				loc.AllParts = j.rec.AllParts
			}
			remote.set(j.key, loc)
			return nil
		})
	}
	_ = g.Wait()
}

func filterRecords(recs []card.Record, keep func(card.Record) bool) []card.Record {
	out := make([]card.Record, 0, len(recs))
	for _, rec := range recs {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesName(rec card.Record, name string) bool {
	if card.SameName(rec.Name, name) {
		return true
	}
	for _, face := range rec.FaceNames() {
		if card.SameName(face, name) {
			return true
		}
	}
	return false
}
