package resolve

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cardcat/internal/card"
	"cardcat/internal/catalog"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

// Index ranks. Higher ranks replace lower ones; equal ranks keep the first writer.
const (
	rankFace = iota + 1
	rankFullName
)

type indexEntry struct {
	rec  card.Record
	rank int
}

// recordIndex maps collection results back onto queries. Name keys rank
// full names above face names; printing keys live in their own namespace.
type recordIndex map[string]indexEntry

func (idx recordIndex) put(key string, rec card.Record, rank int) {
	if cur, ok := idx[key]; ok && cur.rank >= rank {
		return
	}
	idx[key] = indexEntry{rec: rec, rank: rank}
}

func indexRecords(recs []card.Record) recordIndex {
	idx := make(recordIndex, len(recs)*3)
	for _, rec := range recs {
		idx.put(printingKey(rec.Set, rec.CollectorNumber), rec, rankFullName)
		full := card.NormalizeName(rec.Name)
		idx.put(nameIndexKey("", full), rec, rankFullName)
		idx.put(nameIndexKey(rec.Set, full), rec, rankFullName)
		for _, face := range rec.FaceNames() {
			name := card.NormalizeName(face)
			idx.put(nameIndexKey("", name), rec, rankFace)
			idx.put(nameIndexKey(rec.Set, name), rec, rankFace)
		}
	}
	return idx
}

func (idx recordIndex) lookup(q card.Query) (card.Record, bool) {
	var key string
	switch {
	case q.HasPrinting():
		key = printingKey(q.Set, q.Number)
	default:
		key = nameIndexKey(q.Set, card.NormalizeName(q.Name))
	}
	entry, ok := idx[key]
	return entry.rec, ok
}

func printingKey(set, number string) string {
	return "p:" + card.PrintingKey(set, number)
}

func nameIndexKey(set, normalized string) string {
	if set == "" {
		return "n:" + normalized
	}
	return "s:" + card.PrintingKey(set, normalized)
}

// resolveCollection sends pending queries to the collection endpoint in
// chunks and returns those it could not match. Chunk failures only leave
// their queries pending.
func (s *Service) resolveCollection(ctx context.Context, qs []card.Query, remote *remoteResults) []card.Query {
	g := new(errgroup.Group)
	g.SetLimit(defaultBatchConcurrency)
	for start := 0; start < len(qs); start += s.batchSize {
		chunk := qs[start:min(start+s.batchSize, len(qs))]
		g.Go(func() error {
			s.resolveChunk(ctx, chunk, remote)
			return nil
		})
	}
	_ = g.Wait()

	remaining := make([]card.Query, 0, len(qs))
	for _, q := range qs {
		if _, ok := remote.get(q.Key()); !ok {
			remaining = append(remaining, q)
		}
	}
	return remaining
}

func (s *Service) resolveChunk(ctx context.Context, qs []card.Query, remote *remoteResults) {
	if ctx.Err() != nil {
		return
	}
	ids := make([]catalog.Identifier, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, catalog.IdentifierFor(q))
	}
	res, err := s.catalog.Collection(ctx, ids)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "collection lookup failed", "collection_failed",
				logging.Int("queries", len(qs)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "queries fall back to individual searches"),
			)
		}
		return
	}

	idx := indexRecords(res.Data)
	for _, q := range qs {
		if rec, ok := idx.lookup(q); ok {
			remote.set(q.Key(), rec)
			metrics.Resolved("batch")
		}
	}
}
