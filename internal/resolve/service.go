package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cardcat/internal/card"
	"cardcat/internal/catalog"
	"cardcat/internal/hotcache"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

var (
	// ErrNotFound is returned when no strategy produced a record.
	ErrNotFound = errors.New("card not found")
	// ErrInvalidQuery wraps query validation failures.
	ErrInvalidQuery = errors.New("invalid card query")
)

// Store is the persistence the resolver reads through and writes back to.
type Store interface {
	CardByID(ctx context.Context, id string) (*card.Record, error)
	CardByPrinting(ctx context.Context, set, number, lang string) (*card.Record, error)
	CardsByName(ctx context.Context, name, lang string) ([]card.Record, error)
	UpsertCards(ctx context.Context, recs []card.Record) error
	OnWrite(fn func()) func()
}

// Catalog is the remote catalog surface used by the resolver.
type Catalog interface {
	Collection(ctx context.Context, ids []catalog.Identifier) (catalog.CollectionResult, error)
	Search(ctx context.Context, query string, opts catalog.SearchOptions) (catalog.Page[card.Record], error)
	SearchAll(ctx context.Context, query string, opts catalog.SearchOptions) ([]card.Record, error)
	Printing(ctx context.Context, set, number string) (card.Record, error)
	LocalizedPrinting(ctx context.Context, set, number, lang string) (card.Record, error)
	Named(ctx context.Context, exact string) (card.Record, error)
}

const (
	defaultBatchSize           = catalog.MaxCollectionSize
	defaultBatchConcurrency    = 4
	defaultFallbackConcurrency = 6
)

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "resolve")
		}
	}
}

// WithCapacities sizes the hot and scoring caches.
func WithCapacities(hot, scoring int) Option {
	return func(s *Service) {
		s.hotCapacity = hot
		s.scoringCapacity = scoring
	}
}

// WithBatchSize sets the collection chunk size, capped at the catalog limit.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= catalog.MaxCollectionSize {
			s.batchSize = n
		}
	}
}

// WithFallbackConcurrency bounds concurrent per-query fallbacks.
func WithFallbackConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fallbackConcurrency = n
		}
	}
}

// Service resolves queries against the local tiers and the catalog.
type Service struct {
	store   Store
	catalog Catalog
	logger  *slog.Logger

	hot     *hotcache.Cache[card.Record]
	scoring *hotcache.Cache[string]

	hotCapacity         int
	scoringCapacity     int
	batchSize           int
	fallbackConcurrency int

	closeOnce  sync.Once
	unregister func()
}

// New constructs a service and subscribes it to store writes.
func New(st Store, cat Catalog, opts ...Option) *Service {
	s := &Service{
		store:               st,
		catalog:             cat,
		logger:              logging.NewComponentLogger(nil, "resolve"),
		batchSize:           defaultBatchSize,
		fallbackConcurrency: defaultFallbackConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hot = hotcache.New[card.Record]("hot", s.hotCapacity)
	s.scoring = hotcache.New[string]("scoring", s.scoringCapacity)
	s.unregister = st.OnWrite(s.Clear)
	return s
}

// Clear drops both in-memory caches.
func (s *Service) Clear() {
	s.hot.Purge()
	s.scoring.Purge()
}

// Close unsubscribes from store writes and clears the caches.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.unregister != nil {
			s.unregister()
		}
		s.Clear()
	})
}

// ResolveOne resolves a single query.
func (s *Service) ResolveOne(ctx context.Context, q card.Query) (card.Record, error) {
	if err := q.Validate(); err != nil {
		return card.Record{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q = q.Normalize()
	found, err := s.ResolveBatch(ctx, []card.Query{q})
	if err != nil {
		return card.Record{}, err
	}
	rec, ok := found[q.Key()]
	if !ok {
		return card.Record{}, fmt.Errorf("%s: %w", q, ErrNotFound)
	}
	return rec, nil
}

// ResolveBatch resolves qs and returns the records keyed by Query.Key.
// Unresolved and invalid queries are absent from the map. The error is
// non-nil only when ctx ends.
func (s *Service) ResolveBatch(ctx context.Context, qs []card.Query) (map[string]card.Record, error) {
	found := make(map[string]card.Record, len(qs))
	queries := make(map[string]card.Query, len(qs))
	pending := make([]card.Query, 0, len(qs))
	for _, raw := range qs {
		if err := raw.Validate(); err != nil {
			s.logger.Debug("skipping invalid query",
				logging.String(logging.FieldCardName, raw.Name),
				logging.Error(err),
			)
			continue
		}
		q := raw.Normalize()
		if _, dup := queries[q.Key()]; dup {
			continue
		}
		queries[q.Key()] = q
		pending = append(pending, q)
	}

	pending = s.resolveLocal(ctx, pending, found)
	if err := ctx.Err(); err != nil {
		return found, err
	}
	if len(pending) == 0 {
		return found, nil
	}

	remote := newRemoteResults()
	pending = s.resolveCollection(ctx, pending, remote)
	if err := ctx.Err(); err != nil {
		return found, err
	}
	s.resolveFallbacks(ctx, pending, remote)
	if err := ctx.Err(); err != nil {
		return found, err
	}
	for _, q := range pending {
		if _, ok := remote.get(q.Key()); !ok {
			metrics.Resolved("missing")
			s.logger.Debug("query unresolved", logging.String(logging.FieldCardName, q.String()))
		}
	}

	s.localize(ctx, queries, remote)
	s.persist(ctx, remote)
	for key, rec := range remote.records {
		found[key] = rec
	}
	return found, nil
}

// remoteResults collects records resolved remotely during one batch.
type remoteResults struct {
	mu      sync.Mutex
	records map[string]card.Record
	// decisions maps a name key to the query key whose record won scoring.
	decisions map[string]string
}

func newRemoteResults() *remoteResults {
	return &remoteResults{
		records:   make(map[string]card.Record),
		decisions: make(map[string]string),
	}
}

func (r *remoteResults) set(key string, rec card.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = rec
}

func (r *remoteResults) get(key string) (card.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

func (r *remoteResults) decide(nameKey, queryKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[nameKey] = queryKey
}

// persist writes remote results to the store, which purges the in-memory
// caches, then repopulates them with this batch's results.
func (s *Service) persist(ctx context.Context, remote *remoteResults) {
	if len(remote.records) == 0 {
		return
	}
	byID := make(map[string]struct{}, len(remote.records))
	recs := make([]card.Record, 0, len(remote.records))
	for _, rec := range remote.records {
		if _, dup := byID[rec.ID]; dup {
			continue
		}
		byID[rec.ID] = struct{}{}
		recs = append(recs, rec)
	}
	if err := s.store.UpsertCards(ctx, recs); err != nil {
		logging.WarnWithContext(s.logger, "failed to persist resolved cards", "card_persist_failed",
			logging.Int("records", len(recs)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "cards are served now but will be fetched again next time"),
		)
	}
	for key, rec := range remote.records {
		s.hot.Add(key, rec)
	}
	for nameKey, queryKey := range remote.decisions {
		if rec, ok := remote.records[queryKey]; ok {
			s.scoring.Add(nameKey, rec.ID)
		}
	}
}
