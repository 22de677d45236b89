package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardcat/internal/card"
	"cardcat/internal/config"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
	"cardcat/internal/resolve"
)

// Resolver is the resolution surface a Runner needs.
type Resolver interface {
	ResolveOne(ctx context.Context, q card.Query) (card.Record, error)
	ResolvePrints(ctx context.Context, q card.Query) ([]card.Record, error)
}

// Mode selects what each query reports.
type Mode int

const (
	// ModeBest reports the single best record per query.
	ModeBest Mode = iota
	// ModeAllPrints reports every printing per query.
	ModeAllPrints
)

func (m Mode) String() string {
	if m == ModeAllPrints {
		return "all-prints"
	}
	return "best"
}

// ParseMode maps "best" and "all-prints" to a Mode.
func ParseMode(value string) (Mode, error) {
	switch value {
	case "", "best":
		return ModeBest, nil
	case "all-prints", "prints":
		return ModeAllPrints, nil
	default:
		return ModeBest, fmt.Errorf("unknown enrichment mode %q", value)
	}
}

// Options tunes a Runner.
type Options struct {
	Heartbeat   time.Duration
	ItemTimeout time.Duration
	Mode        Mode
}

// OptionsFromConfig reads the [stream] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Heartbeat:   cfg.HeartbeatInterval(),
		ItemTimeout: cfg.ItemTimeout(),
	}
}

const (
	defaultHeartbeat   = 15 * time.Second
	defaultItemTimeout = 30 * time.Second
)

// Runner streams resolution results for a list of queries.
type Runner struct {
	Resolver Resolver
	Options  Options
	Logger   *slog.Logger
}

// Run streams results for queries to sink. It returns nil after a done
// event, the panic or sink error otherwise, and ctx.Err() when the caller
// cancelled.
func (r *Runner) Run(ctx context.Context, queries []card.Query, sink Sink) (err error) {
	opts := r.Options
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}

	sess := newSession(ctx, sink, r.Logger)
	ctx = logging.WithSessionID(ctx, sess.id)
	finished := metrics.StreamStarted()
	defer finished()

	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			if ip, ok := rec.(itemPanic); ok {
				rec, stack = ip.value, ip.stack
			}
			logging.ErrorWithContext(sess.logger, "enrichment stream panicked", "stream_panic",
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(stack)),
			)
			sess.terminate(ctx, Event{Name: EventFatal, Data: FatalError{Message: fmt.Sprintf("internal error: %v", rec)}})
			err = fmt.Errorf("enrichment stream panicked: %v", rec)
		}
	}()

	if err := sess.open(ctx, Handshake{SessionID: sess.id, Total: len(queries), Mode: opts.Mode.String()}); err != nil {
		return err
	}
	sess.logger.Info("enrichment stream started",
		logging.Int("total", len(queries)),
		logging.String("mode", opts.Mode.String()),
	)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		sess.heartbeat(hbCtx, opts.Heartbeat)
	}()
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	var found, failed int
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			sess.abort("caller cancelled", err)
			return err
		}
		events, ok := r.resolveItem(ctx, opts, i, q)
		if ok {
			found++
		} else {
			failed++
		}
		for _, ev := range events {
			if err := sess.send(ctx, ev); err != nil {
				return err
			}
		}
		if err := sess.send(ctx, Event{Name: EventProgress, Data: Progress{Processed: i + 1, Total: len(queries)}}); err != nil {
			return err
		}
	}

	stopHeartbeat()
	hbWG.Wait()
	if err := sess.terminate(ctx, Event{Name: EventDone, Data: Done{Processed: len(queries), Found: found, Failed: failed}}); err != nil {
		return err
	}
	sess.logger.Info("enrichment stream finished",
		logging.Int("found", found),
		logging.Int("failed", failed),
	)
	return nil
}

// itemResult carries one resolution back from its goroutine.
type itemResult struct {
	events []Event
	ok     bool
	panic  any
	stack  []byte
}

// itemPanic re-raises a resolver panic on the stream goroutine with the
// stack of the goroutine that panicked.
type itemPanic struct {
	value any
	stack []byte
}

func (p itemPanic) String() string { return fmt.Sprint(p.value) }

// resolveItem races one resolution against the item timeout on a context
// detached from caller cancellation. A resolver that outlives the timeout
// is abandoned and its late result dropped.
func (r *Runner) resolveItem(ctx context.Context, opts Options, index int, q card.Query) ([]Event, bool) {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ItemTimeout)
	defer cancel()

	results := make(chan itemResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				results <- itemResult{panic: rec, stack: debug.Stack()}
			}
		}()
		events, ok := r.resolve(itemCtx, opts.Mode, index, q)
		results <- itemResult{events: events, ok: ok}
	}()

	select {
	case res := <-results:
		if res.panic != nil {
			panic(itemPanic{value: res.panic, stack: res.stack})
		}
		return res.events, res.ok
	case <-itemCtx.Done():
		return []Event{cardError(itemCtx, index, q, itemCtx.Err())}, false
	}
}

func (r *Runner) resolve(itemCtx context.Context, mode Mode, index int, q card.Query) ([]Event, bool) {
	if mode == ModeAllPrints {
		recs, err := r.Resolver.ResolvePrints(itemCtx, q)
		if err != nil {
			return []Event{cardError(itemCtx, index, q, err)}, false
		}
		events := make([]Event, 0, len(recs))
		for _, rec := range recs {
			events = append(events, Event{Name: EventPrintFound, Data: foundPayload(index, q, rec)})
		}
		return events, true
	}

	rec, err := r.Resolver.ResolveOne(itemCtx, q)
	if err != nil {
		return []Event{cardError(itemCtx, index, q, err)}, false
	}
	return []Event{{Name: EventCardFound, Data: foundPayload(index, q, rec)}}, true
}

func foundPayload(index int, q card.Query, rec card.Record) CardFound {
	return CardFound{
		Index:      index,
		Query:      q,
		Card:       rec,
		ImageURLs:  card.ImageURLs(rec),
		TokenParts: card.DeriveTokens(rec),
	}
}

func cardError(itemCtx context.Context, index int, q card.Query, err error) Event {
	msg := err.Error()
	switch {
	case errors.Is(err, resolve.ErrNotFound):
		msg = "card not found"
	case errors.Is(itemCtx.Err(), context.DeadlineExceeded):
		msg = "timed out resolving card"
	}
	return Event{Name: EventCardError, Data: CardError{Index: index, Query: q, Error: msg}}
}

// State is the lifecycle position of a stream.
type State int

const (
	StateOpen State = iota
	StateStreaming
	StateDone
	StateFatal
	// StateAborted covers caller cancellation and sink failure.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFatal:
		return "fatal"
	default:
		return "aborted"
	}
}

// errStreamClosed is returned by send once the stream left StateStreaming.
var errStreamClosed = errors.New("stream closed")

// session serializes sink writes and enforces the state machine.
type session struct {
	id     string
	sink   Sink
	logger *slog.Logger

	mu    sync.Mutex
	state State
	err   error
}

func newSession(ctx context.Context, sink Sink, logger *slog.Logger) *session {
	id := uuid.NewString()
	base := logging.WithContext(ctx, logging.NewComponentLogger(logger, "enrich"))
	return &session{
		id:     id,
		sink:   sink,
		logger: base.With(logging.String(logging.FieldSessionID, id)),
		state:  StateOpen,
	}
}

func (s *session) open(ctx context.Context, hs Handshake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, Event{Name: EventHandshake, Data: hs}); err != nil {
		return err
	}
	s.state = StateStreaming
	return nil
}

func (s *session) send(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		if s.err != nil {
			return s.err
		}
		return errStreamClosed
	}
	return s.write(ctx, ev)
}

// fail emits fatal-error once and closes the stream with err. A sink that
// panics again is not retried.
func (s *session) fail(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming && s.state != StateOpen {
		return
	}
	s.state = StateFatal
	s.err = err
	func() {
		defer func() { _ = recover() }()
		if s.sink.Send(ctx, Event{Name: EventFatal, Data: FatalError{Message: "internal error: " + err.Error()}}) == nil {
			metrics.StreamEvent(EventFatal)
		}
	}()
}

// terminate emits the terminal event if the stream is still live.
func (s *session) terminate(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming && s.state != StateOpen {
		return nil
	}
	if err := s.write(ctx, ev); err != nil {
		return err
	}
	if ev.Name == EventFatal {
		s.state = StateFatal
	} else {
		s.state = StateDone
	}
	return nil
}

func (s *session) abort(reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAborted {
		return
	}
	s.state = StateAborted
	s.logger.Info("enrichment stream stopped",
		logging.String("reason", reason),
		logging.Error(err),
	)
}

// write must be called with mu held. A failed write aborts the stream.
func (s *session) write(ctx context.Context, ev Event) error {
	if err := s.sink.Send(ctx, ev); err != nil {
		s.state = StateAborted
		s.logger.Info("enrichment stream stopped",
			logging.String("reason", "sink failed"),
			logging.String("event", ev.Name),
			logging.Error(err),
		)
		return fmt.Errorf("send %s: %w", ev.Name, err)
	}
	metrics.StreamEvent(ev.Name)
	return nil
}

// heartbeat ticks until ctx ends. A panicking sink ends the stream with
// fatal-error and leaves the error for the next send to report.
func (s *session) heartbeat(ctx context.Context, interval time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(s.logger, "heartbeat panicked", "stream_panic",
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(debug.Stack())),
			)
			s.fail(ctx, fmt.Errorf("heartbeat panicked: %v", rec))
		}
	}()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.send(ctx, Event{Name: EventHeartbeat, Data: Heartbeat{Time: now.UTC()}}); err != nil {
				return
			}
		}
	}
}
