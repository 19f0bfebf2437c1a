package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dondelocompro/pricehub/internal/domain"
	"github.com/dondelocompro/pricehub/internal/metrics"
	"github.com/dondelocompro/pricehub/internal/stream"
)

// Service orchestrates the lifecycle of searches: it fans a query out to
// every active vendor concurrently, collects per-vendor outcomes into the
// search record, and publishes lifecycle events onto the per-search
// stream. All record mutation goes through the per-search mutex, so
// vendor goroutines of one search serialize their writes and event order
// always matches record order.
type Service struct {
	reg              Registry
	logger           *zap.Logger
	vendorTimeout    time.Duration
	retention        time.Duration
	subscriberBuffer int

	mu       sync.RWMutex
	searches map[string]*searchState
}

// searchState is the live state of one search, owned by the Service.
type searchState struct {
	mu        sync.Mutex
	rec       domain.Search
	stream    *stream.Stream
	cancel    context.CancelFunc
	cancelled bool // guarded by mu
	done      chan struct{}
}

// New creates an orchestrator over the given vendor registry.
func New(reg Registry, logger *zap.Logger) *Service {
	return &Service{
		reg:              reg,
		logger:           logger,
		vendorTimeout:    30 * time.Second,
		retention:        5 * time.Minute,
		subscriberBuffer: stream.DefaultSubscriberBuffer,
		searches:         make(map[string]*searchState),
	}
}

// WithVendorTimeout sets the per-vendor call deadline.
func (s *Service) WithVendorTimeout(d time.Duration) *Service {
	if d > 0 {
		s.vendorTimeout = d
	}
	return s
}

// WithRetention sets how long finalized search records stay readable.
func (s *Service) WithRetention(d time.Duration) *Service {
	if d > 0 {
		s.retention = d
	}
	return s
}

// WithSubscriberBuffer sets the live-event buffer per stream subscriber.
func (s *Service) WithSubscriberBuffer(n int) *Service {
	if n > 0 {
		s.subscriberBuffer = n
	}
	return s
}

// Normalize canonicalizes query text: trimmed, inner whitespace collapsed.
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// Start creates a search and schedules vendor work, returning the search
// id immediately. The active vendor set is snapshotted here: vendors
// registered later are not part of this search. An empty vendor set does
// not fail Start; the search itself finalizes as failed with
// no_active_vendors on its stream.
func (s *Service) Start(query string, maxResultsPerVendor int) (string, error) {
	q := Normalize(query)
	if q == "" {
		return "", fmt.Errorf("query is required")
	}
	if maxResultsPerVendor <= 0 {
		return "", fmt.Errorf("max results per vendor must be positive, got %d", maxResultsPerVendor)
	}

	vendors := s.reg.ActiveVendors()

	id := uuid.NewString()
	outcomes := make(map[string]domain.VendorOutcome, len(vendors))
	for _, v := range vendors {
		outcomes[v.ID] = domain.VendorOutcome{State: domain.OutcomePending}
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &searchState{
		rec: domain.Search{
			ID:                  id,
			Query:               q,
			MaxResultsPerVendor: maxResultsPerVendor,
			Status:              domain.StatusInitiated,
			Items:               []domain.Item{},
			VendorOutcomes:      outcomes,
			StartedAt:           time.Now().UTC(),
		},
		stream: stream.New(s.subscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.searches[id] = st
	s.mu.Unlock()

	metrics.SearchesActive.Inc()
	go s.run(ctx, st, vendors)

	return id, nil
}

// Snapshot returns a detached copy of the search record: status, items
// so far, vendor outcomes and summary. For a finalized search repeated
// snapshots are identical until the retention window expires.
func (s *Service) Snapshot(id string) (domain.Search, error) {
	st, err := s.state(id)
	if err != nil {
		return domain.Search{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap := st.rec
	snap.Items = make([]domain.Item, len(st.rec.Items))
	copy(snap.Items, st.rec.Items)
	snap.VendorOutcomes = make(map[string]domain.VendorOutcome, len(st.rec.VendorOutcomes))
	for k, v := range st.rec.VendorOutcomes {
		snap.VendorOutcomes[k] = v
	}
	if st.rec.CompletedAt != nil {
		t := *st.rec.CompletedAt
		snap.CompletedAt = &t
	}
	return snap, nil
}

// Subscribe attaches to the search's event stream: full replay of the
// history so far, then live events until the terminal event.
func (s *Service) Subscribe(id string) (*stream.Subscription, error) {
	st, err := s.state(id)
	if err != nil {
		return nil, err
	}
	return st.stream.Subscribe(), nil
}

// Cancel stops a running search: still-running vendor tasks are
// signalled to stop and recorded as cancelled, and the search finalizes
// as failed. Cancelling an already-finalized search is a no-op.
func (s *Service) Cancel(id string) error {
	st, err := s.state(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.rec.Status.Terminal() {
		st.mu.Unlock()
		return nil
	}
	st.cancelled = true
	st.mu.Unlock()

	st.cancel()
	return nil
}

// Shutdown cancels every running search. Used on process shutdown.
func (s *Service) Shutdown() {
	s.mu.RLock()
	states := make([]*searchState, 0, len(s.searches))
	for _, st := range s.searches {
		states = append(states, st)
	}
	s.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		running := !st.rec.Status.Terminal()
		if running {
			st.cancelled = true
		}
		st.mu.Unlock()
		if running {
			st.cancel()
			<-st.done
		}
	}
}

func (s *Service) state(id string) (*searchState, error) {
	s.mu.RLock()
	st, ok := s.searches[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSearchNotFound, id)
	}
	return st, nil
}

// run drives one search from dispatch to its terminal event.
func (s *Service) run(ctx context.Context, st *searchState, vendors []domain.Vendor) {
	defer close(st.done)

	log := s.logger.With(
		zap.String("search_id", st.rec.ID),
		zap.String("query", st.rec.Query),
	)

	if len(vendors) == 0 {
		s.fail(st, domain.ErrNoActiveVendors.Error())
		log.Warn("search failed, no active vendors")
		return
	}

	st.mu.Lock()
	st.rec.Status = domain.StatusRunning
	st.stream.Publish(domain.NewSearchStarted(st.rec.ID, len(vendors)))
	st.mu.Unlock()

	log.Info("search dispatched", zap.Int("vendors", len(vendors)))

	var wg sync.WaitGroup
	for _, v := range vendors {
		adapter, ok := s.reg.Adapter(v.ID)
		if !ok {
			// Registry invariant: an active vendor always has an adapter.
			s.recordVendorFailure(st, v.ID, fmt.Errorf("no adapter registered"), 0)
			continue
		}
		wg.Add(1)
		go func(v domain.Vendor, adapter domain.Adapter) {
			defer wg.Done()
			s.runVendor(ctx, st, v, adapter, log)
		}(v, adapter)
	}
	wg.Wait()

	s.finalize(st, log)
}

// runVendor executes one vendor lookup under the per-vendor deadline and
// records its outcome. A vendor failure degrades only this vendor's
// contribution; it never aborts the search.
func (s *Service) runVendor(
	ctx context.Context, st *searchState,
	v domain.Vendor, adapter domain.Adapter, log *zap.Logger,
) {
	st.mu.Lock()
	published := st.stream.Publish(domain.NewVendorStarted(st.rec.ID, v.ID))
	st.mu.Unlock()
	if !published {
		// Stream already closed: search finalized before this vendor ran.
		return
	}

	vctx, cancel := context.WithTimeout(ctx, s.vendorTimeout)
	defer cancel()

	start := time.Now()
	items, err := adapter.Search(vctx, st.rec.Query, st.rec.MaxResultsPerVendor)
	elapsed := time.Since(start)
	metrics.VendorRequestDuration.WithLabelValues(v.ID).Observe(elapsed.Seconds())

	if err != nil {
		if ctx.Err() == context.Canceled {
			// Search-level cancellation, not a vendor failure.
			s.recordVendorCancelled(st, v.ID, elapsed)
			return
		}
		s.recordVendorFailure(st, v.ID, err, elapsed)
		log.Warn("vendor lookup failed",
			zap.String("vendor", v.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}

	if len(items) > st.rec.MaxResultsPerVendor {
		items = items[:st.rec.MaxResultsPerVendor]
	}

	st.mu.Lock()
	for _, it := range items {
		it.VendorID = v.ID
		if it.Currency == "" {
			it.Currency = v.Currency
		}
		if it.Availability == "" {
			it.Availability = domain.AvailabilityUnknown
		}
		st.rec.Items = append(st.rec.Items, it)
		st.stream.Publish(domain.NewProductFound(st.rec.ID, it))
	}
	st.rec.Summary = domain.Summarize(st.rec.Items)
	st.rec.VendorOutcomes[v.ID] = domain.VendorOutcome{
		State:     domain.OutcomeSucceeded,
		ItemCount: len(items),
		Duration:  elapsed.Seconds(),
	}
	st.stream.Publish(domain.NewVendorCompleted(st.rec.ID, v.ID, len(items), elapsed.Seconds()))
	st.mu.Unlock()

	metrics.VendorRequestsTotal.WithLabelValues(v.ID, string(domain.OutcomeSucceeded)).Inc()
	metrics.ProductsFoundTotal.WithLabelValues(v.ID).Add(float64(len(items)))

	log.Info("vendor lookup completed",
		zap.String("vendor", v.ID),
		zap.Int("items", len(items)),
		zap.Duration("elapsed", elapsed),
	)
}

// recordVendorFailure classifies the error, records the outcome and
// emits exactly one vendor_error event.
func (s *Service) recordVendorFailure(st *searchState, vendorID string, err error, elapsed time.Duration) {
	kind := domain.ClassifyVendorError(err)
	state := domain.OutcomeFailed
	if kind == domain.VendorErrTimeout {
		state = domain.OutcomeTimedOut
	}

	st.mu.Lock()
	st.rec.VendorOutcomes[vendorID] = domain.VendorOutcome{
		State:     state,
		Duration:  elapsed.Seconds(),
		Error:     err.Error(),
		ErrorKind: string(kind),
	}
	st.stream.Publish(domain.NewVendorError(st.rec.ID, vendorID, err.Error(), kind, elapsed.Seconds()))
	st.mu.Unlock()

	metrics.VendorRequestsTotal.WithLabelValues(vendorID, string(state)).Inc()
}

func (s *Service) recordVendorCancelled(st *searchState, vendorID string, elapsed time.Duration) {
	st.mu.Lock()
	st.rec.VendorOutcomes[vendorID] = domain.VendorOutcome{
		State:    domain.OutcomeCancelled,
		Duration: elapsed.Seconds(),
	}
	st.mu.Unlock()

	metrics.VendorRequestsTotal.WithLabelValues(vendorID, string(domain.OutcomeCancelled)).Inc()
}

// finalize publishes the terminal event and freezes the record. The
// search completes even when every vendor failed; it only fails when it
// was cancelled (the no-vendor case goes through fail directly).
func (s *Service) finalize(st *searchState, log *zap.Logger) {
	st.mu.Lock()
	now := time.Now().UTC()
	st.rec.CompletedAt = &now
	duration := now.Sub(st.rec.StartedAt).Seconds()
	st.rec.Summary = domain.Summarize(st.rec.Items)

	if st.cancelled {
		st.rec.Status = domain.StatusFailed
		st.rec.Error = domain.ErrSearchCancelled.Error()
		st.stream.Publish(domain.NewSearchFailed(st.rec.ID, st.rec.Error))
	} else {
		st.rec.Status = domain.StatusCompleted
		st.stream.Publish(domain.NewSearchCompleted(st.rec.ID, len(st.rec.Items), duration, st.rec.Summary))
	}
	st.stream.Close()
	status := st.rec.Status
	total := len(st.rec.Items)
	st.mu.Unlock()

	metrics.SearchesActive.Dec()
	metrics.SearchesTotal.WithLabelValues(string(status)).Inc()
	metrics.SearchDuration.Observe(duration)
	s.evictAfterRetention(st.rec.ID)

	log.Info("search finished",
		zap.String("status", string(status)),
		zap.Int("total_items", total),
		zap.Float64("duration_sec", duration),
	)
}

// fail finalizes a search that could not evaluate any vendor.
func (s *Service) fail(st *searchState, errMsg string) {
	st.mu.Lock()
	now := time.Now().UTC()
	st.rec.Status = domain.StatusFailed
	st.rec.Error = errMsg
	st.rec.CompletedAt = &now
	st.stream.Publish(domain.NewSearchFailed(st.rec.ID, errMsg))
	st.stream.Close()
	st.mu.Unlock()

	metrics.SearchesActive.Dec()
	metrics.SearchesTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	s.evictAfterRetention(st.rec.ID)
}

// evictAfterRetention drops the record once the retention window for
// late polling has passed.
func (s *Service) evictAfterRetention(id string) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.searches, id)
		s.mu.Unlock()
	})
}
