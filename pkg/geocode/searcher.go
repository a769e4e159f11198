package geocode

import (
	"context"
	"sync"
	"time"

	"inatmap/pkg/metrics"
	"inatmap/pkg/tracker"
)

// Searcher serializes what the search box shows. Every search takes a
// sequence number; a response that arrives after a newer search was issued
// is dropped and never replaces the current results.
type Searcher struct {
	fwd      Forwarder
	tracker  *tracker.Tracker
	metrics  *metrics.Metrics
	provider string

	mu      sync.Mutex
	issued  uint64
	current FeatureCollection
}

// NewSearcher wraps fwd. t and m may be nil. Stale drops are counted under
// the forwarder's provider when it names one.
func NewSearcher(fwd Forwarder, t *tracker.Tracker, m *metrics.Metrics) *Searcher {
	provider := "geocoder"
	if p, ok := fwd.(interface{ Provider() string }); ok && p.Provider() != "" {
		provider = p.Provider()
	}
	return &Searcher{
		fwd:      fwd,
		tracker:  t,
		metrics:  m,
		provider: provider,
		current:  Empty(),
	}
}

// Search runs query and reports whether the results were accepted.
// The forwarder is called without the lock held. apply, if not nil, receives
// accepted results while the lock is still held, so no newer search can
// overtake it.
func (s *Searcher) Search(ctx context.Context, query string, apply func(FeatureCollection)) (FeatureCollection, bool) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	start := time.Now()
	fc := s.fwd.Forward(ctx, query)
	took := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.issued {
		if s.tracker != nil {
			s.tracker.TrackStale(s.provider)
		}
		s.metrics.ObserveSearch(metrics.SearchStale, took)
		return fc, false
	}

	s.current = fc
	if apply != nil {
		apply(fc)
	}
	outcome := metrics.SearchOK
	if fc.Len() == 0 {
		outcome = metrics.SearchEmpty
	}
	s.metrics.ObserveSearch(outcome, took)
	return fc, true
}

// Lookup finds a result in the current set by id.
func (s *Searcher) Lookup(id string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Find(id)
}

// Reset clears the result list and invalidates any search still in flight.
func (s *Searcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.current = Empty()
}
