// Package sampler runs the background review loop: on a fixed interval
// it picks a few random unreviewed posts from each configured source,
// feeds them through the store's batch auto-review, and announces the
// results on the event bus.
package sampler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"modkeeper/internal/bus"
	"modkeeper/internal/corpus"
	"modkeeper/internal/store"
)

// violationPrefix marks the seeded violation corpus directories that sit
// alongside each topic's organic posts.
const violationPrefix = "Viol_"

// Sampler is the background processor. Start and Stop are safe to call
// from the interactive thread; the loop itself runs on its own
// goroutine and touches shared state only through the store.
type Sampler struct {
	store    *store.Store
	bus      *bus.Bus
	logger   *zap.Logger
	dataDir  string
	topic    string
	interval time.Duration
	maxBatch int

	// processedLimit bounds the dedup set; when exceeded the whole set
	// is cleared and posts become eligible for re-sampling.
	processedLimit int

	mu        sync.Mutex
	processed map[string]struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	rng *rand.Rand
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithInterval overrides the cycle interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) { s.interval = d }
}

// WithMaxBatch overrides the per-source sample cap.
func WithMaxBatch(n int) Option {
	return func(s *Sampler) { s.maxBatch = n }
}

// WithProcessedLimit overrides the dedup-set clear threshold.
func WithProcessedLimit(n int) Option {
	return func(s *Sampler) { s.processedLimit = n }
}

// WithSeed fixes the sampling RNG, for tests.
func WithSeed(seed int64) Option {
	return func(s *Sampler) { s.rng = rand.New(rand.NewSource(seed)) }
}

// New creates a Sampler for one topic.
func New(st *store.Store, b *bus.Bus, dataDir, topic string, logger *zap.Logger, opts ...Option) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sampler{
		store:          st,
		bus:            b,
		logger:         logger,
		dataDir:        dataDir,
		topic:          topic,
		interval:       30 * time.Second,
		maxBatch:       2,
		processedLimit: 100,
		processed:      make(map[string]struct{}),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Calling Start on a running sampler is a
// no-op.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.publishStatus(bus.EventSamplerStarted, "running", "")
	s.logger.Info("background sampler started",
		zap.String("topic", s.topic),
		zap.Duration("interval", s.interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit, up to the given
// timeout. Returns false when the loop did not finish in time.
func (s *Sampler) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	select {
	case <-done:
		s.publishStatus(bus.EventSamplerStopped, "stopped", "")
		s.logger.Info("background sampler stopped", zap.String("topic", s.topic))
		return true
	case <-time.After(timeout):
		s.logger.Warn("background sampler did not stop in time", zap.Duration("timeout", timeout))
		return false
	}
}

// runCycle samples both sources for the topic. A failing source is
// reported and skipped; the loop never dies to a single bad cycle.
func (s *Sampler) runCycle(ctx context.Context) {
	for _, source := range []string{s.topic, violationPrefix + s.topic} {
		ids := s.sampleSource(source)
		if len(ids) == 0 {
			continue
		}

		loader := corpus.NewDirLoader(s.dataDir, source, ids)
		approved, flagged, err := s.store.AutoReview(ctx, loader, nil)
		if err != nil {
			s.logger.Warn("background cycle failed",
				zap.String("source", source),
				zap.Error(err))
			s.publishStatus(bus.EventSamplerError, "error", err.Error())
			continue
		}

		if s.bus != nil {
			s.bus.Publish(bus.EventBackgroundPostsLoaded, bus.BackgroundPostsLoaded{
				Approved:  approved,
				Flagged:   flagged,
				BatchSize: len(ids),
				Topic:     source,
			})
		}
	}
}

// sampleSource picks up to maxBatch random post ids from a source that
// have not been processed yet, and marks them processed.
func (s *Sampler) sampleSource(source string) []string {
	all := corpus.ListPostIDs(s.dataDir, source)
	if len(all) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []string
	for _, id := range all {
		if _, seen := s.processed[source+"/"+id]; !seen {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	n := s.rng.Intn(s.maxBatch + 1)
	if n > len(candidates) {
		n = len(candidates)
	}
	picked := candidates[:n]

	for _, id := range picked {
		s.processed[source+"/"+id] = struct{}{}
	}
	if len(s.processed) > s.processedLimit {
		s.processed = make(map[string]struct{})
	}
	return picked
}

// ProcessedCount reports the current dedup-set size.
func (s *Sampler) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *Sampler) publishStatus(event, status, errText string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event, bus.SamplerStatus{Status: status, Err: errText})
}
