// Package store owns the current feed snapshot. A single poll loop refreshes
// it from the pipeline and an optional simulation loop advances it; every
// change is published to subscribers as an independent deep copy.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"transit-realtime/internal/logging"
	"transit-realtime/internal/realtime"
)

var ErrStopped = errors.New("store stopped")

type Source interface {
	Snapshot(ctx context.Context) (realtime.FeedSnapshot, error)
}

type Stepper interface {
	Step(snap *realtime.FeedSnapshot)
}

// Sink receives every published snapshot on its own goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap realtime.FeedSnapshot) error
}

type StoreMetrics interface {
	TickObserve(mode string, d time.Duration)
	SnapshotPublished(snap *realtime.FeedSnapshot)
	SubscribersSet(n int)
	SinkErrInc(sink string)
}

type Options struct {
	Source       Source
	Engine       Stepper
	PollInterval time.Duration
	// SimInterval <= 0 disables the simulation loop, as does a nil Engine.
	SimInterval time.Duration
	Sinks       []Sink
	Metrics     StoreMetrics
}

type subscription struct {
	ch chan realtime.FeedSnapshot
}

type Store struct {
	src         Source
	engine      Stepper
	poll        time.Duration
	simInterval time.Duration
	sinks       []Sink
	metrics     StoreMetrics
	log         zerolog.Logger

	mu         sync.RWMutex
	current    realtime.FeedSnapshot
	have       bool
	generation uint64
	ticket     uint64 // last refresh started
	applied    uint64 // last refresh applied
	stopped    bool
	subs       map[int]*subscription
	nextID     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Store {
	return &Store{
		src:         opts.Source,
		engine:      opts.Engine,
		poll:        opts.PollInterval,
		simInterval: opts.SimInterval,
		sinks:       opts.Sinks,
		metrics:     opts.Metrics,
		log:         logging.Component("store"),
		subs:        make(map[int]*subscription),
	}
}

// Current returns a private copy of the latest snapshot; false until the
// first refresh succeeds.
func (s *Store) Current() (realtime.FeedSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have {
		return realtime.FeedSnapshot{}, false
	}
	snap, err := s.current.Clone()
	if err != nil {
		s.log.Error().Err(err).Msg("clone current snapshot")
		return realtime.FeedSnapshot{}, false
	}
	return snap, true
}

// Subscribe returns a channel receiving every published snapshot. A slow
// subscriber only ever sees the newest pending snapshot. The current
// snapshot, if any, is delivered immediately.
func (s *Store) Subscribe(buffer int) (<-chan realtime.FeedSnapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscription{ch: make(chan realtime.FeedSnapshot, buffer)}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	if s.have {
		s.deliver(sub)
	}
	n := len(s.subs)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SubscribersSet(n)
	}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub.ch)
			}
			n := len(s.subs)
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.SubscribersSet(n)
			}
		})
	}
}

// Refresh runs one fetch+decode cycle. A result that completes after a newer
// refresh was applied, or after Stop, is discarded.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.ticket++
	ticket := s.ticket
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.src.Snapshot(ctx)
	if s.metrics != nil {
		s.metrics.TickObserve("poll", time.Since(start))
	}
	if err != nil {
		s.log.Error().Err(err).Msg("refresh failed, keeping previous snapshot")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if ticket < s.applied {
		s.log.Debug().Uint64("ticket", ticket).Msg("discarding stale refresh")
		return nil
	}
	s.applied = ticket
	s.publishLocked(snap)
	return nil
}

// Simulate advances the current snapshot by one simulation tick.
func (s *Store) Simulate() bool {
	if s.engine == nil {
		return false
	}
	start := time.Now()
	s.mu.Lock()
	if s.stopped || !s.have {
		s.mu.Unlock()
		return false
	}
	next, err := s.current.Clone()
	if err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("clone for simulation")
		return false
	}
	s.engine.Step(&next)
	s.publishLocked(next)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.TickObserve("simulate", time.Since(start))
	}
	return true
}

func (s *Store) publishLocked(snap realtime.FeedSnapshot) {
	s.generation++
	snap.Generation = s.generation
	s.current = snap
	s.have = true
	for _, sub := range s.subs {
		s.deliver(sub)
	}
	if s.metrics != nil {
		s.metrics.SnapshotPublished(&s.current)
	}
}

// deliver hands sub its own copy, replacing a pending undelivered one.
// Caller holds s.mu.
func (s *Store) deliver(sub *subscription) {
	snap, err := s.current.Clone()
	if err != nil {
		s.log.Error().Err(err).Msg("clone for subscriber")
		return
	}
	for {
		select {
		case sub.ch <- snap:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Start launches the poll loop, the simulation loop and the sink workers.
func (s *Store) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	for _, sink := range s.sinks {
		ch, unsubscribe := s.Subscribe(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer unsubscribe()
			s.runSink(ctx, sink, ch)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Refresh(ctx)
		if s.poll <= 0 {
			return
		}
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Refresh(ctx)
			}
		}
	}()

	if s.engine != nil && s.simInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(s.simInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Simulate()
				}
			}
		}()
	}
	s.log.Info().Dur("poll_interval", s.poll).Dur("sim_interval", s.simInterval).Int("sinks", len(s.sinks)).Msg("store started")
}

func (s *Store) runSink(ctx context.Context, sink Sink, ch <-chan realtime.FeedSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := sink.Publish(ctx, snap); err != nil {
				s.log.Warn().Err(err).Str("sink", sink.Name()).Uint64("generation", snap.Generation).Msg("sink publish failed")
				if s.metrics != nil {
					s.metrics.SinkErrInc(sink.Name())
				}
			}
		}
	}
}

// Stop cancels the loops, waits for them and closes every subscription.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	s.stopped = true
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.metrics != nil {
		s.metrics.SubscribersSet(0)
	}
}
