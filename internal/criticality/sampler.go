package criticality

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is the work item handed to the sampler.
type Snapshot struct {
	Tick  uint64
	Op    *Operator
	Knobs Knobs
	DT    float64
}

// Sample is a finished estimate, stamped with the tick it was taken at.
type Sample struct {
	Tick     uint64
	Estimate Estimate
	Err      error
	Took     time.Duration
}

// Sampler computes spectral radius estimates on a background goroutine.
//
// Submissions go through a depth-1 queue where the newest snapshot replaces
// an unprocessed older one. Results land in a single cell that the tick
// goroutine drains with Take. The sampler never touches the live graph.
type Sampler struct {
	cfg     PowerConfig
	timeout time.Duration

	in     chan Snapshot
	result atomic.Pointer[Sample]

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSampler creates a sampler. Call Start to launch the worker.
func NewSampler(cfg PowerConfig, timeout time.Duration) *Sampler {
	return &Sampler{
		cfg:     cfg,
		timeout: timeout,
		in:      make(chan Snapshot, 1),
	}
}

// Start launches the worker. It stops when ctx is done or Close is called.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-s.in:
				s.result.Store(s.compute(ctx, snap))
			}
		}
	}()
}

func (s *Sampler) compute(ctx context.Context, snap Snapshot) *Sample {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	est, err := SpectralRadius(ctx, snap.Op, snap.Knobs, snap.DT, s.cfg)
	return &Sample{Tick: snap.Tick, Estimate: est, Err: err, Took: time.Since(start)}
}

// Submit queues a snapshot without blocking. An older unprocessed snapshot
// is dropped; Submit reports whether that happened. Only one goroutine may
// call Submit.
func (s *Sampler) Submit(snap Snapshot) (replaced bool) {
	select {
	case s.in <- snap:
		return false
	default:
	}
	select {
	case <-s.in:
		replaced = true
	default:
	}
	select {
	case s.in <- snap:
	default:
		// The worker took the old snapshot and a concurrent Submit filled the
		// slot; the single-producer contract makes this unreachable.
	}
	return replaced
}

// Take returns the latest finished sample and clears the cell.
func (s *Sampler) Take() (Sample, bool) {
	p := s.result.Swap(nil)
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

// Close stops the worker and waits for it to exit.
func (s *Sampler) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
	return nil
}
