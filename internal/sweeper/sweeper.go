package sweeper

import (
	"context"
	"sync"
	"time"

	"qrparking/pkg/logger"
)

// Expirer resets reservations whose window has passed and reports how many
// it reset.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper periodically applies lazy expiry to every stale reservation so
// abandoned holds are freed even when nobody reads them.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds a sweeper running every interval. Each pass is bounded by
// timeout.
func New(expirer Expirer, interval, timeout time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "expiry_sweeper"),
	}
}

// Start runs a first pass immediately, then one per interval until Stop or
// ctx is done. Passes never overlap.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info("Starting expiry sweeper", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				s.log.Info("Expiry sweeper stopped")
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}

// RunOnce performs a single pass and returns the number of reservations
// reset.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.log.Error("Expiry sweep failed", "expired", n, "error", err)
		return n
	}
	if n == 0 {
		s.log.Debug("No stale reservations found")
		return 0
	}
	s.log.Info("Expired stale reservations", "count", n)
	return n
}
