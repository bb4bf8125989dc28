package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peerbeam/beacon/internal/registry"
)

// Sweeper periodically purges registry records whose lastSeen has fallen
// past the inactivity threshold. It runs independently of request
// traffic and stops when its context is cancelled.
type Sweeper struct {
	reg       *registry.Registry
	interval  time.Duration
	threshold time.Duration
	clock     func() time.Time
	log       *logrus.Logger
	onRemoved func(ids []string)
}

type Options struct {
	Registry  *registry.Registry
	Interval  time.Duration
	Threshold time.Duration
	Clock     func() time.Time
	Logger    *logrus.Logger
	// OnRemoved is called after each sweep that removed at least one
	// peer, outside the registry lock.
	OnRemoved func(ids []string)
}

func New(opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Sweeper{
		reg:       opts.Registry,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		clock:     opts.Clock,
		log:       opts.Logger,
		onRemoved: opts.OnRemoved,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infof("Cleanup scheduler started (interval %s, threshold %s)", s.interval, s.threshold)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep pass.
func (s *Sweeper) SweepOnce() []string {
	removed := s.reg.Sweep(s.clock(), s.threshold)
	if len(removed) > 0 && s.onRemoved != nil {
		s.onRemoved(removed)
	}
	return removed
}
