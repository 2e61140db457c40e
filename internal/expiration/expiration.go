package expiration

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/marianozunino/cloudshare/internal/config"
	"github.com/marianozunino/cloudshare/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudshare_sweep_runs_total",
		Help: "Number of global expired-share sweeps",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudshare_sweep_failures_total",
		Help: "Number of sweeps that failed before deleting share documents",
	})
	sweepSharesCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudshare_sweep_shares_cleaned_total",
		Help: "Share documents removed by sweeps",
	})
	sweepAssetsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudshare_sweep_assets_cleaned_total",
		Help: "Assets deleted from the asset host by sweeps",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudshare_sweep_duration_seconds",
		Help:    "Duration of global sweeps",
		Buckets: prometheus.DefBuckets,
	})
)

// sweepTimeout bounds a single sweep so a hung asset host cannot stall the loop
const sweepTimeout = 5 * time.Minute

// Cleaner removes every expired share in the system
type Cleaner interface {
	CleanupExpiredGlobally(ctx context.Context) (model.CleanupResult, error)
}

// Sweeper runs the global cleanup periodically
type Sweeper struct {
	cleaner  Cleaner
	enabled  bool
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	started  bool
	done     chan struct{}
}

// NewSweeper creates a sweeper driven by the cleanup settings in cfg
func NewSweeper(cfg *config.Config, cleaner Cleaner) (*Sweeper, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cleaner == nil {
		return nil, errors.New("cleaner cannot be nil")
	}

	return &Sweeper{
		cleaner:  cleaner,
		enabled:  cfg.CleanupEnabled,
		interval: cfg.CleanupIntervalDuration(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start sweeps once immediately and then on every interval until Stop
func (s *Sweeper) Start() {
	s.started = true
	if !s.enabled {
		log.Println("Expired share sweeper disabled")
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)

		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				log.Println("Expired share sweeper stopped")
				return
			}
		}
	}()
	log.Printf("Expired share sweeper started, checking every %v", s.interval)
}

// Stop halts the sweeper and waits for a running sweep to finish. It is
// safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started {
		<-s.done
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("Error: Expired share sweep failed: %v", err)
	}
}

// RunOnce performs a single sweep and records its metrics
func (s *Sweeper) RunOnce(ctx context.Context) (model.CleanupResult, error) {
	start := time.Now()
	sweepRuns.Inc()

	result, err := s.cleaner.CleanupExpiredGlobally(ctx)
	sweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		sweepFailures.Inc()
		return result, err
	}

	sweepSharesCleaned.Add(float64(result.CleanedShares))
	sweepAssetsCleaned.Add(float64(result.CleanedAssets))

	log.Printf("Expired share sweep complete. Removed %d shares and %d assets",
		result.CleanedShares, result.CleanedAssets)

	return result, nil
}
