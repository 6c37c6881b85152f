package repository

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/timmy/bulkgen/internal/logger"
	"github.com/timmy/bulkgen/internal/metrics"
)

// Pinger is the part of *sql.DB the supervisor needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SupervisorConfig holds the health-check policy.
type SupervisorConfig struct {
	Interval    time.Duration // Time between pings while healthy
	MaxBackoff  time.Duration // Upper bound for the delay between failing pings
	PingTimeout time.Duration
}

// Supervisor watches the database connection and reports its health.
// It owns the retry policy for the persistence layer so job code never loops
// on reconnects itself.
type Supervisor struct {
	db     Pinger
	cfg    SupervisorConfig
	logger *logger.Logger

	mu        sync.RWMutex
	retry     *backoff.ExponentialBackOff
	healthy   bool
	lastErr   error
	lastCheck time.Time
	failures  int
}

// NewSupervisor creates a supervisor for db. Zero config fields get defaults.
func NewSupervisor(db Pinger, cfg SupervisorConfig, log *logger.Logger) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}

	// Failing pings start at a quarter of the healthy interval and double
	// up to MaxBackoff. The supervisor never gives up.
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.Interval / 4
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = time.Second
	}
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxInterval = cfg.MaxBackoff
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &Supervisor{
		db:      db,
		cfg:     cfg,
		logger:  log.WithField(logger.FieldComponent, "db_supervisor"),
		retry:   retry,
		healthy: true,
	}
}

// Run pings until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		delay := s.Check(ctx)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Check pings once, records the result and returns the delay before the next ping.
func (s *Supervisor) Check(ctx context.Context) time.Duration {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	err := s.db.PingContext(pingCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCheck = time.Now()
	s.lastErr = err
	metrics.SetDBUp(err == nil)

	if err != nil {
		s.failures++
		if s.healthy {
			s.logger.WithError(err).Error("Database became unreachable")
		} else {
			s.logger.WithError(err).WithField("failures", s.failures).Warn("Database still unreachable")
		}
		s.healthy = false
		return s.retry.NextBackOff()
	}

	if !s.healthy {
		s.logger.WithField("failures", s.failures).Info("Database connection recovered")
	}
	s.healthy = true
	s.failures = 0
	s.retry.Reset()
	return s.cfg.Interval
}

// HealthStatus is the supervisor's view of the database.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
	Failures  int       `json:"failures"`
}

// Status returns the latest health snapshot.
func (s *Supervisor) Status() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := HealthStatus{
		Healthy:   s.healthy,
		LastCheck: s.lastCheck,
		Failures:  s.failures,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}
