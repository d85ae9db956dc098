package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/audit"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/repositories"
)

const (
	// DefaultSweepInterval is the minimum time between two sweeps in one process.
	DefaultSweepInterval = 6 * time.Hour
	// DefaultRetentionPeriod is how long resolved envelopes are kept.
	DefaultRetentionPeriod = 30 * 24 * time.Hour
	// DefaultSweepBatchSize caps the envelopes deleted by one sweep.
	DefaultSweepBatchSize = 200
)

// ScopeProvider hands out contexts carrying a database connection.
// *database.ScopeProvider satisfies it.
type ScopeProvider interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

// SweepSettings configures a RetentionSweeper. Zero fields take the defaults.
type SweepSettings struct {
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

func (s SweepSettings) withDefaults() SweepSettings {
	if s.Interval <= 0 {
		s.Interval = DefaultSweepInterval
	}
	if s.Retention <= 0 {
		s.Retention = DefaultRetentionPeriod
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultSweepBatchSize
	}
	return s
}

// RetentionSweeper deletes old resolved envelopes. It is rate limited per
// process and never runs two sweeps at once; the state lives in memory and
// resets on restart. Construct one per process.
type RetentionSweeper struct {
	repo     repositories.PendingWordRepository
	scopes   ScopeProvider
	auditor  *audit.ModerationAuditor
	logger   *zap.Logger
	settings SweepSettings
	now      func() time.Time

	mu      sync.Mutex
	running bool
	lastRun time.Time

	wg sync.WaitGroup
}

// NewRetentionSweeper creates a sweeper. A nil clock means time.Now.
func NewRetentionSweeper(
	repo repositories.PendingWordRepository,
	scopes ScopeProvider,
	auditor *audit.ModerationAuditor,
	settings SweepSettings,
	clock func() time.Time,
	logger *zap.Logger,
) *RetentionSweeper {
	if clock == nil {
		clock = time.Now
	}
	return &RetentionSweeper{
		repo:     repo,
		scopes:   scopes,
		auditor:  auditor,
		logger:   logger.Named("retention-sweeper"),
		settings: settings.withDefaults(),
		now:      clock,
	}
}

// Settings returns the effective settings.
func (s *RetentionSweeper) Settings() SweepSettings {
	return s.settings
}

// TriggerAsync starts a sweep in the background if one is due.
func (s *RetentionSweeper) TriggerAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, _, err := s.RunIfDue(context.Background()); err != nil {
			s.logger.Warn("Retention sweep failed", zap.Error(err))
		}
	}()
}

// Wait blocks until background sweeps started by TriggerAsync have finished.
func (s *RetentionSweeper) Wait() {
	s.wg.Wait()
}

// RunIfDue sweeps unless a sweep is already running or the last one started
// less than the interval ago. ran reports whether a sweep was attempted.
func (s *RetentionSweeper) RunIfDue(ctx context.Context) (deleted int64, ran bool, err error) {
	now := s.now()

	s.mu.Lock()
	if s.running || (!s.lastRun.IsZero() && now.Sub(s.lastRun) < s.settings.Interval) {
		s.mu.Unlock()
		return 0, false, nil
	}
	s.running = true
	s.lastRun = now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	scopedCtx, cleanup, err := s.scopes.WithScope(ctx)
	if err != nil {
		return 0, true, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer cleanup()

	cutoff := now.Add(-s.settings.Retention)
	deleted, err = s.repo.PurgeResolved(scopedCtx, cutoff, s.settings.BatchSize)
	if err != nil {
		return 0, true, err
	}

	if deleted > 0 {
		s.auditor.LogSwept(ctx, deleted, cutoff)
	} else {
		s.logger.Debug("Retention sweep found nothing to delete", zap.Time("cutoff", cutoff))
	}
	return deleted, true, nil
}
