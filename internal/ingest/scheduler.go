package ingest

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// HistoryPruner trims the search history table.
type HistoryPruner interface {
	PruneSearchHistory(ctx context.Context, keep int) (int64, error)
}

// Scheduler periodically rescans the library and prunes search history.
type Scheduler struct {
	cron        *cron.Cron
	syncer      *Syncer
	pruner      HistoryPruner
	historyKeep int
	logger      *logrus.Logger
}

// NewScheduler registers the maintenance job on schedule, a standard cron
// expression or descriptor such as "@every 6h". pruner may be nil.
func NewScheduler(schedule string, syncer *Syncer, pruner HistoryPruner, historyKeep int, logger *logrus.Logger) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		syncer:      syncer,
		pruner:      pruner,
		historyKeep: historyKeep,
		logger:      logger,
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid rescan schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Rescan scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Rescan scheduler stopped")
}

// RunOnce performs one maintenance pass: a full sync, then history pruning.
// Failures are logged.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Info("Scheduled library rescan triggered")

	if _, err := s.syncer.Sync(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled library rescan failed")
	}

	if s.pruner == nil || s.historyKeep < 1 {
		return
	}
	pruned, err := s.pruner.PruneSearchHistory(ctx, s.historyKeep)
	if err != nil {
		s.logger.WithError(err).Error("Failed to prune search history")
		return
	}
	if pruned > 0 {
		s.logger.WithField("pruned", pruned).Info("Pruned search history")
	}
}
