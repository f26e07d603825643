// Package scheduler fires the recurring jobs on fixed intervals. Every tick
// is guarded by the job lock, so multiple instances can share one schedule:
// whichever acquires the lock runs, the rest skip the cycle.
package scheduler

import (
	"context"
	"sync"
	"time"

	"mtg-tracker/internal/lock"
	"mtg-tracker/internal/services"

	"go.uber.org/zap"
)

type Scheduler struct {
	jobLock *lock.JobLock
	ingest  *services.BulkIngestService
	alerts  *services.AlertService

	ingestInterval time.Duration
	alertInterval  time.Duration

	log    *zap.SugaredLogger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(jobLock *lock.JobLock, ingest *services.BulkIngestService, alerts *services.AlertService,
	ingestInterval, alertInterval time.Duration, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		jobLock:        jobLock,
		ingest:         ingest,
		alerts:         alerts,
		ingestInterval: ingestInterval,
		alertInterval:  alertInterval,
		log:            log.With("service", "scheduler"),
	}
}

// Start launches both job loops in the background.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, "ingest", s.ingestInterval, s.runIngest)
	go s.loop(ctx, "alerts", s.alertInterval, s.runAlerts)

	s.log.Infow("scheduler started", "ingest_interval", s.ingestInterval, "alert_interval", s.alertInterval)
}

// Stop cancels both loops and waits for any in-flight cycle to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job string, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ran, err := s.jobLock.WithLock(ctx, job, func() error {
				run(ctx)
				return nil
			})
			if err != nil {
				s.log.Errorw("scheduled job failed", "job", job, "error", err)
				continue
			}
			if !ran {
				// Another instance holds this cycle; the next tick retries.
				s.log.Debugw("skipping cycle, lock held elsewhere", "job", job)
			}
		}
	}
}

func (s *Scheduler) runIngest(ctx context.Context) {
	result, err := s.ingest.Ingest(ctx, 0)
	if err != nil {
		s.log.Errorw("scheduled ingestion failed", "error", err)
		return
	}
	s.log.Infow("scheduled ingestion complete", "items_processed", result.ItemsProcessed, "prices_updated", result.PricesUpdated)
}

func (s *Scheduler) runAlerts(ctx context.Context) {
	s.alerts.EvaluateAlerts(ctx)
}
