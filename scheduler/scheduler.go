// Package scheduler runs background maintenance: keeping the auth session
// fresh and reporting the deletion-queue and journal state.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"casalista/config"
	"casalista/logging"
	"casalista/models"
	"casalista/storage"
)

// Refresher renews the current auth session; implemented by the GoTrue
// client.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Scheduler struct {
	cfg     *config.SchedulerConfig
	auth    Refresher
	docs    storage.DocStore
	journal *storage.JournalStore
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
}

func New(cfg *config.SchedulerConfig, auth Refresher, docs storage.DocStore, journal *storage.JournalStore) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		auth:    auth,
		docs:    docs,
		journal: journal,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.runMaintenance(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runMaintenance(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	log.Println("No schedule configured, maintenance disabled")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	logging.Debugf("Maintenance run starting")

	if s.auth != nil {
		if err := s.auth.Refresh(ctx); err != nil {
			log.Printf("Warning: session refresh failed: %v", err)
			if s.journal != nil {
				s.journal.LogAuthEvent(models.AuthEventError, "", err.Error())
			}
		} else if s.journal != nil {
			s.journal.LogAuthEvent(models.AuthEventRefresh, "", "")
		}
	}

	s.reportQueueDepth(ctx)
	s.reportUploadRuns()
}

// reportQueueDepth logs the imagesToDelete backlog so a growing queue is
// visible before the external cleanup process falls behind.
func (s *Scheduler) reportQueueDepth(ctx context.Context) {
	if s.docs == nil {
		return
	}
	docs, err := s.docs.QueryDocuments(ctx, models.CollectionImagesToDelete, storage.Filter{}, nil)
	if err != nil {
		log.Printf("Warning: deletion queue check failed: %v", err)
		return
	}
	if len(docs) > 0 {
		log.Printf("Deletion queue: %d images awaiting cleanup", len(docs))
	}
}

func (s *Scheduler) reportUploadRuns() {
	if s.journal == nil {
		return
	}
	runs, err := s.journal.RecentUploadRuns(20)
	if err != nil {
		log.Printf("Warning: journal read failed: %v", err)
		return
	}

	var uploaded, failed int
	for _, run := range runs {
		uploaded += run.Uploaded
		failed += run.Failed
	}
	if uploaded > 0 || failed > 0 {
		log.Printf("Last %d upload runs: %d uploaded, %d failed", len(runs), uploaded, failed)
	}
}
