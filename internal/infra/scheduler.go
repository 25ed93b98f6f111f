package infra

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Prober runs one round of upstream health probes
type Prober interface {
	ProbeAll(ctx context.Context)
}

// Scheduler runs periodic upstream health probes
type Scheduler struct {
	cron     *cron.Cron
	prober   Prober
	schedule string
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewScheduler creates a new scheduler.
// schedule accepts standard cron specs and descriptors such as "@every 30s".
func NewScheduler(prober Prober, schedule string, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	if schedule == "" {
		schedule = "@every 30s"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		prober:   prober,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start registers the probe job, runs it once immediately and starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.WithField("schedule", s.schedule).Info("Starting health probe scheduler...")

	if _, err := s.cron.AddFunc(s.schedule, s.runProbes); err != nil {
		return err
	}

	go s.runProbes()

	s.cron.Start()
	s.logger.Info("[OK] Scheduler started")
	return nil
}

func (s *Scheduler) runProbes() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.prober.ProbeAll(ctx)
}

// Stop stops the scheduler and waits for a running probe to finish
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	s.logger.Info("[OK] Scheduler stopped")
}
