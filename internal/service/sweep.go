package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepScheduler runs the certificate sweep on a cron schedule.
type SweepScheduler struct {
	certificates *CertificateService
	schedule     string
	logger       *zap.Logger
	cron         *cron.Cron
}

// NewSweepScheduler constructs a scheduler around the certificate service.
func NewSweepScheduler(certificates *CertificateService, schedule string, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		certificates: certificates,
		schedule:     schedule,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Start registers the sweep job and begins the cron loop.
func (s *SweepScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		// Overdue marking stays with the admin endpoint; the daily job only
		// auto-rejects and reminds.
		if _, err := s.certificates.RunSweep(ctx, time.Now()); err != nil {
			s.logger.Error("scheduled certificate sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("certificate sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
