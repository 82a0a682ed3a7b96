package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/elevenpay/axis-payout-service/internal/config"
	payoutsvc "github.com/elevenpay/axis-payout-service/internal/services/payout"
)

// jobTimeout bounds one sweep or snapshot run
const jobTimeout = 2 * time.Minute

// Scheduler runs the background reconciliation jobs: the status poll sweep
// that settles payouts whose callbacks were lost, and the periodic balance
// snapshot. Jobs skip their run if the previous one is still going.
type Scheduler struct {
	cron    *cron.Cron
	service *payoutsvc.Service
	cfg     config.SchedulerConfig
	logger  *zap.Logger
}

// New creates a scheduler; call Start to begin running jobs.
func New(service *payoutsvc.Service, cfg config.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger{logger}),
			cron.Recover(cronLogger{logger}),
		)),
		service: service,
		cfg:     cfg,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(cfg.StatusPollSpec, s.runStatusSweep); err != nil {
		return nil, err
	}
	if cfg.BalanceSnapshotSpec != "" {
		if _, err := s.cron.AddFunc(cfg.BalanceSnapshotSpec, s.runBalanceSnapshot); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins job execution
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		zap.String("status_poll", s.cfg.StatusPollSpec),
		zap.String("balance_snapshot", s.cfg.BalanceSnapshotSpec),
	)
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runStatusSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	moved, err := s.service.SweepUnsettled(ctx, s.cfg.PollMinAge, s.cfg.PollBatchSize)
	if err != nil {
		s.logger.Error("status sweep failed", zap.Error(err))
		return
	}
	if moved > 0 {
		s.logger.Info("status sweep advanced payouts", zap.Int("moved", moved))
	}
}

func (s *Scheduler) runBalanceSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	snapshot, err := s.service.CaptureBalance(ctx, "")
	if err != nil {
		s.logger.Error("balance snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("balance snapshot captured",
		zap.String("balance", snapshot.Balance.String()),
		zap.String("pending_outward", snapshot.PendingOutward.String()),
	)
}

// cronLogger adapts zap to the cron logging interface
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
