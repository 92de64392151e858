// Package cleanup implements the retention sweep (spec.md §4.10 quarantine
// purge, §4.4 memory TTL, §4.9 commitment expiry): a background loop that
// periodically soft-deletes data past its retention window.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/memory"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/store"
)

// Service periodically enforces retention policies:
//   - Soft-deletes quarantine entries past the configured retention window
//   - Expires overdue commitments
//   - Sweeps memory history idle past its TTL
//
// All operations are idempotent and safe to run from multiple instances.
type Service struct {
	cfg      config.RetentionConfig
	store    *store.Store
	protocol *protocol.Manager
	memory   *memory.Manager
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a retention Service.
func New(cfg config.RetentionConfig, s *store.Store, pm *protocol.Manager, mm *memory.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, store: s, protocol: pm, memory: mm, logger: logger}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup: service started",
		"quarantine_retention_days", s.cfg.QuarantineRetentionDays,
		"sweep_interval", s.cfg.SweepInterval())
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	s.logger.Info("cleanup: service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single retention pass. Exported so recovery/operator
// tooling can trigger an out-of-band sweep.
func (s *Service) RunOnce(ctx context.Context) {
	s.purgeQuarantine(ctx)
	s.expireCommitments(ctx)
	s.sweepMemory(ctx)
}

func (s *Service) purgeQuarantine(ctx context.Context) {
	n, err := s.protocol.Purge(ctx, s.cfg.QuarantineRetention())
	if err != nil {
		s.logger.Error("cleanup: quarantine purge failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("cleanup: purged quarantine entries", "count", n)
	}
}

func (s *Service) expireCommitments(ctx context.Context) {
	n, err := s.store.Commitments.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("cleanup: commitment expiry failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("cleanup: expired overdue commitments", "count", n)
	}
}

func (s *Service) sweepMemory(ctx context.Context) {
	n := s.memory.SweepExpired(ctx)
	if n > 0 {
		s.logger.Info("cleanup: swept expired memory histories", "count", n)
	}
}
