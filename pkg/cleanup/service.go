// Package cleanup provides data retention and maintenance services.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/database"
	"github.com/loglens/loglens/pkg/store"
)

// discoveryRetention bounds the unmatched-event discovery buffer.
const discoveryRetention = 7 * 24 * time.Hour

// partitionsAhead is how many future monthly event partitions to keep ready.
const partitionsAhead = 2

// Service periodically enforces retention policies:
//   - Deletes events (and their scores) past each system's retention days
//   - Prunes stale discovery-buffer entries
//   - Pre-creates monthly event partitions
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	store *store.Store
	cfg   *config.Service
	db    *sql.DB

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new retention maintenance service.
func NewService(st *store.Store, cfg *config.Service, db *sql.DB) *Service {
	return &Service{store: st, cfg: cfg, db: db}
}

// Start launches the background maintenance loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Maintenance service started",
		"default_retention_days", s.cfg.DefaultRetention(ctx),
		"interval", s.cfg.MaintenanceInterval(ctx))
}

// Stop signals the maintenance loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Maintenance service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	// Interval is re-read each cycle so config changes apply without restart.
	timer := time.NewTimer(s.cfg.MaintenanceInterval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runAll(ctx)
			timer.Reset(s.cfg.MaintenanceInterval(ctx))
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.ensurePartitions(ctx)
	s.enforceRetention(ctx)
	s.pruneDiscovery(ctx)
}

func (s *Service) ensurePartitions(ctx context.Context) {
	if s.db == nil {
		return
	}
	if err := database.EnsureMonthlyPartitions(ctx, s.db, time.Now().UTC(), partitionsAhead); err != nil {
		slog.Error("Maintenance: partition creation failed", "error", err)
	}
}

func (s *Service) enforceRetention(ctx context.Context) {
	systems, err := s.store.ListSystems(ctx)
	if err != nil {
		slog.Error("Maintenance: listing systems failed", "error", err)
		return
	}
	defaultDays := s.cfg.DefaultRetention(ctx)

	for _, sys := range systems {
		days := defaultDays
		if sys.RetentionDays != nil && *sys.RetentionDays > 0 {
			days = *sys.RetentionDays
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		count, err := s.store.DeleteEventsBefore(ctx, sys.ID, cutoff)
		if err != nil {
			slog.Error("Maintenance: event deletion failed",
				"system_id", sys.ID, "error", err)
			continue
		}
		if count > 0 {
			slog.Info("Maintenance: deleted expired events",
				"system_id", sys.ID, "count", count, "retention_days", days)
		}
	}
}

func (s *Service) pruneDiscovery(ctx context.Context) {
	count, err := s.store.PruneDiscoveryEntries(ctx, time.Now().UTC().Add(-discoveryRetention))
	if err != nil {
		slog.Error("Maintenance: discovery prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Maintenance: pruned discovery entries", "count", count)
	}
}
