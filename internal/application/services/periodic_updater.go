package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gridbase/backend/pkg/constants"
)

// PeriodicUpdater refreshes time dependent formulas on a cron schedule.
type PeriodicUpdater struct {
	service *FormulaFieldService
	logger  *zap.Logger
	cron    *cron.Cron
	timeout time.Duration
	mu      sync.Mutex
	running bool
}

// NewPeriodicUpdater creates an updater running on schedule, a five field
// cron expression or a descriptor such as @every 5m.
func NewPeriodicUpdater(service *FormulaFieldService, schedule string, logger *zap.Logger) (*PeriodicUpdater, error) {
	if schedule == "" {
		schedule = constants.DefaultPeriodicSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &PeriodicUpdater{
		service: service,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	u.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := u.cron.AddFunc(schedule, u.Tick); err != nil {
		return nil, fmt.Errorf("invalid periodic update schedule %q: %w", schedule, err)
	}
	return u, nil
}

// Start schedules the updates. It does not block.
func (u *PeriodicUpdater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return
	}
	u.running = true
	u.cron.Start()
	u.logger.Info("periodic formula updater started")
}

// Stop waits for a running update to finish or ctx to be done.
func (u *PeriodicUpdater) Stop(ctx context.Context) {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	u.mu.Unlock()

	select {
	case <-u.cron.Stop().Done():
	case <-ctx.Done():
	}
	u.logger.Info("periodic formula updater stopped")
}

// Tick runs one refresh.
func (u *PeriodicUpdater) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()
	n, err := u.service.RefreshPeriodicFields(ctx)
	if err != nil {
		u.logger.Error("periodic formula refresh failed", zap.Error(err))
		return
	}
	if n > 0 {
		u.logger.Debug("refreshed periodic formulas", zap.Int("fields", n))
	}
}
