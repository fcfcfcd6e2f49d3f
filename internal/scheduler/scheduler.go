// Package scheduler runs the cron-driven deadline sweep: it periodically
// queries analytics for overdue and soon-due tickets and publishes the
// corresponding deadline events on the bus.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/waggle-io/waggle/internal/analytics"
	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/pkg/protocol"
)

// DefaultSchedule is the sweep cadence when none is configured.
const DefaultSchedule = "@every 10m"

// Sweeper publishes deadline events for tickets approaching or past due.
type Sweeper struct {
	mu          sync.Mutex
	cron        *cron.Cron
	analytics   *analytics.Service
	bus         *bus.Bus
	horizonDays int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a sweeper. horizonDays bounds how far ahead a due date counts
// as "approaching".
func New(a *analytics.Service, b *bus.Bus, horizonDays int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if horizonDays <= 0 {
		horizonDays = 3
	}
	return &Sweeper{
		cron:        cron.New(),
		analytics:   a,
		bus:         b,
		horizonDays: horizonDays,
		logger:      logger,
		now:         time.Now,
	}
}

// Schedule registers the sweep on a cron expression (5 fields) or a
// predefined schedule like @every 10m.
func (s *Sweeper) Schedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	s.logger.Info("deadline sweep scheduled", "schedule", schedule, "horizon_days", s.horizonDays)
	return nil
}

// Start begins the cron scheduler. Blocks until context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Sweep runs one pass immediately. Overdue tickets publish ticket.overdue
// at high urgency; tickets due within the horizon publish
// ticket.deadline_approaching at medium urgency. Done tickets never appear
// in either query.
func (s *Sweeper) Sweep() {
	now := s.now()

	overdue, err := s.analytics.Overdue()
	if err != nil {
		s.logger.Error("deadline sweep: overdue query failed", "error", err)
		return
	}
	for _, t := range overdue {
		s.bus.Publish(protocol.Event{
			ID:        uuid.NewString(),
			Type:      protocol.EventTicketOverdue,
			Timestamp: now,
			Source:    protocol.SourceScheduler,
			Urgency:   protocol.UrgencyHigh,
			TicketID:  t.ID,
			DueDate:   t.DueDate,
		})
	}

	upcoming, err := s.analytics.UpcomingDeadlines(s.horizonDays)
	if err != nil {
		s.logger.Error("deadline sweep: upcoming query failed", "error", err)
		return
	}
	for _, t := range upcoming {
		s.bus.Publish(protocol.Event{
			ID:        uuid.NewString(),
			Type:      protocol.EventTicketDeadlineApproaching,
			Timestamp: now,
			Source:    protocol.SourceScheduler,
			Urgency:   protocol.UrgencyMedium,
			TicketID:  t.ID,
			DueDate:   t.DueDate,
		})
	}

	if len(overdue) > 0 || len(upcoming) > 0 {
		s.logger.Info("deadline sweep", "overdue", len(overdue), "approaching", len(upcoming))
	}
}
