/*
scheduler.go - Automated accrual and carry-forward scheduler

PURPOSE:
  Periodically posts the month's accruals for every employee in the
  directory and, in January, carries the previous year's unused balances
  forward (capped per leave type).

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Fans out over employees with errgroup, at most Workers at a time
  - Every posting carries an idempotency key, so running twice in the same
    month (or after a crash) posts nothing new
  - A failure for one employee is logged and reported; the others proceed

CONFIGURATION:
  - Interval: How often to run (ACCRUAL_INTERVAL, default 24h, 0 disables)
  - Workers:  Parallel employees (ACCRUAL_WORKERS, default 4)

USAGE:
  scheduler := NewAccrualScheduler(engine, roster, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccruals / RunCarryForward endpoints (manual runs)
  - leave/ledger.go: Accrue and CarryForward postings
*/
package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/leave"
)

// AccrualScheduler runs the ledger jobs for the whole directory.
type AccrualScheduler struct {
	Engine   *leave.Engine
	Roster   Roster
	Interval time.Duration
	Workers  int
	Location *time.Location

	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// AccrualSummary reports one accrual run.
type AccrualSummary struct {
	Year      int               `json:"year"`
	Month     int               `json:"month"`
	Employees int               `json:"employees"`
	Postings  int               `json:"postings"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// CarryForwardSummary reports one carry-forward run.
type CarryForwardSummary struct {
	FromYear  int                       `json:"from_year"`
	Employees int                       `json:"employees"`
	Carried   map[string]map[string]int `json:"carried"`
	Failures  map[string]string         `json:"failures,omitempty"`
}

// NewAccrualScheduler creates a scheduler with the default interval.
func NewAccrualScheduler(engine *leave.Engine, roster Roster, logger *zap.Logger) *AccrualScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccrualScheduler{
		Engine:   engine,
		Roster:   roster,
		Interval: 24 * time.Hour,
		Workers:  4,
		Location: time.UTC,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// Start begins the scheduler. It is a no-op when Interval is zero.
func (s *AccrualScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("started", zap.Duration("interval", s.Interval), zap.Int("workers", s.Workers))
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
		s.cancel = nil
		s.logger.Info("stopped")
	}
}

func (s *AccrualScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *AccrualScheduler) tick(ctx context.Context) {
	now := s.now().In(s.Location)

	if now.Month() == time.January {
		if _, err := s.RunCarryForward(ctx, now.Year()-1); err != nil {
			s.logger.Error("carry forward failed", zap.Error(err))
		}
	}
	if _, err := s.RunAccruals(ctx, now.Year(), now.Month()); err != nil {
		s.logger.Error("accrual failed", zap.Error(err))
	}
}

// RunAccruals posts one month of accrual for every employee.
func (s *AccrualScheduler) RunAccruals(ctx context.Context, year int, month time.Month) (AccrualSummary, error) {
	summary := AccrualSummary{Year: year, Month: int(month)}

	ids, err := s.employeeIDs(ctx)
	if err != nil {
		return summary, err
	}
	summary.Employees = len(ids)

	var mu sync.Mutex
	err = s.forEach(ctx, ids, func(ctx context.Context, id string) {
		posted, err := s.Engine.Accrue(ctx, id, year, month)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("accrual failed", zap.String("employee_id", id), zap.Error(err))
			if summary.Failures == nil {
				summary.Failures = map[string]string{}
			}
			summary.Failures[id] = err.Error()
			return
		}
		summary.Postings += posted
	})

	s.logger.Info("accrual run",
		zap.Int("year", year), zap.Int("month", int(month)),
		zap.Int("employees", summary.Employees), zap.Int("postings", summary.Postings),
		zap.Int("failures", len(summary.Failures)))
	return summary, err
}

// RunCarryForward carries fromYear's capped balances into fromYear+1.
func (s *AccrualScheduler) RunCarryForward(ctx context.Context, fromYear int) (CarryForwardSummary, error) {
	summary := CarryForwardSummary{FromYear: fromYear, Carried: map[string]map[string]int{}}

	ids, err := s.employeeIDs(ctx)
	if err != nil {
		return summary, err
	}
	summary.Employees = len(ids)

	var mu sync.Mutex
	err = s.forEach(ctx, ids, func(ctx context.Context, id string) {
		carried, err := s.Engine.CarryForward(ctx, id, fromYear)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("carry forward failed", zap.String("employee_id", id), zap.Error(err))
			if summary.Failures == nil {
				summary.Failures = map[string]string{}
			}
			summary.Failures[id] = err.Error()
			return
		}
		if len(carried) == 0 {
			return
		}
		byType := make(map[string]int, len(carried))
		for t, days := range carried {
			byType[string(t)] = days
		}
		summary.Carried[id] = byType
	})

	s.logger.Info("carry forward run",
		zap.Int("from_year", fromYear), zap.Int("employees", summary.Employees),
		zap.Int("carried", len(summary.Carried)), zap.Int("failures", len(summary.Failures)))
	return summary, err
}

// forEach runs fn for every id, Workers at a time. It stops early only
// when ctx is cancelled.
func (s *AccrualScheduler) forEach(ctx context.Context, ids []string, fn func(context.Context, string)) error {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range ids {
		id := id
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *AccrualScheduler) employeeIDs(ctx context.Context) ([]string, error) {
	employees, err := s.Roster.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	return ids, nil
}
