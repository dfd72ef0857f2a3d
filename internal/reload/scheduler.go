package reload

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/common/logging"
)

// Scheduler runs Reloader.ReloadAll on a cron schedule
type Scheduler struct {
	reloader *Reloader
	schedule string
	timeout  time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	runs    int
	lastErr error
}

// NewScheduler validates schedule (five-field cron or a descriptor such as
// "@every 10m") without starting anything
func NewScheduler(reloader *Reloader, schedule string, timeout time.Duration, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if _, err := parser().Parse(schedule); err != nil {
		return nil, errors.ConfigError("invalid reload schedule: " + err.Error())
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		reloader: reloader,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.WithFields(logging.Component("reload_scheduler")),
	}, nil
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Start begins running reloads. Calling Start twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithParser(parser()), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(s.schedule, s.run)
	if err != nil {
		return errors.ConfigError("invalid reload schedule: " + err.Error())
	}
	c.Start()
	s.cron, s.entry = c, id

	s.logger.Info("Reload scheduler started",
		logging.Field{"schedule", s.schedule},
		logging.Field{"next_run", c.Entry(id).Next.Format(time.RFC3339)},
	)
	return nil
}

// Stop halts the schedule and waits for a running reload to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("Reload scheduler stopped")
}

// Next returns the time of the next scheduled reload, or the zero time when stopped
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Runs returns how many reloads have completed and the error of the last one
func (s *Scheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := s.reloader.ReloadAll(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled reload finished with errors", err, logging.Field{"duration", time.Since(start).String()})
		return
	}
	s.logger.Debug("Scheduled reload finished", logging.Field{"duration", time.Since(start).String()})
}
