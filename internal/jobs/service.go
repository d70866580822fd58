package jobs

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "inspectd/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers   int
	QueueSize int
	Timezone  string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	return out
}

// Job is a unit of scheduled work. Errors are logged and swallowed; a job
// failure never propagates past the worker.
type Job func(ctx context.Context) error

type task struct {
	name string
	run  Job
}

type cronDef struct {
	name    string
	spec    string
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	loc  *time.Location
	c    *cron.Cron
	defs []cronDef

	parser cron.Parser

	// one-shot timers, keyed by job name. onceVer lets a replaced timer's
	// in-flight callback detect it is stale.
	tmu     sync.Mutex
	timers  map[string]*time.Timer
	onceAt  map[string]time.Time
	onceJob map[string]Job
	onceVer map[string]uint64

	// execution
	queue  chan task
	wg     sync.WaitGroup
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timers:  map[string]*time.Timer{},
		onceAt:  map[string]time.Time{},
		onceJob: map[string]Job{},
		onceVer: map[string]uint64{},
	}
}

// Start brings up the worker pool and cron triggering. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.queue = make(chan task, s.cfg.QueueSize)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.Int("workers", s.cfg.Workers),
		logx.Int("crons", len(s.defs)),
	)
}

// Stop halts cron triggering, cancels pending one-shot timers and drains the
// worker pool. Pending jobs that have not fired are dropped; the reload scan
// rebuilds them on next start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.onceAt = map[string]time.Time{}
	s.onceJob = map[string]Job{}
	s.onceVer = map[string]uint64{}
	s.tmu.Unlock()

	// Only the Stop call that swapped s.c to nil reaches this point, so the
	// close cannot double-fire.
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.cancel()

	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) worker() {
	defer s.wg.Done()
	for t := range s.queue {
		s.runTask(t)
	}
}

func (s *Service) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked",
				logx.String("job", t.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	start := time.Now()
	if err := t.run(s.runCtx); err != nil {
		s.log.Warn("job failed",
			logx.String("job", t.name),
			logx.Duration("took", time.Since(start)),
			logx.Err(err),
		)
		return
	}
	s.log.Debug("job done", logx.String("job", t.name), logx.Duration("took", time.Since(start)))
}

// enqueue hands a fired job to the worker pool. A full queue drops the job
// with a warning rather than blocking the trigger path.
func (s *Service) enqueue(t task) {
	defer func() {
		// Stop() may close the queue concurrently with a firing timer.
		if r := recover(); r != nil {
			s.log.Debug("job dropped on shutdown", logx.String("job", t.name))
		}
	}()
	select {
	case s.queue <- t:
	default:
		s.log.Warn("job queue full; dropping",
			logx.String("job", t.name),
			logx.Int("queue_cap", cap(s.queue)),
		)
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Any("err", err))
		return time.Local
	}
	return loc
}

// Apply updates the config. A timezone change restarts cron with the new
// location and re-registers cron definitions; one-shot timers keep their
// absolute fire instants.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg.withDefaults()

	if s.c == nil || oldTZ == newTZ {
		return
	}
	<-s.c.Stop().Done()
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("crons", len(s.defs)))
}
