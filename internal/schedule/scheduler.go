package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/metrics"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	RunNow(name string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs jobs on cron specs. A job never overlaps itself: a
// tick that arrives while the previous run is active is skipped.
type CronScheduler struct {
	cron *cron.Cron

	mu    sync.Mutex
	ctx   context.Context
	runs  map[string]func()
	specs map[string]string
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:  cron.New(cron.WithParser(parser)),
		ctx:   context.Background(),
		runs:  make(map[string]func()),
		specs: make(map[string]string),
	}
}

// AddJob registers job under spec. An empty spec registers the job for
// RunNow only.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	run := c.wrap(job, spec)
	if spec != "" {
		if _, err := c.cron.AddFunc(spec, run); err != nil {
			logger.Error("schedule job failed", zap.Error(err))
			return err
		}
		logger.Info("job scheduled")
	}
	c.runs[name] = run
	c.specs[name] = spec
	return nil
}

// RunNow starts a registered job in the background.
func (c *CronScheduler) RunNow(name string) error {
	c.mu.Lock()
	run, ok := c.runs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	go run()
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).With(
				zap.String("job", job.Name()),
				zap.String("spec", spec),
			).Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.runContext()
		logger := logutil.GetLogger(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		metrics.ObserveStage("job_"+job.Name(), start, err)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
