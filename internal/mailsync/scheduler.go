package mailsync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMinInterval = 20 * time.Second
	DefaultMaxResults  = 25
)

// Runner performs one sync run.
type Runner interface {
	SyncRecent(ctx context.Context, maxResults int) (int, error)
	SyncDrafts(ctx context.Context, maxResults int) (int, error)
}

// Job describes one sync run. Drafts > 0 also mirrors up to that many provider drafts while the run
// holds the gate.
type Job struct {
	Force      bool
	MaxResults int
	Drafts     int
}

// Result counts what a run synced.
type Result struct {
	Messages int `json:"messages"`
	Drafts   int `json:"drafts"`
}

// Options tune the scheduler.
type Options struct {
	// MinInterval is the minimum time between the end of a run and the start of an unforced one.
	MinInterval time.Duration
	// MaxResults bounds runs started with a non-positive limit.
	MaxResults int
	Now        func() time.Time
}

// Scheduler serializes sync runs: at most one runs at a time and unforced runs are throttled.
// Nothing ever waits for the gate; a busy or throttled scheduler declines immediately.
type Scheduler struct {
	runner Runner
	opts   Options
	log    logrus.FieldLogger

	gate sync.Mutex

	mu      sync.Mutex
	lastRun time.Time

	wg sync.WaitGroup
}

func New(runner Runner, opts Options, log logrus.FieldLogger) *Scheduler {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		runner: runner,
		opts:   opts,
		log:    log,
	}
}

// RunSync runs a sync inline and returns the number of synced messages. ran is false when the call
// was throttled or another run holds the gate.
func (s *Scheduler) RunSync(ctx context.Context, force bool, maxResults int) (synced int, ran bool) {
	res, ran := s.Run(ctx, Job{Force: force, MaxResults: maxResults})
	return res.Messages, ran
}

// TriggerBackground starts a sync on its own goroutine and reports whether it did.
func (s *Scheduler) TriggerBackground(force bool, maxResults int) bool {
	return s.Start(Job{Force: force, MaxResults: maxResults})
}

// Run performs job inline under the gate.
func (s *Scheduler) Run(ctx context.Context, job Job) (Result, bool) {
	if !s.acquire(job.Force) {
		return Result{}, false
	}

	return s.run(ctx, job), true
}

// Start performs job on its own goroutine and reports whether it was started.
func (s *Scheduler) Start(job Job) bool {
	if !s.acquire(job.Force) {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.Background(), job)
	}()

	return true
}

// Poll triggers unforced background runs every interval until ctx is done.
func (s *Scheduler) Poll(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.TriggerBackground(false, 0) {
				s.log.Debug("Scheduled sync skipped")
			}
		}
	}
}

// Wait blocks until every background run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// LastRun returns the completion time of the last run, zero when none completed.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// acquire takes the gate unless the call is throttled. The throttle is checked again under the gate
// so a run that just finished is not followed by a second one.
func (s *Scheduler) acquire(force bool) bool {
	if s.throttled(force) {
		return false
	}
	if !s.gate.TryLock() {
		return false
	}
	if s.throttled(force) {
		s.gate.Unlock()
		return false
	}
	return true
}

func (s *Scheduler) throttled(force bool) bool {
	if force {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.lastRun.IsZero() && s.opts.Now().Sub(s.lastRun) < s.opts.MinInterval
}

// run must be called with the gate held and always releases it.
func (s *Scheduler) run(ctx context.Context, job Job) (res Result) {
	defer s.gate.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("Sync run panicked")
			res = Result{}
		}
	}()

	maxResults := job.MaxResults
	if maxResults <= 0 {
		maxResults = s.opts.MaxResults
	}

	synced, err := s.runner.SyncRecent(ctx, maxResults)
	if err != nil {
		s.log.WithError(err).WithField("synced", synced).Warn("Sync run incomplete")
	}
	res.Messages = synced

	if job.Drafts > 0 {
		drafts, err := s.runner.SyncDrafts(ctx, job.Drafts)
		if err != nil {
			s.log.WithError(err).WithField("synced", drafts).Warn("Draft sync incomplete")
		}
		res.Drafts = drafts
	}

	s.mu.Lock()
	s.lastRun = s.opts.Now()
	s.mu.Unlock()

	return res
}
