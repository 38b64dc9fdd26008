package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Arknight38/wplacer-autologin/browser"
)

// ErrAtCapacity means every task slot is taken; the caller should retry later.
var ErrAtCapacity = errors.New("server at maximum capacity")

// SolveRequest describes one Turnstile challenge.
type SolveRequest struct {
	URL     string
	Sitekey string
	Action  string
	Cdata   string
}

// Solver runs Turnstile solve tasks against the page pool.
type Solver struct {
	pool     *PagePool
	registry *Registry
	metrics  *Metrics

	acquireTimeout time.Duration
	pollAttempts   int
	pollInterval   time.Duration
}

// Options tune the solve loop. Zero values take the production defaults.
type Options struct {
	AcquireTimeout time.Duration
	PollAttempts   int
	PollInterval   time.Duration
}

// New wires a solver over pool and registry. metrics may be nil.
func New(pool *PagePool, registry *Registry, metrics *Metrics, opts Options) *Solver {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 60
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Solver{
		pool:           pool,
		registry:       registry,
		metrics:        metrics,
		acquireTimeout: opts.AcquireTimeout,
		pollAttempts:   opts.PollAttempts,
		pollInterval:   opts.PollInterval,
	}
}

// Submit admits a task and starts solving it in the background. It returns
// the task id immediately, or ErrAtCapacity when no slot is free.
func (s *Solver) Submit(ctx context.Context, req SolveRequest) (string, error) {
	id := uuid.NewString()
	if !s.registry.TryAdmit(id) {
		return "", ErrAtCapacity
	}
	go s.solve(ctx, id, req)
	return id, nil
}

// Result reads the record for id; see Registry.Read for the consume rules.
func (s *Solver) Result(id string) (*TurnstileResult, bool) {
	return s.registry.Read(id, time.Now())
}

// Stats snapshots registry counters plus idle page count.
func (s *Solver) Stats() (inFlight, maxTasks, pending, available int) {
	inFlight, maxTasks, pending, _ = s.registry.Stats()
	available = s.pool.Available()
	s.metrics.setGauges(available, inFlight)
	return inFlight, maxTasks, pending, available
}

func (s *Solver) solve(ctx context.Context, id string, req SolveRequest) {
	start := time.Now()
	finish := func(res *TurnstileResult) {
		res.ElapsedTime = time.Since(start).Seconds()
		s.registry.Complete(id, res)
		s.metrics.observeSolve(statusLabel(res), res.ElapsedTime)
	}

	pg, err := s.pool.Acquire(ctx, s.acquireTimeout)
	if err != nil {
		log.Printf("[solver] %s: acquire: %v", id, err)
		finish(&TurnstileResult{Status: StatusError, Value: ValueNoPage, Message: err.Error()})
		return
	}
	defer s.pool.Release(pg)

	token, err := s.solveOnPage(ctx, pg.Page, req)
	if err != nil {
		if errors.Is(err, errPollExhausted) {
			log.Printf("[solver] %s: no token after %d attempts", id, s.pollAttempts)
			finish(&TurnstileResult{Status: StatusError, Value: ValueTimeout, Message: "captcha solve timed out"})
			return
		}
		log.Printf("[solver] %s: %v", id, err)
		finish(&TurnstileResult{Status: StatusError, Value: ValueCaptchaFail, Message: err.Error()})
		return
	}

	log.Printf("[solver] %s: solved in %.1fs", id, time.Since(start).Seconds())
	finish(&TurnstileResult{Status: StatusSuccess, Value: token})
}

var errPollExhausted = errors.New("poll attempts exhausted")

func (s *Solver) solveOnPage(ctx context.Context, page browser.Page, req SolveRequest) (string, error) {
	url := req.URL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	html := browser.TurnstilePage(req.Sitekey, req.Action, req.Cdata)
	if err := page.Route(url, html); err != nil {
		return "", fmt.Errorf("route: %w", err)
	}
	if err := page.Goto(url, 30*time.Second); err != nil {
		return "", fmt.Errorf("goto: %w", err)
	}

	for i := 0; i < s.pollAttempts; i++ {
		token, err := page.InputValue("[name=cf-turnstile-response]", time.Second)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil || token == "" {
			// widget sometimes needs a nudge before it issues a token
			_ = page.Click("div.cf-turnstile", time.Second)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return "", errPollExhausted
}

// RunMaintenance owns the periodic sweeps: expired error records every
// sweepEvery, full page recycle every recycleEvery. It exits when ctx is
// cancelled. extra, if non-nil, runs on the sweep tick (phone activation
// expiry rides along).
func (s *Solver) RunMaintenance(ctx context.Context, sweepEvery, recycleEvery time.Duration, extra func(now time.Time)) {
	sweep := time.NewTicker(sweepEvery)
	recycle := time.NewTicker(recycleEvery)
	defer sweep.Stop()
	defer recycle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-sweep.C:
			if n := s.registry.SweepErrors(now); n > 0 {
				log.Printf("[solver] swept %d expired error results", n)
			}
			if extra != nil {
				extra(now)
			}
		case <-recycle.C:
			log.Printf("[pool] periodic recycle starting")
			n := s.pool.Recycle(ctx)
			s.metrics.addRecycled(n)
			log.Printf("[pool] periodic recycle replaced %d pages", n)
		}
	}
}

func statusLabel(res *TurnstileResult) string {
	if res.Status == StatusSuccess {
		return StatusSuccess
	}
	return res.Value
}
