package solver

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastOptions() Options {
	return Options{
		AcquireTimeout: 200 * time.Millisecond,
		PollAttempts:   5,
		PollInterval:   10 * time.Millisecond,
	}
}

func waitTerminal(t *testing.T, s *Solver, id string) *TurnstileResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, ok := s.Result(id)
		if !ok {
			t.Fatalf("task %s disappeared before terminal read", id)
		}
		if res.Status != StatusProcess {
			return res
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return nil
}

// waitAvailable tolerates the tiny window between a task's terminal record
// appearing and its deferred page release running.
func waitAvailable(t *testing.T, pool *PagePool, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pool.Available() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("available = %d, want %d", pool.Available(), want)
}

func TestSolveSuccess(t *testing.T) {
	f := &countingFactory{token: "tok-123"}
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	reg := NewRegistry(1)
	s := New(pool, reg, nil, fastOptions())

	id, err := s.Submit(context.Background(), SolveRequest{URL: "https://example.com", Sitekey: "key"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := waitTerminal(t, s, id)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s), want success", res.Status, res.Message)
	}
	if res.Value != "tok-123" {
		t.Fatalf("value = %q, want token", res.Value)
	}
	if res.ElapsedTime < 0 {
		t.Fatalf("elapsed = %f, want >= 0", res.ElapsedTime)
	}

	// page went back to the pool
	waitAvailable(t, pool, 1)
}

func TestSolveTimeoutWhenTokenNeverArrives(t *testing.T) {
	f := &countingFactory{} // pages never produce a token
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	reg := NewRegistry(1)
	s := New(pool, reg, nil, fastOptions())

	id, err := s.Submit(context.Background(), SolveRequest{URL: "https://example.com", Sitekey: "key"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := waitTerminal(t, s, id)
	if res.Status != StatusError || res.Value != ValueTimeout {
		t.Fatalf("got %s/%s, want error/timeout", res.Status, res.Value)
	}
	// page must be released even on timeout
	waitAvailable(t, pool, 1)
}

func TestSolveNoPageAvailable(t *testing.T) {
	f := &countingFactory{token: "tok"}
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	// registry admits two tasks but the pool only has one page
	reg := NewRegistry(2)
	s := New(pool, reg, nil, fastOptions())

	// hold the only page so the task starves
	held, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	id, err := s.Submit(context.Background(), SolveRequest{URL: "https://example.com", Sitekey: "key"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := waitTerminal(t, s, id)
	if res.Status != StatusError || res.Value != ValueNoPage {
		t.Fatalf("got %s/%s, want error/no_page_available", res.Status, res.Value)
	}

	pool.Release(held)
}

func TestSubmitAtCapacity(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	reg := NewRegistry(1)
	s := New(pool, reg, nil, fastOptions())

	if _, err := s.Submit(context.Background(), SolveRequest{URL: "u", Sitekey: "k"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := s.Submit(context.Background(), SolveRequest{URL: "u", Sitekey: "k"})
	if !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("second submit error = %v, want ErrAtCapacity", err)
	}
}

func TestSolveCaptchaFailOnNavigationError(t *testing.T) {
	factory := func() (*PoolPage, error) {
		return &PoolPage{
			Page:    &fakePage{gotoErr: errors.New("net::ERR_CONNECTION_RESET")},
			Context: &fakeContext{},
		}, nil
	}
	pool := NewPagePool(1, factory)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	reg := NewRegistry(1)
	s := New(pool, reg, nil, fastOptions())

	id, err := s.Submit(context.Background(), SolveRequest{URL: "https://example.com", Sitekey: "key"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res := waitTerminal(t, s, id)
	if res.Status != StatusError || res.Value != ValueCaptchaFail {
		t.Fatalf("got %s/%s, want error/captcha_fail", res.Status, res.Value)
	}
	if res.Message == "" {
		t.Fatal("captcha_fail should carry the underlying message")
	}
}
