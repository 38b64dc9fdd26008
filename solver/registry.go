package solver

import (
	"sync"
	"time"
)

// Task statuses. A record moves from StatusProcess to exactly one of the
// terminal statuses and is deleted on the first read that observes it
// terminal.
const (
	StatusProcess = "process"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Terminal error values.
const (
	ValueNoPage      = "no_page_available"
	ValueCaptchaFail = "captcha_fail"
	ValueTimeout     = "timeout"
)

// TurnstileResult is one task's record in the registry.
type TurnstileResult struct {
	Status      string    `json:"status"`
	StartTime   time.Time `json:"-"`
	ElapsedTime float64   `json:"elapsed_time,omitempty"`
	Value       string    `json:"value,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Registry tracks task records and the in-flight counter. The mutex makes
// the capacity check-and-increment atomic with record creation.
type Registry struct {
	mu       sync.Mutex
	results  map[string]*TurnstileResult
	inFlight int
	maxTasks int
	staleAge time.Duration
	errorAge time.Duration
}

// NewRegistry creates a registry admitting at most maxTasks concurrent tasks.
func NewRegistry(maxTasks int) *Registry {
	return &Registry{
		results:  make(map[string]*TurnstileResult),
		maxTasks: maxTasks,
		staleAge: 5 * time.Minute,
		errorAge: time.Hour,
	}
}

// TryAdmit reserves a slot and creates the pending record, or reports the
// registry full with no side effect.
func (r *Registry) TryAdmit(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight >= r.maxTasks {
		return false
	}
	r.inFlight++
	r.results[id] = &TurnstileResult{
		Status:    StatusProcess,
		StartTime: time.Now(),
	}
	return true
}

// Complete records the terminal outcome for id and frees its slot. The slot
// is freed exactly once per admitted task even when the record has already
// been consumed or converted by a stale read.
func (r *Registry) Complete(id string, res *TurnstileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight > 0 {
		r.inFlight--
	}
	if old, ok := r.results[id]; ok && old.Status == StatusProcess {
		res.StartTime = old.StartTime
		r.results[id] = res
	}
}

// Read looks up id. ok=false means the id is unknown or already consumed.
// A pending record older than the staleness ceiling converts to a terminal
// timeout error on this read. Terminal records are deleted as they are
// returned, so each outcome is observed once.
func (r *Registry) Read(id string, now time.Time) (res *TurnstileResult, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.results[id]
	if !ok {
		return nil, false
	}
	if rec.Status == StatusProcess {
		if now.Sub(rec.StartTime) <= r.staleAge {
			return rec, true
		}
		rec = &TurnstileResult{
			Status:      StatusError,
			StartTime:   rec.StartTime,
			ElapsedTime: now.Sub(rec.StartTime).Seconds(),
			Value:       ValueTimeout,
			Message:     "task exceeded maximum pending time",
		}
	}
	delete(r.results, id)
	return rec, true
}

// SweepErrors drops error records older than the retention window and
// returns how many were removed. Unread successes stay until consumed.
func (r *Registry) SweepErrors(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.results {
		if rec.Status == StatusError && now.Sub(rec.StartTime) > r.errorAge {
			delete(r.results, id)
			removed++
		}
	}
	return removed
}

// Stats snapshots the registry for /status.
func (r *Registry) Stats() (inFlight, maxTasks, pending, stored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.results {
		if rec.Status == StatusProcess {
			pending++
		}
	}
	return r.inFlight, r.maxTasks, pending, len(r.results)
}
