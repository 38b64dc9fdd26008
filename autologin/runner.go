package autologin

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// TorRenewer requests a fresh circuit between accounts.
type TorRenewer interface {
	NewIdentity() error
}

// Runner walks the account list, attempting each pending account and
// persisting progress after every attempt.
type Runner struct {
	State *State
	Flow  *LoginFlow
	Sink  ResultSink
	Tor   TorRenewer // nil disables renewal

	MaxTries int
	DelayMin time.Duration
	DelayMax time.Duration
}

// Run processes every pending account until the list is exhausted or ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	indexes := r.State.PendingIndexes(AccountPending)
	log.Printf("[runner] processing %d accounts", len(indexes))

	for n, idx := range indexes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.State.Accounts[idx].Tries >= r.MaxTries {
			log.Printf("[runner] skipping %s: attempt budget exhausted", r.State.Accounts[idx].Email)
			continue
		}
		r.processAccount(ctx, idx)

		if r.Tor != nil {
			if err := r.Tor.NewIdentity(); err != nil {
				log.Printf("[runner] tor renewal failed: %v", err)
			}
		}

		if n < len(indexes)-1 {
			delay := r.DelayMin + time.Duration(rand.Int63n(int64(r.DelayMax-r.DelayMin)+1))
			log.Printf("[runner] waiting %.1fs before next account", delay.Seconds())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	r.State.Cursor.NextIndex = len(r.State.Accounts)
	if err := r.State.Save(); err != nil {
		return err
	}
	r.logSummary()
	return nil
}

func (r *Runner) processAccount(ctx context.Context, idx int) {
	acc := &r.State.Accounts[idx]
	r.State.Cursor.NextIndex = idx
	saveState(r.State)

	acc.Tries++
	acc.LastAttempt = time.Now().Format(time.RFC3339)
	log.Printf("[runner] account %d/%d: %s (attempt %d)", idx+1, len(r.State.Accounts), acc.Email, acc.Tries)

	start := time.Now()
	outcome, err := r.Flow.Run(ctx, acc.Email, acc.Password)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		acc.Status = AccountError
		acc.LastError = err.Error()
		r.State.Statistics.Failed++
		log.Printf("[runner] FAILED: %s | %v (took %.1fs)", acc.Email, err, elapsed.Seconds())

	case outcome.Status == AccountPhoneNeeded:
		acc.Status = AccountPhoneNeeded
		acc.LastError = outcome.Reason
		r.State.Statistics.PhoneNeeded++
		log.Printf("[runner] PHONE NEEDED: %s - %s", acc.Email, outcome.Reason)

	default:
		cookie := outcome.Cookie
		res := &CookieResult{Email: acc.Email, Domain: cookie.Domain, Value: cookie.Value}
		if err := r.Sink.Deliver(ctx, res); err != nil {
			log.Printf("[runner] result delivery failed for %s: %v", acc.Email, err)
		}
		acc.Status = AccountOK
		acc.LastError = ""
		acc.Result = &LoginResult{
			Domain:         cookie.Domain,
			Value:          cookie.Value,
			CompletionTime: elapsed.Seconds(),
			Timestamp:      time.Now().Format(time.RFC3339),
		}
		r.State.Statistics.Successful++
		log.Printf("[runner] SUCCESS: %s (took %.1fs)", acc.Email, elapsed.Seconds())
	}

	r.State.Statistics.TotalProcessed++
	saveState(r.State)
}

func (r *Runner) logSummary() {
	s := r.State.Statistics
	log.Printf("[runner] summary: ok=%d failed=%d phone_needed=%d processed=%d/%d",
		s.Successful, s.Failed, s.PhoneNeeded, s.TotalProcessed, len(r.State.Accounts))
}

func saveState(st *State) {
	if err := st.Save(); err != nil {
		log.Printf("[state] save failed: %v", err)
	}
}

// Validate checks the runner is fully wired before Run.
func (r *Runner) Validate() error {
	if r.State == nil || r.Flow == nil || r.Sink == nil {
		return fmt.Errorf("runner missing state, flow, or sink")
	}
	if r.MaxTries <= 0 {
		r.MaxTries = 3
	}
	if r.DelayMin <= 0 {
		r.DelayMin = 15 * time.Second
	}
	if r.DelayMax <= r.DelayMin {
		r.DelayMax = r.DelayMin + 15*time.Second
	}
	return nil
}
