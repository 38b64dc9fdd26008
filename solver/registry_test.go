package solver

import (
	"testing"
	"time"
)

func TestRegistryAdmission(t *testing.T) {
	r := NewRegistry(2)

	if !r.TryAdmit("a") {
		t.Fatal("first admit should succeed")
	}
	if !r.TryAdmit("b") {
		t.Fatal("second admit should succeed")
	}
	if r.TryAdmit("c") {
		t.Fatal("admit at capacity should fail")
	}

	// rejection leaves no record behind
	if _, ok := r.Read("c", time.Now()); ok {
		t.Fatal("rejected task should have no record")
	}

	inFlight, max, pending, _ := r.Stats()
	if inFlight != 2 || max != 2 || pending != 2 {
		t.Fatalf("stats = (%d,%d,%d), want (2,2,2)", inFlight, max, pending)
	}

	// a slot frees once its task completes
	r.Complete("a", &TurnstileResult{Status: StatusSuccess, Value: "tok"})
	if !r.TryAdmit("c") {
		t.Fatal("admit after completion should succeed")
	}
}

func TestRegistryTerminalReadConsumes(t *testing.T) {
	r := NewRegistry(1)
	r.TryAdmit("a")
	r.Complete("a", &TurnstileResult{Status: StatusSuccess, Value: "tok"})

	res, ok := r.Read("a", time.Now())
	if !ok {
		t.Fatal("first read should find the record")
	}
	if res.Status != StatusSuccess || res.Value != "tok" {
		t.Fatalf("got %+v, want success/tok", res)
	}

	if _, ok := r.Read("a", time.Now()); ok {
		t.Fatal("second read should not find the consumed record")
	}
}

func TestRegistryPendingReadDoesNotConsume(t *testing.T) {
	r := NewRegistry(1)
	r.TryAdmit("a")

	for i := 0; i < 3; i++ {
		res, ok := r.Read("a", time.Now())
		if !ok || res.Status != StatusProcess {
			t.Fatalf("read %d: got (%+v,%v), want pending record", i, res, ok)
		}
	}
}

func TestRegistryStaleConversion(t *testing.T) {
	r := NewRegistry(1)
	r.TryAdmit("a")

	// within the staleness window the record stays pending
	res, ok := r.Read("a", time.Now().Add(4*time.Minute))
	if !ok || res.Status != StatusProcess {
		t.Fatalf("got (%+v,%v), want pending", res, ok)
	}

	// past the window it converts to a terminal timeout, consumed on read
	res, ok = r.Read("a", time.Now().Add(6*time.Minute))
	if !ok {
		t.Fatal("stale read should find the record")
	}
	if res.Status != StatusError || res.Value != ValueTimeout {
		t.Fatalf("got %+v, want error/timeout", res)
	}
	if _, ok := r.Read("a", time.Now()); ok {
		t.Fatal("converted record should be consumed")
	}
}

func TestRegistryCompleteAfterStaleReadKeepsCounterExact(t *testing.T) {
	r := NewRegistry(1)
	r.TryAdmit("a")

	// client consumed the stale-converted record before the worker finished
	if _, ok := r.Read("a", time.Now().Add(6*time.Minute)); !ok {
		t.Fatal("stale read should succeed")
	}

	r.Complete("a", &TurnstileResult{Status: StatusSuccess, Value: "late"})

	// the slot frees exactly once and the late result is not resurrected
	inFlight, _, _, stored := r.Stats()
	if inFlight != 0 {
		t.Fatalf("inFlight = %d, want 0", inFlight)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
}

func TestRegistrySweepErrors(t *testing.T) {
	r := NewRegistry(3)
	r.TryAdmit("old")
	r.TryAdmit("new")
	r.TryAdmit("good")

	r.Complete("old", &TurnstileResult{Status: StatusError, Value: ValueCaptchaFail})
	r.Complete("new", &TurnstileResult{Status: StatusError, Value: ValueCaptchaFail})
	r.Complete("good", &TurnstileResult{Status: StatusSuccess, Value: "tok"})

	// age only the first error record past retention
	r.mu.Lock()
	r.results["old"].StartTime = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	if n := r.SweepErrors(time.Now()); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := r.Read("old", time.Now()); ok {
		t.Fatal("old error record should be gone")
	}
	if _, ok := r.Read("new", time.Now()); !ok {
		t.Fatal("fresh error record should survive the sweep")
	}
	if _, ok := r.Read("good", time.Now()); !ok {
		t.Fatal("unread success should survive the sweep")
	}
}
