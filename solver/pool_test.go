package solver

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoolAcquireRelease(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(2, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got := pool.Available(); got != 2 {
		t.Fatalf("available after fill = %d, want 2", got)
	}

	pg, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := pool.Available(); got != 1 {
		t.Fatalf("available after acquire = %d, want 1", got)
	}

	// available + checked out stays equal to total
	if pool.Available()+1 != pool.Size() {
		t.Fatalf("pool accounting broken: available=%d size=%d", pool.Available(), pool.Size())
	}

	pool.Release(pg)
	if got := pool.Available(); got != 2 {
		t.Fatalf("available after release = %d, want 2", got)
	}
}

func TestPoolAcquireTimeout(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}

	pg, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = pool.Acquire(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrNoPageAvailable) {
		t.Fatalf("second acquire error = %v, want ErrNoPageAvailable", err)
	}

	pool.Release(pg)
	if _, err := pool.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestPoolReleaseOnFullPoolClosesPage(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(1, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}

	extra := newFakePoolPage("")
	pool.Release(extra)

	if got := pool.Available(); got != 1 {
		t.Fatalf("available = %d, want 1", got)
	}
	if !extra.Page.(*fakePage).closed {
		t.Fatal("extra page should have been closed")
	}
}

func TestPoolRecycleReplacesIdlePages(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(2, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	before := f.count()

	n := pool.Recycle(context.Background())
	if n != 2 {
		t.Fatalf("recycled %d pages, want 2", n)
	}
	if got := pool.Available(); got != 2 {
		t.Fatalf("available after recycle = %d, want 2", got)
	}
	if f.count() != before+2 {
		t.Fatalf("factory calls = %d, want %d", f.count(), before+2)
	}
}

func TestPoolRecycleSkipsCheckedOutPages(t *testing.T) {
	f := &countingFactory{}
	pool := NewPagePool(2, f.make)
	if err := pool.Fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}

	pg, err := pool.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if n := pool.Recycle(context.Background()); n != 1 {
		t.Fatalf("recycled %d pages, want 1", n)
	}

	pool.Release(pg)
	if got := pool.Available(); got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}
}
