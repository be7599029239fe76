package pool

import (
	"context"
	"errors"
	"testing"
)

type fakeHandle struct {
	stopped bool
	stopErr error
}

func (f *fakeHandle) Stop() error {
	f.stopped = true
	return f.stopErr
}

func TestGetCreatesOnceAndReusesAcrossCalls(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, key string) (Handle, error) {
		calls++
		return &fakeHandle{}, nil
	})

	h1, err := p.Get(context.Background(), "discord:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := p.Get(context.Background(), "discord:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected same handle reused for same key")
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked exactly once, got %d", calls)
	}
}

func TestGetCreatesSeparateHandlesForDifferentKeys(t *testing.T) {
	p := New(func(ctx context.Context, key string) (Handle, error) {
		return &fakeHandle{}, nil
	})

	h1, _ := p.Get(context.Background(), "a")
	h2, _ := p.Get(context.Background(), "b")
	if h1 == h2 {
		t.Fatalf("expected distinct handles for distinct keys")
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 pooled entries, got %d", p.Len())
	}
}

func TestGetPropagatesFactoryError(t *testing.T) {
	wantErr := errors.New("spawn failed")
	p := New(func(ctx context.Context, key string) (Handle, error) {
		return nil, wantErr
	})

	_, err := p.Get(context.Background(), "a")
	if err != wantErr {
		t.Fatalf("expected factory error propagated, got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected no entry stored on factory error")
	}
}

func TestEvictRemovesWithoutStopping(t *testing.T) {
	h := &fakeHandle{}
	p := New(func(ctx context.Context, key string) (Handle, error) { return h, nil })
	p.Get(context.Background(), "a")

	p.Evict("a")

	if p.Len() != 0 {
		t.Fatalf("expected entry removed")
	}
	if h.stopped {
		t.Fatalf("expected evict not to call Stop")
	}
}

func TestStopRemovesAndStopsHandle(t *testing.T) {
	h := &fakeHandle{}
	p := New(func(ctx context.Context, key string) (Handle, error) { return h, nil })
	p.Get(context.Background(), "a")

	if err := p.Stop("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.stopped {
		t.Fatalf("expected Stop to be called on handle")
	}
	if p.Len() != 0 {
		t.Fatalf("expected entry removed after stop")
	}
}

func TestStopAllStopsEveryHandle(t *testing.T) {
	h1, h2 := &fakeHandle{}, &fakeHandle{}
	calls := 0
	p := New(func(ctx context.Context, key string) (Handle, error) {
		calls++
		if calls == 1 {
			return h1, nil
		}
		return h2, nil
	})
	p.Get(context.Background(), "a")
	p.Get(context.Background(), "b")

	p.StopAll()

	if !h1.stopped || !h2.stopped {
		t.Fatalf("expected both handles stopped")
	}
	if p.Len() != 0 {
		t.Fatalf("expected pool empty after StopAll")
	}
}

func TestKeysReturnsSnapshot(t *testing.T) {
	p := New(func(ctx context.Context, key string) (Handle, error) { return &fakeHandle{}, nil })
	p.Get(context.Background(), "a")
	p.Get(context.Background(), "b")

	keys := p.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
