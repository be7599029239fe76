package lanes

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestClassForCronVsDefault(t *testing.T) {
	if ClassFor("cron:nightly") != ClassCron {
		t.Fatalf("expected cron:* to map to cron class")
	}
	if ClassFor("discord:1") != ClassDefault {
		t.Fatalf("expected non-cron key to map to default class")
	}
}

func TestEnqueueWithSessionRunsFunction(t *testing.T) {
	s := New(nil)
	result, err := s.EnqueueWithSession(context.Background(), "discord:1", ClassDefault, func() (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(int) != 42 {
		t.Fatalf("expected result 42, got %v", result)
	}
}

func TestPerKeyLaneSerializesStartOrder(t *testing.T) {
	s := New(map[string]int{ClassDefault: 4})
	var mu sync.Mutex
	var startOrder []int

	var wg sync.WaitGroup
	n := 10
	started := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			// stagger enqueue to make submission order deterministic
			time.Sleep(time.Duration(i) * time.Millisecond)
			s.EnqueueWithSession(context.Background(), "same-key", ClassDefault, func() (any, error) {
				mu.Lock()
				startOrder = append(startOrder, i)
				mu.Unlock()
				started <- struct{}{}
				return nil, nil
			})
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if startOrder[i] != i {
			t.Fatalf("expected strict FIFO start order, got %v", startOrder)
		}
	}
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	s := New(map[string]int{ClassDefault: 4})
	var wg sync.WaitGroup
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		key := key
		go func() {
			defer wg.Done()
			s.EnqueueWithSession(context.Background(), key, ClassDefault, func() (any, error) {
				entered <- struct{}{}
				<-release
				return nil, nil
			})
		}()
	}

	// both distinct-key tasks should be able to enter concurrently
	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-timeout:
			t.Fatalf("expected both distinct-key tasks to run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestClassConcurrencyCapLimitsParallelism(t *testing.T) {
	s := New(map[string]int{ClassDefault: 1})
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	var wg sync.WaitGroup

	for _, key := range []string{"x", "y"} {
		wg.Add(1)
		key := key
		go func() {
			defer wg.Done()
			s.EnqueueWithSession(context.Background(), key, ClassDefault, func() (any, error) {
				entered <- struct{}{}
				<-release
				return nil, nil
			})
		}()
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("expected first task to enter")
	}
	select {
	case <-entered:
		t.Fatalf("expected class cap of 1 to block the second distinct-key task")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	wg.Wait()
}

func TestCancellationDropsQueuedCaller(t *testing.T) {
	s := New(map[string]int{ClassDefault: 1})
	release := make(chan struct{})
	ranSecond := make(chan struct{}, 1)

	// occupy the lane
	go s.EnqueueWithSession(context.Background(), "key", ClassDefault, func() (any, error) {
		<-release
		return nil, nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := s.EnqueueWithSession(ctx, "key", ClassDefault, func() (any, error) {
			ranSecond <- struct{}{}
			return nil, nil
		})
		if err == nil {
			t.Errorf("expected cancelled caller to return an error")
		}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	close(release)
	select {
	case <-ranSecond:
		t.Fatalf("cancelled caller must not run its function")
	case <-time.After(200 * time.Millisecond):
	}
}
