package pauseregistry

import (
	"sync"
	"testing"
)

func TestStartsEmpty(t *testing.T) {
	r := New()
	if r.IsPaused("foo") || r.IsPaused("bar") {
		t.Fatal("new registry should have no paused indexes")
	}
}

func TestPauseResume(t *testing.T) {
	r := New()
	r.Pause("foo")
	if !r.IsPaused("foo") {
		t.Fatal("expected foo to be paused")
	}
	r.Resume("foo")
	if r.IsPaused("foo") {
		t.Fatal("expected foo to no longer be paused")
	}
}

func TestPauseIsPerIndex(t *testing.T) {
	r := New()
	r.Pause("foo")
	if !r.IsPaused("foo") || r.IsPaused("bar") {
		t.Fatal("pause must be scoped to a single index")
	}
}

func TestDoublePauseResumeIdempotent(t *testing.T) {
	r := New()
	r.Pause("foo")
	r.Pause("foo")
	if !r.IsPaused("foo") {
		t.Fatal("double pause should still leave foo paused")
	}
	r.Resume("foo")
	r.Resume("foo")
	if r.IsPaused("foo") {
		t.Fatal("double resume should leave foo unpaused")
	}
}

func TestConcurrentSafe(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.Pause("shared")
			} else {
				r.Resume("shared")
			}
		}(i)
	}
	wg.Wait()
	_ = r.IsPaused("shared")
}
