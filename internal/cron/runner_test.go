package cronrunner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_RunsJobWithBaseContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(nil, ctx)
	var hits int32
	if _, err := r.Add("tick", "@every 1s", func(got context.Context) {
		if got == ctx {
			atomic.AddInt32(&hits, 1)
		}
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&hits) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	r.Stop()
	if atomic.LoadInt32(&hits) == 0 {
		t.Fatalf("job never ran")
	}
}

func TestRunner_EmptySpecAndBadSpec(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Add("off", "", func(context.Context) {}); err != nil {
		t.Fatalf("empty spec err=%v", err)
	}
	if _, err := r.Add("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("bad spec err=nil want error")
	}
	if r.Entries() != 0 {
		t.Fatalf("entries=%d want=0", r.Entries())
	}
}
