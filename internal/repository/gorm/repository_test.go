package gormrepository

import (
	"context"
	"testing"
	"time"

	"autopilot/internal/repository"
)

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if err := s.SaveDecision(ctx, nil); err != nil {
		t.Fatalf("save decision err=%v", err)
	}
	if items, err := s.ListExecutions(ctx, repository.ListExecutionsParams{}); err != nil || items != nil {
		t.Fatalf("list executions=%v err=%v", items, err)
	}
	if n, err := s.DeleteExecutionsBefore(ctx, time.Time{}); err != nil || n != 0 {
		t.Fatalf("delete n=%d err=%v", n, err)
	}
	item, err := s.GetSystemSettingByKey(ctx, "feature.auto_execute")
	if err != nil || item != nil {
		t.Fatalf("setting=%v err=%v", item, err)
	}
}

func TestNormalizeLimitAndOffset(t *testing.T) {
	cases := []struct{ in, fallback, want int }{
		{0, 200, 200},
		{-1, 50, 50},
		{10, 200, 10},
		{1000, 200, 500},
	}
	for _, tc := range cases {
		if got := normalizeLimit(tc.in, tc.fallback); got != tc.want {
			t.Fatalf("normalizeLimit(%d,%d)=%d want=%d", tc.in, tc.fallback, got, tc.want)
		}
	}
	if got := normalizeOffset(-3); got != 0 {
		t.Fatalf("normalizeOffset(-3)=%d want=0", got)
	}
}
