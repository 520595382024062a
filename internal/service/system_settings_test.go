package service

import (
	"context"
	"testing"

	"autopilot/internal/repository"
)

func TestSystemSettings_DefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	svc := &SystemSettingsService{Repo: repository.NewMemorySettings()}
	if err := svc.EnsureDefaultSwitches(ctx, map[string]bool{FeatureAutoExecute: false}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureAutoExecute, true) {
		t.Fatalf("auto_execute=true want=false from override")
	}
	if !svc.IsEnabled(ctx, FeatureExecutor, false) {
		t.Fatalf("executor=false want=true")
	}

	// existing values survive a second seeding
	if err := svc.EnsureDefaultSwitches(ctx, nil); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if svc.IsEnabled(ctx, FeatureAutoExecute, true) {
		t.Fatalf("auto_execute reseeded to true")
	}

	if err := svc.SetEnabled(ctx, FeatureAutoExecute, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !svc.IsEnabled(ctx, FeatureAutoExecute, false) {
		t.Fatalf("auto_execute=false after set")
	}
}

func TestSystemSettings_NilServiceUsesDefault(t *testing.T) {
	var svc *SystemSettingsService
	if !svc.IsEnabled(context.Background(), FeatureExecutor, true) {
		t.Fatalf("nil service ignored default")
	}
	if svc.IsEnabled(context.Background(), "feature.unknown", false) {
		t.Fatalf("nil service ignored default")
	}
}
