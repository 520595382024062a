package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"autopilot/internal/models"
	"autopilot/internal/repository"
)

const (
	// FeatureAutoExecute lets auto-approvable decisions enter the queue without a human.
	FeatureAutoExecute = "feature.auto_execute"
	// FeatureExecutor pauses or resumes the worker pool's dequeuing.
	FeatureExecutor      = "feature.executor"
	FeatureLearningSweep = "feature.learning_sweep"
	FeatureExpirySweep   = "feature.expiry_sweep"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureAutoExecute:   true,
		FeatureExecutor:      true,
		FeatureLearningSweep: true,
		FeatureExpirySweep:   true,
	}
}

type SystemSettingsService struct {
	Repo repository.Settings
}

// EnsureDefaultSwitches inserts missing switches; stored values are never overwritten.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context, overrides map[string]bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	defaults := DefaultFeatureSwitches()
	for k, v := range overrides {
		defaults[k] = v
	}
	for key, enabled := range defaults {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	return s.Repo.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	})
}
