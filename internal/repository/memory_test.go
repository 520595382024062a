package repository

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"autopilot/internal/models"
)

func TestMemorySettings_UpsertAndList(t *testing.T) {
	m := NewMemorySettings()
	ctx := context.Background()
	_ = m.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.b", Value: datatypes.JSON(`true`)})
	_ = m.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "feature.a", Value: datatypes.JSON(`false`)})
	_ = m.UpsertSystemSetting(ctx, &models.SystemSetting{Key: "other", Value: datatypes.JSON(`1`)})
	_ = m.UpsertSystemSetting(ctx, &models.SystemSetting{Key: " feature.a ", Value: datatypes.JSON(`true`)})

	prefix := "feature."
	items, err := m.ListSystemSettings(ctx, ListSystemSettingsParams{Prefix: &prefix})
	if err != nil || len(items) != 2 {
		t.Fatalf("items=%v err=%v", items, err)
	}
	if items[0].Key != "feature.a" || string(items[0].Value) != "true" {
		t.Fatalf("first=%s %s want feature.a true", items[0].Key, items[0].Value)
	}
	if n, _ := m.CountSystemSettings(ctx, ListSystemSettingsParams{}); n != 3 {
		t.Fatalf("count=%d want=3", n)
	}
	if got, _ := m.GetSystemSettingByKey(ctx, "missing"); got != nil {
		t.Fatalf("missing=%v want=nil", got)
	}
}
