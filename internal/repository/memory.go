package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"autopilot/internal/models"
)

// MemorySettings keeps switches in process when no database is configured.
type MemorySettings struct {
	mu    sync.RWMutex
	items map[string]models.SystemSetting
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{items: map[string]models.SystemSetting{}}
}

func (m *MemorySettings) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	key := strings.TrimSpace(item.Key)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]models.SystemSetting{}
	}
	now := time.Now().UTC()
	next := *item
	next.Key = key
	if prev, ok := m.items[key]; ok {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
	} else {
		next.ID = uint64(len(m.items) + 1)
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = now
	}
	next.Value = append([]byte(nil), item.Value...)
	m.items[key] = next
	return nil
}

func (m *MemorySettings) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemorySettings) ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error) {
	items := m.filter(params)
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []models.SystemSetting{}, nil
	}
	items = items[offset:]
	if params.Limit > 0 && params.Limit < len(items) {
		items = items[:params.Limit]
	}
	return items, nil
}

func (m *MemorySettings) CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error) {
	return int64(len(m.filter(params))), nil
}

func (m *MemorySettings) filter(params ListSystemSettingsParams) []models.SystemSetting {
	prefix := ""
	if params.Prefix != nil {
		prefix = strings.TrimSpace(*params.Prefix)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SystemSetting, 0, len(m.items))
	for k, v := range m.items {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v)
		}
	}
	return out
}

var _ Settings = (*MemorySettings)(nil)
