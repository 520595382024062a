package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autopilot/internal/models"
	"autopilot/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- decisions ---------------------------------------------------------------

func (s *Store) SaveDecision(ctx context.Context, d *models.Decision) error {
	if s == nil || s.db == nil || d == nil || strings.TrimSpace(d.ID) == "" {
		return nil
	}
	rec := repository.DecisionRecordFrom(d)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "decision_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"approval_status",
			"approved_by",
			"requires_human_approval",
			"auto_execute_allowed",
			"risk_level",
			"guardrail_checks",
			"executed_at",
			"updated_at",
		}),
	}).Create(&rec).Error
}

func (s *Store) ListDecisions(ctx context.Context, params repository.ListDecisionsParams) ([]models.DecisionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DecisionRecord{})
	if params.CampaignID != nil && strings.TrimSpace(*params.CampaignID) != "" {
		query = query.Where("campaign_id = ?", strings.TrimSpace(*params.CampaignID))
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.ApprovalStatus != nil && strings.TrimSpace(*params.ApprovalStatus) != "" {
		query = query.Where("approval_status = ?", strings.TrimSpace(*params.ApprovalStatus))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.DecisionRecord
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- executions --------------------------------------------------------------

func (s *Store) SaveExecution(ctx context.Context, item *models.QueueItem) error {
	if s == nil || s.db == nil || item == nil || item.Decision == nil {
		return nil
	}
	rec := repository.ExecutionRecordFrom(item)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "execution_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"success",
			"rollback_required",
			"spend_delta",
			"error_message",
			"actual_impact",
			"rollback_plan",
			"started_at",
			"completed_at",
			"updated_at",
		}),
	}).Create(&rec).Error
}

func (s *Store) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.ExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ExecutionRecord{})
	if params.DecisionID != nil && strings.TrimSpace(*params.DecisionID) != "" {
		query = query.Where("decision_id = ?", strings.TrimSpace(*params.DecisionID))
	}
	if params.CampaignID != nil && strings.TrimSpace(*params.CampaignID) != "" {
		query = query.Where("campaign_id = ?", strings.TrimSpace(*params.CampaignID))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.ExecutionRecord
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteExecutionsBefore removes finished executions completed before the cutoff.
func (s *Store) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Where("completed_at IS NOT NULL").
		Where("completed_at < ?", before).
		Delete(&models.ExecutionRecord{})
	return res.RowsAffected, res.Error
}

// --- learning ----------------------------------------------------------------

func (s *Store) SaveFeedback(ctx context.Context, fb *models.LearningFeedback) error {
	if s == nil || s.db == nil || fb == nil {
		return nil
	}
	rec := repository.LearningRecordFrom(fb)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "decision_id"}},
		DoNothing: true,
	}).Create(&rec).Error
}

func (s *Store) ListFeedback(ctx context.Context, params repository.ListFeedbackParams) ([]models.LearningRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.LearningRecord{})
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.Quality != nil && strings.TrimSpace(*params.Quality) != "" {
		query = query.Where("quality = ?", strings.TrimSpace(*params.Quality))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.LearningRecord
	if err := query.Limit(normalizeLimit(params.Limit, 200)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := settingsQuery(s.db.WithContext(ctx), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := settingsQuery(s.db.WithContext(ctx), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func settingsQuery(db *gorm.DB, params repository.ListSystemSettingsParams) *gorm.DB {
	query := db.Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	return query
}

var orderColumns = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"completed_at": true,
	"confidence":   true,
	"accuracy":     true,
	"priority":     true,
	"key":          true,
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" || !orderColumns[column] {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
