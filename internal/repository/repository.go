package repository

import (
	"context"
	"time"

	"autopilot/internal/models"
)

// Archive is the persistence sink for decisions, executions and learning feedback.
// The engine runs without one; every write is best effort from the caller's view.
type Archive interface {
	SaveDecision(ctx context.Context, d *models.Decision) error
	SaveExecution(ctx context.Context, item *models.QueueItem) error
	SaveFeedback(ctx context.Context, fb *models.LearningFeedback) error

	ListDecisions(ctx context.Context, params ListDecisionsParams) ([]models.DecisionRecord, error)
	ListExecutions(ctx context.Context, params ListExecutionsParams) ([]models.ExecutionRecord, error)
	ListFeedback(ctx context.Context, params ListFeedbackParams) ([]models.LearningRecord, error)
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Settings stores runtime switches.
type Settings interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	Archive
	Settings
}

type ListDecisionsParams struct {
	Limit          int
	Offset         int
	CampaignID     *string
	Kind           *string
	ApprovalStatus *string
	Since          *time.Time
	OrderBy        string
	Asc            *bool
}

type ListExecutionsParams struct {
	Limit      int
	Offset     int
	DecisionID *string
	CampaignID *string
	Status     *string
	OrderBy    string
	Asc        *bool
}

type ListFeedbackParams struct {
	Limit   int
	Offset  int
	Kind    *string
	Quality *string
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
