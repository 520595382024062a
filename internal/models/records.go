package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DecisionRecord archives a generated decision and its latest approval state.
type DecisionRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DecisionID string `gorm:"type:varchar(64);not null;uniqueIndex"`

	Kind       string `gorm:"type:varchar(40);not null;index"`
	CampaignID string `gorm:"type:varchar(120);not null;index"`
	Platform   string `gorm:"type:varchar(40);not null;index"`

	Confidence     float64 `gorm:"not null"`
	RiskLevel      string  `gorm:"type:varchar(20);not null;index"`
	ApprovalStatus string  `gorm:"type:varchar(20);not null;index"`
	ApprovedBy     string  `gorm:"type:varchar(120)"`

	RequiresHumanApproval bool `gorm:"not null"`
	AutoExecuteAllowed    bool `gorm:"not null"`

	RevenueImpact decimal.Decimal `gorm:"type:numeric(30,10)"`

	Reasoning       string         `gorm:"type:text"`
	ProposedAction  datatypes.JSON `gorm:"type:jsonb"`
	ExpectedImpact  datatypes.JSON `gorm:"type:jsonb"`
	GuardrailChecks datatypes.JSON `gorm:"type:jsonb"`

	ExpiresAt  time.Time  `gorm:"type:timestamptz;not null"`
	ExecutedAt *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DecisionRecord) TableName() string {
	return "autopilot_decisions"
}

// ExecutionRecord archives one queue item's lifecycle.
type ExecutionRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ExecutionID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	DecisionID  string `gorm:"type:varchar(64);not null;index"`
	CampaignID  string `gorm:"type:varchar(120);not null;index"`

	Status   string `gorm:"type:varchar(20);not null;index"`
	Priority int    `gorm:"not null"`

	Success          bool            `gorm:"not null"`
	RollbackRequired bool            `gorm:"not null"`
	SpendDelta       decimal.Decimal `gorm:"type:numeric(30,10)"`
	ErrorMessage     string          `gorm:"type:text"`

	Actions      datatypes.JSON `gorm:"type:jsonb"`
	ActualImpact datatypes.JSON `gorm:"type:jsonb"`
	RollbackPlan datatypes.JSON `gorm:"type:jsonb"`

	ScheduledAt time.Time  `gorm:"type:timestamptz;not null"`
	StartedAt   *time.Time `gorm:"type:timestamptz"`
	CompletedAt *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ExecutionRecord) TableName() string {
	return "autopilot_executions"
}

// LearningRecord archives the feedback produced for an executed decision.
type LearningRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DecisionID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Kind       string `gorm:"type:varchar(40);not null;index"`

	Accuracy             float64 `gorm:"not null"`
	Quality              string  `gorm:"type:varchar(20);not null;index"`
	ConfidenceAdjustment float64 `gorm:"not null"`
	RiskSensitivity      float64 `gorm:"not null"`

	Actual         datatypes.JSON `gorm:"type:jsonb"`
	Predicted      datatypes.JSON `gorm:"type:jsonb"`
	MetricAccuracy datatypes.JSON `gorm:"type:jsonb"`
	Lessons        datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (LearningRecord) TableName() string {
	return "autopilot_learning_feedback"
}
