package models

import "errors"

var (
	ErrGuardrailViolation = errors.New("guardrail violation")
	ErrApprovalRequired   = errors.New("human approval required")
	ErrPlatformAction     = errors.New("platform action failed")
	ErrExecutionTimeout   = errors.New("platform action timed out")
	ErrRollbackFailed     = errors.New("rollback failed")

	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotRollbackable   = errors.New("execution cannot be rolled back")
	ErrCampaignBusy      = errors.New("campaign has an execution in flight")
)
