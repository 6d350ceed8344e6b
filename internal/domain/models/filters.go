package models

import "time"

// DefinitionFilter narrows ListDefinitions
type DefinitionFilter struct {
	TenantID   string
	Category   string
	Tag        string
	ActiveOnly bool
}

// InstanceFilter narrows instance listings. Empty fields match everything.
type InstanceFilter struct {
	TenantID     string
	DefinitionID string
	Statuses     []InstanceStatus
	StartedFrom  *time.Time
	StartedTo    *time.Time
}

// TaskFilter narrows task listings. Results are ordered by due date
// (undated last) then by priority, most urgent first.
type TaskFilter struct {
	TenantID  string
	Assignees []string
	Status    TaskStatus
	DueBefore *time.Time
}

// HistoryFilter scopes history aggregation to a tenant, optionally one
// definition, over [From, To).
type HistoryFilter struct {
	TenantID     string
	DefinitionID string
	From         *time.Time
	To           *time.Time
}
