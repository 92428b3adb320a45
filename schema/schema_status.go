package schema

import "time"

// StoreStatus represents status information about the finding store.
type StoreStatus struct {
	Backend       string           `json:"backend"`
	Connected     bool             `json:"connected"`
	TotalRuns     int64            `json:"total_runs"`
	LastRunID     int64            `json:"last_run_id"`
	LastRunTime   time.Time        `json:"last_run_time"`
	LastRunStatus RunStatus        `json:"last_run_status"`
	RunningRuns   int64            `json:"running_runs"`
	PendingTasks  int64            `json:"pending_tasks"` // actionable and not yet emitted
	TableSizes    map[string]int64 `json:"table_sizes"`
}

// HealthCheck is one line of the status report.
type HealthCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// StatusReport bundles the store status with dependency and config checks.
type StatusReport struct {
	Store  StoreStatus   `json:"store"`
	Checks []HealthCheck `json:"checks"`
}
