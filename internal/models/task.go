package models

import "time"

// TaskKind names the operation a task performs
type TaskKind string

const (
	TaskKindGetLead        TaskKind = "getLead"
	TaskKindGetLeadSources TaskKind = "getLeadSources"
	TaskKindSendMessage    TaskKind = "sendMessage"
)

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions can happen
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// TaskRecord is the persisted lifecycle of one task
type TaskRecord struct {
	ID         string     `json:"id" badgerhold:"key"`
	Kind       TaskKind   `json:"kind"`
	LeadID     string     `json:"leadId" badgerhold:"index"`
	Status     TaskStatus `json:"status" badgerhold:"index"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// TaskTicket is handed back to callers when a job is accepted
type TaskTicket struct {
	TaskID string `json:"taskId"`
}
