package models

import "time"

// CreatedAccount is an account created during reconciliation with its one-time password.
type CreatedAccount struct {
	User     User   `json:"user"`
	Password string `json:"-"`
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Created   []CreatedAccount `json:"created"`
	Enrolled  int              `json:"enrolled"`
	Removed   int              `json:"removed"`
	Regrouped int              `json:"regrouped"`
	Unchanged int              `json:"unchanged"`
	Failed    int              `json:"failed"`
}

// Changed reports whether the pass modified any membership.
func (r ReconcileResult) Changed() bool {
	return len(r.Created) > 0 || r.Enrolled > 0 || r.Removed > 0 || r.Regrouped > 0
}

// SyncState is the outcome of processing one instance during a periodic run.
type SyncState string

// Sync states.
const (
	SyncStateNoChange            SyncState = "NO_CHANGE"
	SyncStateDataChanged         SyncState = "DATA_CHANGED"
	SyncStateUsersChanged        SyncState = "USERS_CHANGED"
	SyncStateDataAndUsersChanged SyncState = "DATA_AND_USERS_CHANGED"
	SyncStateSkipped             SyncState = "SKIPPED"
	SyncStateFailed              SyncState = "FAILED"
)

// InstanceSyncReport is the per-instance line of a run report.
type InstanceSyncReport struct {
	InstanceID string           `json:"instance_id"`
	State      SyncState        `json:"state"`
	Reconcile  *ReconcileResult `json:"reconcile,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// RunReport summarises one periodic sync run.
type RunReport struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Instances  []InstanceSyncReport `json:"instances"`
}

// Count returns the number of instances that ended in the given state.
func (r RunReport) Count(state SyncState) int {
	n := 0
	for _, inst := range r.Instances {
		if inst.State == state {
			n++
		}
	}
	return n
}

// ManualSyncResult is returned to administrators after an interactive sync.
type ManualSyncResult struct {
	Instance   EnrolmentInstance `json:"instance"`
	Validation ValidationResult  `json:"validation"`
	Reconcile  ReconcileResult   `json:"reconcile"`
}

// SyncEvent is published for every instance processed by the periodic sync.
type SyncEvent struct {
	InstanceID string           `json:"instance_id"`
	CourseID   string           `json:"course_id"`
	Session    string           `json:"session"`
	State      SyncState        `json:"state"`
	Reconcile  *ReconcileResult `json:"reconcile,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}
