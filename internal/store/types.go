package store

import "errors"

// Sentinel errors mapped to HTTP statuses by the API layer.
var (
	ErrNotFound          = errors.New("not found")
	ErrNoWorkflow        = errors.New("no workflow found for this machine")
	ErrStageNotFound     = errors.New("stage not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoEligibleUser    = errors.New("no eligible user for stage")
)

// Actor identifies the session user performing an operation.
type Actor struct {
	UserID      int64
	Username    string
	Role        string
	StageAccess string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == "admin" }

// DashboardCounts is the per-user dashboard summary, recomputed from the raw
// collections on every request.
type DashboardCounts struct {
	MyPendingTasks    int64 `json:"my_pending_tasks"`
	MyCompletedTasks  int64 `json:"my_completed_tasks"`
	TotalMachines     int64 `json:"total_machines"`
	MachinesInMyStage int64 `json:"machines_in_my_stages"`
}

// Task is a view over a machine's current stage assigned to a user.
type Task struct {
	ID             string      `json:"id"`
	MachineID      int64       `json:"machine_id"`
	StageName      string      `json:"stage_name"`
	StageLabel     string      `json:"stage_label"`
	Status         string      `json:"status"`
	MachineInfo    TaskMachine `json:"machine_info"`
	StageStartedAt interface{} `json:"stage_started_at"`
	AssignedUser   string      `json:"assigned_username"`
	Priority       string      `json:"priority"`
}

// TaskMachine is the embedded machine summary on a task.
type TaskMachine struct {
	SerialNumber  string `json:"serialNumber"`
	MachineType   string `json:"machineType"`
	ClientName    string `json:"clientName"`
	ClientSociety string `json:"clientSociety"`
}

// StageStat is one row of the per-stage machine distribution.
type StageStat struct {
	Stage      string  `json:"stage"`
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}
