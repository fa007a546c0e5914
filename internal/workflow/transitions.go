package workflow

import (
	"fmt"

	"workshop-tracker-backend/internal/model"
)

// Action is a transition a user may request for a stage in its current status.
type Action struct {
	// Key identifies the button ("start", "complete", "block", "resume").
	Key string `json:"key"`
	// Label is the French display text used by the UI.
	Label string `json:"label"`
	// Target is the status the action requests.
	Target string `json:"target"`
}

// allowed maps a current status to the set of statuses that may be requested
// from it. completed is terminal.
var allowed = map[string][]string{
	model.StagePending:    {model.StageInProgress},
	model.StageInProgress: {model.StageCompleted, model.StageBlocked},
	model.StageBlocked:    {model.StageInProgress},
	model.StageCompleted:  {},
}

// actions maps a current status to the buttons rendered for it.
var actions = map[string][]Action{
	model.StagePending: {
		{Key: "start", Label: "Démarrer", Target: model.StageInProgress},
	},
	model.StageInProgress: {
		{Key: "complete", Label: "Terminer", Target: model.StageCompleted},
		{Key: "block", Label: "Bloquer", Target: model.StageBlocked},
	},
	model.StageBlocked: {
		{Key: "resume", Label: "Reprendre", Target: model.StageInProgress},
	},
	model.StageCompleted: {},
}

// CanTransition reports whether a stage in status from may move to status to.
func CanTransition(from, to string) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error when the requested transition
// is not allowed.
func ValidateTransition(from, to string) error {
	if !model.ValidStageStatus(to) {
		return fmt.Errorf("invalid status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot transition stage from %q to %q", from, to)
	}
	return nil
}

// ActionsFor returns the action buttons for a stage status. A completed stage
// has no actions.
func ActionsFor(status string) []Action {
	return actions[status]
}

// Summary is the machine-level rollup derived from its ordered stages.
type Summary struct {
	CurrentStage      string
	CurrentStageLabel string
	WorkflowStatus    string
}

// Summarize derives the machine's current stage and overall workflow status
// from its stages, which must be ordered by position. The first stage that is
// in progress, pending or blocked determines the summary; if every stage is
// completed the workflow is completed.
func Summarize(stages []model.WorkflowStage) Summary {
	for _, s := range stages {
		switch s.Status {
		case model.StageInProgress, model.StagePending:
			return Summary{
				CurrentStage:      s.Name,
				CurrentStageLabel: s.Label,
				WorkflowStatus:    "active",
			}
		case model.StageBlocked:
			return Summary{
				CurrentStage:      s.Name,
				CurrentStageLabel: s.Label + " (Bloqué)",
				WorkflowStatus:    "blocked",
			}
		}
	}
	return Summary{
		CurrentStage:      "",
		CurrentStageLabel: "Terminé",
		WorkflowStatus:    "completed",
	}
}
