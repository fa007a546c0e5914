package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/workflow"
)

// Notifier receives assignment notifications after a transaction commits.
type Notifier func(userID int64, message string)

// Store defines the database operations the API layer depends on.
type Store interface {
	DB() *gorm.DB
	SetNotifier(n Notifier)

	CreateMachine(ctx context.Context, m *model.Machine) error
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	DeleteMachine(ctx context.Context, id int64) (int64, error)

	TransitionStage(ctx context.Context, machineID int64, stageName, newStatus, notes string, actor Actor) (*model.Machine, error)
	ValidateCurrentStage(ctx context.Context, machineID int64, remarks string, actor Actor) (string, error)

	Dashboard(ctx context.Context, actor Actor) (DashboardCounts, error)
	MyTasks(ctx context.Context, actor Actor) ([]Task, error)
	RecentActivities(ctx context.Context, actor Actor, limit int) ([]model.StageHistory, error)
	MachineStatistics(ctx context.Context) (int64, int64, []StageStat, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db     *gorm.DB
	notify Notifier
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) SetNotifier(n Notifier) { s.notify = n }

// pendingNotification is collected inside a transaction and dispatched only
// after commit, so a rollback never produces a stray push.
type pendingNotification struct {
	userID  int64
	message string
}

func (s *gormStore) dispatch(notifications []pendingNotification) {
	if s.notify == nil {
		return
	}
	for _, n := range notifications {
		s.notify(n.userID, n.message)
	}
}

// CreateMachine creates a machine together with its workflow instance built
// from the stage definitions, and assigns the first stage to an active user
// carrying its required role.
func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	var defs []model.StageDefinition
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&defs).Error; err != nil {
		return fmt.Errorf("failed to load stage definitions: %w", err)
	}
	if len(defs) == 0 {
		return errors.New("no stages defined")
	}

	first := defs[0]
	assignee, err := s.findEligibleUser(ctx, first.RequiredRole)
	if err != nil {
		return err
	}

	now := time.Now()
	m.Status = model.MachineStatusActive
	m.WorkflowStatus = "active"
	m.CurrentStage = first.Name
	m.CurrentStageLabel = first.Label
	m.AssignedUserID = &assignee.ID
	m.AssignedUsername = assignee.Username
	m.StageStartedAt = &now

	var notifications []pendingNotification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create machine: %w", err)
		}

		for _, def := range defs {
			stage := model.WorkflowStage{
				MachineID:              m.ID,
				Name:                   def.Name,
				Label:                  def.Label,
				Position:               def.Position,
				Status:                 model.StagePending,
				EstimatedDurationHours: def.EstimatedDurationHours,
			}
			if def.Name == first.Name {
				stage.AssignedUsers = []*model.User{assignee}
			}
			if err := tx.Create(&stage).Error; err != nil {
				return fmt.Errorf("failed to create workflow stage %q: %w", def.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	notifications = append(notifications, pendingNotification{
		userID:  assignee.ID,
		message: fmt.Sprintf("Nouvelle machine %s : étape %q vous est assignée", m.SerialNumber, first.Label),
	})
	s.dispatch(notifications)
	return nil
}

// GetMachine loads a machine with its ordered workflow stages and their
// assigned users.
func (s *gormStore) GetMachine(ctx context.Context, id int64) (*model.Machine, error) {
	var m model.Machine
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Stages.AssignedUsers").
		First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMachine removes a machine, its workflow stages and its history.
// It returns the number of deleted history entries.
func (s *gormStore) DeleteMachine(ctx context.Context, id int64) (int64, error) {
	var deletedHistory int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Machine
		if err := tx.First(&m, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Where("machine_id = ?", id).Delete(&model.WorkflowStage{}).Error; err != nil {
			return fmt.Errorf("failed to delete workflow stages: %w", err)
		}

		res := tx.Where("machine_id = ?", id).Delete(&model.StageHistory{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete machine history: %w", res.Error)
		}
		deletedHistory = res.RowsAffected

		if err := tx.Delete(&model.Machine{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete machine: %w", err)
		}
		return nil
	})
	return deletedHistory, err
}

// TransitionStage applies a requested status change to one stage of a
// machine's workflow, validates it against the transition table, archives the
// stage to history when it completes, and re-derives the machine summary.
func (s *gormStore) TransitionStage(ctx context.Context, machineID int64, stageName, newStatus, notes string, actor Actor) (*model.Machine, error) {
	var notifications []pendingNotification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, stages, err := loadMachineForUpdate(tx, machineID)
		if err != nil {
			return err
		}

		var stage *model.WorkflowStage
		for i := range stages {
			if stages[i].Name == stageName {
				stage = &stages[i]
				break
			}
		}
		if stage == nil {
			return ErrStageNotFound
		}

		if !actorMayTouchStage(actor, machine, stage) {
			return fmt.Errorf("%w: you are not assigned to this stage", ErrAccessDenied)
		}

		if err := workflow.ValidateTransition(stage.Status, newStatus); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}

		now := time.Now()
		oldStatus := stage.Status
		stage.Status = newStatus
		stage.Notes = notes
		stage.UpdatedByID = actor.UserID
		stage.UpdatedByUsername = actor.Username

		if newStatus == model.StageInProgress && oldStatus == model.StagePending {
			stage.StartedAt = &now
			machine.StageStartedAt = &now
		}
		if newStatus == model.StageCompleted {
			stage.CompletedAt = &now
			if stage.StartedAt == nil {
				stage.StartedAt = &now
			}
			if err := writeHistory(tx, machine, stage, actor, notes); err != nil {
				return err
			}
		}

		if err := tx.Save(stage).Error; err != nil {
			return fmt.Errorf("failed to update stage %q: %w", stageName, err)
		}

		ns, err := s.finalizeMachine(ctx, tx, machine, stages)
		if err != nil {
			return err
		}
		notifications = append(notifications, ns...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(notifications)
	return s.GetMachine(ctx, machineID)
}

// ValidateCurrentStage completes the machine's current stage on behalf of its
// assignee and advances the workflow, or completes the machine after the
// final stage. It returns the confirmation message shown to the user.
func (s *gormStore) ValidateCurrentStage(ctx context.Context, machineID int64, remarks string, actor Actor) (string, error) {
	var message string
	var notifications []pendingNotification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		machine, stages, err := loadMachineForUpdate(tx, machineID)
		if err != nil {
			return err
		}

		if machine.CurrentStage == "" {
			return fmt.Errorf("%w: machine has no active stage", ErrStageNotFound)
		}

		var stage *model.WorkflowStage
		for i := range stages {
			if stages[i].Name == machine.CurrentStage {
				stage = &stages[i]
				break
			}
		}
		if stage == nil {
			return ErrStageNotFound
		}

		if !actor.IsAdmin() {
			assigned := machine.AssignedUserID != nil && *machine.AssignedUserID == actor.UserID
			if actor.StageAccess != machine.CurrentStage || !assigned {
				return fmt.Errorf("%w: you are not assigned to this stage", ErrAccessDenied)
			}
		}

		if stage.Status == model.StageBlocked || stage.Status == model.StageCompleted {
			return fmt.Errorf("%w: cannot validate a %s stage", ErrInvalidTransition, stage.Status)
		}

		now := time.Now()
		stage.Status = model.StageCompleted
		stage.CompletedAt = &now
		if stage.StartedAt == nil {
			stage.StartedAt = machine.StageStartedAt
			if stage.StartedAt == nil {
				stage.StartedAt = &now
			}
		}
		stage.Notes = remarks
		stage.UpdatedByID = actor.UserID
		stage.UpdatedByUsername = actor.Username

		if err := writeHistory(tx, machine, stage, actor, remarks); err != nil {
			return err
		}
		if err := tx.Save(stage).Error; err != nil {
			return fmt.Errorf("failed to update stage %q: %w", stage.Name, err)
		}

		ns, err := s.finalizeMachine(ctx, tx, machine, stages)
		if err != nil {
			return err
		}
		notifications = append(notifications, ns...)

		if machine.Status == model.MachineStatusCompleted {
			message = fmt.Sprintf("Final stage '%s' completed. Machine marked as completed.", stage.Label)
		} else {
			message = fmt.Sprintf("Stage '%s' completed. Next stage '%s' assigned to %s.",
				stage.Label, machine.CurrentStageLabel, machine.AssignedUsername)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.dispatch(notifications)
	return message, nil
}

// loadMachineForUpdate fetches the machine and its ordered stages inside a
// transaction.
func loadMachineForUpdate(tx *gorm.DB, machineID int64) (*model.Machine, []model.WorkflowStage, error) {
	var machine model.Machine
	if err := tx.First(&machine, machineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	var stages []model.WorkflowStage
	if err := tx.Preload("AssignedUsers").
		Where("machine_id = ?", machineID).
		Order("position ASC").
		Find(&stages).Error; err != nil {
		return nil, nil, err
	}
	if len(stages) == 0 {
		return nil, nil, ErrNoWorkflow
	}
	return &machine, stages, nil
}

// actorMayTouchStage implements the stage-level access rule: admins always,
// otherwise users assigned to the stage, assigned to the machine, or whose
// role grants access to this stage.
func actorMayTouchStage(actor Actor, machine *model.Machine, stage *model.WorkflowStage) bool {
	if actor.IsAdmin() {
		return true
	}
	for _, u := range stage.AssignedUsers {
		if u.ID == actor.UserID {
			return true
		}
	}
	if machine.AssignedUserID != nil && *machine.AssignedUserID == actor.UserID {
		return true
	}
	return actor.StageAccess == stage.Name
}

// writeHistory archives a completed stage, denormalizing machine and client
// fields for the activity feed.
func writeHistory(tx *gorm.DB, machine *model.Machine, stage *model.WorkflowStage, actor Actor, remarks string) error {
	entry := model.StageHistory{
		MachineID:     machine.ID,
		MachineSerial: machine.SerialNumber,
		MachineType:   machine.MachineType,
		ClientName:    machine.ClientName,
		ClientSociety: machine.ClientSociety,
		StageName:     stage.Name,
		StageLabel:    stage.Label,
		Status:        model.StageCompleted,
		UserID:        actor.UserID,
		Username:      actor.Username,
		StartedAt:     stage.StartedAt,
		CompletedAt:   stage.CompletedAt,
		Remarks:       remarks,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to archive stage %q: %w", stage.Name, err)
	}
	return nil
}

// finalizeMachine re-derives the machine-level summary from its stages and,
// when the workflow moved to a new unassigned stage, assigns an eligible user
// and queues a notification for them.
func (s *gormStore) finalizeMachine(ctx context.Context, tx *gorm.DB, machine *model.Machine, stages []model.WorkflowStage) ([]pendingNotification, error) {
	summary := workflow.Summarize(stages)
	now := time.Now()
	var notifications []pendingNotification

	machine.CurrentStage = summary.CurrentStage
	machine.CurrentStageLabel = summary.CurrentStageLabel
	machine.WorkflowStatus = summary.WorkflowStatus

	switch summary.WorkflowStatus {
	case "completed":
		machine.Status = model.MachineStatusCompleted
		machine.AssignedUserID = nil
		machine.AssignedUsername = ""
		machine.CompletedAt = &now
	default:
		machine.Status = model.MachineStatusActive

		// Locate the current stage row to check its assignment.
		var current *model.WorkflowStage
		for i := range stages {
			if stages[i].Name == summary.CurrentStage {
				current = &stages[i]
				break
			}
		}
		if current != nil {
			if len(current.AssignedUsers) == 0 {
				var def model.StageDefinition
				if err := tx.Where("name = ?", current.Name).First(&def).Error; err != nil {
					return nil, fmt.Errorf("failed to load stage definition %q: %w", current.Name, err)
				}
				assignee, err := s.findEligibleUserTx(tx, def.RequiredRole)
				if err != nil {
					return nil, err
				}
				if err := tx.Model(current).Association("AssignedUsers").Append(assignee); err != nil {
					return nil, fmt.Errorf("failed to assign user to stage %q: %w", current.Name, err)
				}
				machine.AssignedUserID = &assignee.ID
				machine.AssignedUsername = assignee.Username
				machine.StageStartedAt = &now
				notifications = append(notifications, pendingNotification{
					userID:  assignee.ID,
					message: fmt.Sprintf("Machine %s : étape %q vous est assignée", machine.SerialNumber, current.Label),
				})
			} else {
				first := current.AssignedUsers[0]
				machine.AssignedUserID = &first.ID
				machine.AssignedUsername = first.Username
			}
		}
	}

	if err := tx.Save(machine).Error; err != nil {
		return nil, fmt.Errorf("failed to update machine summary: %w", err)
	}
	return notifications, nil
}

func (s *gormStore) findEligibleUser(ctx context.Context, role string) (*model.User, error) {
	return s.findEligibleUserTx(s.db.WithContext(ctx), role)
}

func (s *gormStore) findEligibleUserTx(tx *gorm.DB, role string) (*model.User, error) {
	var user model.User
	err := tx.Where("role = ? AND is_active = ?", role, true).Order("id ASC").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("no active user found for stage role %q", role)
		return nil, fmt.Errorf("%w: no user found for stage role: %s", ErrNoEligibleUser, role)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
