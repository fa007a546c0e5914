package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"workshop-tracker-backend/internal/db"
	"workshop-tracker-backend/internal/model"
)

var testDBSeq atomic.Int64

// newTestDB opens a uniquely named shared in-memory database so every pooled
// connection sees the same data, and runs the real migrations including the
// stage definition seed.
func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, username, role string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@atelier.example",
		PasswordHash: "x",
		Role:         role,
		StageAccess:  model.StageAccessForRole[role],
		IsActive:     true,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// seedCrew creates one active user per stage role plus an admin.
func seedCrew(t *testing.T, gdb *gorm.DB) map[string]*model.User {
	t.Helper()
	return map[string]*model.User{
		model.RoleAdmin:            seedUser(t, gdb, "admin", model.RoleAdmin),
		model.RoleSupervisor:       seedUser(t, gdb, "sami", model.RoleSupervisor),
		model.RoleAssemblyTech:     seedUser(t, gdb, "amel", model.RoleAssemblyTech),
		model.RoleTestingTech:      seedUser(t, gdb, "tarek", model.RoleTestingTech),
		model.RoleDeliveryTech:     seedUser(t, gdb, "dora", model.RoleDeliveryTech),
		model.RoleInstallationTech: seedUser(t, gdb, "imen", model.RoleInstallationTech),
	}
}

func actorFor(u *model.User) Actor {
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role, StageAccess: u.StageAccess}
}

type recordedNotification struct {
	UserID  int64
	Message string
}

func captureNotifications(s Store) *[]recordedNotification {
	var recorded []recordedNotification
	s.SetNotifier(func(userID int64, message string) {
		recorded = append(recorded, recordedNotification{UserID: userID, Message: message})
	})
	return &recorded
}

func TestGormStore_CreateMachine(t *testing.T) {
	t.Run("builds the workflow and assigns the first stage", func(t *testing.T) {
		gdb := newTestDB(t)
		crew := seedCrew(t, gdb)
		s := NewGormStore(gdb)
		notified := captureNotifications(s)

		machine := &model.Machine{SerialNumber: "SN-100", MachineType: "Broyeur"}
		require.NoError(t, s.CreateMachine(context.Background(), machine))

		loaded, err := s.GetMachine(context.Background(), machine.ID)
		require.NoError(t, err)

		assert.Equal(t, model.MachineStatusActive, loaded.Status)
		assert.Equal(t, "material_collection", loaded.CurrentStage)
		assert.Equal(t, "Collecte matériel", loaded.CurrentStageLabel)
		assert.Equal(t, "active", loaded.WorkflowStatus)
		require.NotNil(t, loaded.AssignedUserID)
		assert.Equal(t, crew[model.RoleSupervisor].ID, *loaded.AssignedUserID)
		assert.Equal(t, "sami", loaded.AssignedUsername)
		assert.NotNil(t, loaded.StageStartedAt)

		require.Len(t, loaded.Stages, 5)
		for i, stage := range loaded.Stages {
			assert.Equal(t, i+1, stage.Position)
			assert.Equal(t, model.StagePending, stage.Status)
		}
		require.Len(t, loaded.Stages[0].AssignedUsers, 1)
		assert.Equal(t, "sami", loaded.Stages[0].AssignedUsers[0].Username)

		require.Len(t, *notified, 1)
		assert.Equal(t, crew[model.RoleSupervisor].ID, (*notified)[0].UserID)
		assert.Contains(t, (*notified)[0].Message, "SN-100")
	})

	t.Run("fails when no user carries the first stage role", func(t *testing.T) {
		gdb := newTestDB(t)
		seedUser(t, gdb, "amel", model.RoleAssemblyTech) // no supervisor
		s := NewGormStore(gdb)

		err := s.CreateMachine(context.Background(), &model.Machine{SerialNumber: "SN-101"})
		assert.ErrorIs(t, err, ErrNoEligibleUser)
	})
}

func TestGormStore_TransitionStage(t *testing.T) {
	gdb := newTestDB(t)
	crew := seedCrew(t, gdb)
	s := NewGormStore(gdb)
	notified := captureNotifications(s)

	machine := &model.Machine{SerialNumber: "SN-200"}
	require.NoError(t, s.CreateMachine(context.Background(), machine))
	*notified = nil

	supervisor := actorFor(crew[model.RoleSupervisor])

	t.Run("assignee starts the pending stage", func(t *testing.T) {
		m, err := s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StageInProgress, "", supervisor)
		require.NoError(t, err)

		assert.Equal(t, model.StageInProgress, m.Stages[0].Status)
		assert.NotNil(t, m.Stages[0].StartedAt)
		assert.Equal(t, "material_collection", m.CurrentStage)
	})

	t.Run("user outside the stage is rejected", func(t *testing.T) {
		_, err := s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StageCompleted, "", actorFor(crew[model.RoleTestingTech]))
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("transition outside the table is rejected", func(t *testing.T) {
		_, err := s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StagePending, "", supervisor)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("block and resume", func(t *testing.T) {
		m, err := s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StageBlocked, "pièce manquante", supervisor)
		require.NoError(t, err)
		assert.Equal(t, model.StageBlocked, m.Stages[0].Status)
		assert.Equal(t, "pièce manquante", m.Stages[0].Notes)
		assert.Equal(t, "blocked", m.WorkflowStatus)
		assert.Contains(t, m.CurrentStageLabel, "(Bloqué)")

		m, err = s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StageInProgress, "", supervisor)
		require.NoError(t, err)
		assert.Equal(t, model.StageInProgress, m.Stages[0].Status)
		assert.Equal(t, "active", m.WorkflowStatus)
	})

	t.Run("completing a stage archives it and advances the workflow", func(t *testing.T) {
		m, err := s.TransitionStage(context.Background(), machine.ID, "material_collection", model.StageCompleted, "fait", supervisor)
		require.NoError(t, err)

		assert.Equal(t, model.StageCompleted, m.Stages[0].Status)
		assert.NotNil(t, m.Stages[0].CompletedAt)
		assert.Equal(t, "assembly", m.CurrentStage)
		require.NotNil(t, m.AssignedUserID)
		assert.Equal(t, crew[model.RoleAssemblyTech].ID, *m.AssignedUserID)

		var history []model.StageHistory
		require.NoError(t, gdb.Where("machine_id = ?", machine.ID).Find(&history).Error)
		require.Len(t, history, 1)
		assert.Equal(t, "material_collection", history[0].StageName)
		assert.Equal(t, supervisor.UserID, history[0].UserID)
		assert.Equal(t, "SN-200", history[0].MachineSerial)

		require.Len(t, *notified, 1)
		assert.Equal(t, crew[model.RoleAssemblyTech].ID, (*notified)[0].UserID)
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := s.TransitionStage(context.Background(), machine.ID, "painting", model.StageInProgress, "", supervisor)
		assert.ErrorIs(t, err, ErrStageNotFound)
	})

	t.Run("unknown machine", func(t *testing.T) {
		_, err := s.TransitionStage(context.Background(), 9999, "assembly", model.StageInProgress, "", supervisor)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGormStore_ValidateCurrentStage(t *testing.T) {
	gdb := newTestDB(t)
	crew := seedCrew(t, gdb)
	s := NewGormStore(gdb)
	notified := captureNotifications(s)

	machine := &model.Machine{SerialNumber: "SN-300"}
	require.NoError(t, s.CreateMachine(context.Background(), machine))
	*notified = nil

	t.Run("non-assignee cannot validate", func(t *testing.T) {
		_, err := s.ValidateCurrentStage(context.Background(), machine.ID, "", actorFor(crew[model.RoleAssemblyTech]))
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("assignee validates and the next stage is assigned", func(t *testing.T) {
		msg, err := s.ValidateCurrentStage(context.Background(), machine.ID, "collecte ok", actorFor(crew[model.RoleSupervisor]))
		require.NoError(t, err)
		assert.Equal(t, "Stage 'Collecte matériel' completed. Next stage 'Montage' assigned to amel.", msg)

		m, err := s.GetMachine(context.Background(), machine.ID)
		require.NoError(t, err)
		assert.Equal(t, "assembly", m.CurrentStage)
		assert.Equal(t, "amel", m.AssignedUsername)

		require.Len(t, *notified, 1)
		assert.Equal(t, crew[model.RoleAssemblyTech].ID, (*notified)[0].UserID)
	})

	t.Run("blocked current stage cannot be validated", func(t *testing.T) {
		_, err := s.TransitionStage(context.Background(), machine.ID, "assembly", model.StageInProgress, "", actorFor(crew[model.RoleAssemblyTech]))
		require.NoError(t, err)
		_, err = s.TransitionStage(context.Background(), machine.ID, "assembly", model.StageBlocked, "", actorFor(crew[model.RoleAssemblyTech]))
		require.NoError(t, err)

		_, err = s.ValidateCurrentStage(context.Background(), machine.ID, "", actorFor(crew[model.RoleAssemblyTech]))
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = s.TransitionStage(context.Background(), machine.ID, "assembly", model.StageInProgress, "", actorFor(crew[model.RoleAssemblyTech]))
		require.NoError(t, err)
	})

	t.Run("admin walks the machine to completion", func(t *testing.T) {
		admin := actorFor(crew[model.RoleAdmin])

		for _, stage := range []string{"assembly", "testing", "delivery"} {
			msg, err := s.ValidateCurrentStage(context.Background(), machine.ID, "", admin)
			require.NoError(t, err, "validating %s", stage)
			assert.Contains(t, msg, "completed. Next stage")
		}

		msg, err := s.ValidateCurrentStage(context.Background(), machine.ID, "posée chez le client", admin)
		require.NoError(t, err)
		assert.Equal(t, "Final stage 'Installation' completed. Machine marked as completed.", msg)

		m, err := s.GetMachine(context.Background(), machine.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MachineStatusCompleted, m.Status)
		assert.Equal(t, "completed", m.WorkflowStatus)
		assert.Equal(t, "Terminé", m.CurrentStageLabel)
		assert.Nil(t, m.AssignedUserID)
		assert.NotNil(t, m.CompletedAt)

		var historyCount int64
		gdb.Model(&model.StageHistory{}).Where("machine_id = ?", machine.ID).Count(&historyCount)
		assert.Equal(t, int64(5), historyCount)

		_, err = s.ValidateCurrentStage(context.Background(), machine.ID, "", admin)
		assert.ErrorIs(t, err, ErrStageNotFound)
	})
}

func TestGormStore_DeleteMachine(t *testing.T) {
	gdb := newTestDB(t)
	crew := seedCrew(t, gdb)
	s := NewGormStore(gdb)

	machine := &model.Machine{SerialNumber: "SN-400"}
	require.NoError(t, s.CreateMachine(context.Background(), machine))
	_, err := s.ValidateCurrentStage(context.Background(), machine.ID, "", actorFor(crew[model.RoleSupervisor]))
	require.NoError(t, err)

	deletedHistory, err := s.DeleteMachine(context.Background(), machine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deletedHistory)

	var stageCount int64
	gdb.Model(&model.WorkflowStage{}).Where("machine_id = ?", machine.ID).Count(&stageCount)
	assert.Equal(t, int64(0), stageCount)

	_, err = s.DeleteMachine(context.Background(), machine.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DashboardAndTasks(t *testing.T) {
	gdb := newTestDB(t)
	crew := seedCrew(t, gdb)
	s := NewGormStore(gdb)

	first := &model.Machine{SerialNumber: "SN-500"}
	second := &model.Machine{SerialNumber: "SN-501"}
	require.NoError(t, s.CreateMachine(context.Background(), first))
	require.NoError(t, s.CreateMachine(context.Background(), second))

	// Move the first machine past material collection so the two machines sit
	// on different stages.
	_, err := s.ValidateCurrentStage(context.Background(), first.ID, "", actorFor(crew[model.RoleSupervisor]))
	require.NoError(t, err)

	t.Run("supervisor sees only their assignment", func(t *testing.T) {
		counts, err := s.Dashboard(context.Background(), actorFor(crew[model.RoleSupervisor]))
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.MyPendingTasks)
		assert.Equal(t, int64(1), counts.MyCompletedTasks)
		assert.Equal(t, int64(2), counts.TotalMachines)

		tasks, err := s.MyTasks(context.Background(), actorFor(crew[model.RoleSupervisor]))
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, fmt.Sprintf("%d_material_collection", second.ID), tasks[0].ID)
		assert.Equal(t, "SN-501", tasks[0].MachineInfo.SerialNumber)
	})

	t.Run("admin sees every active machine", func(t *testing.T) {
		counts, err := s.Dashboard(context.Background(), actorFor(crew[model.RoleAdmin]))
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts.MyPendingTasks)
		assert.Equal(t, int64(0), counts.MyCompletedTasks)
		assert.Equal(t, int64(2), counts.MachinesInMyStage)

		tasks, err := s.MyTasks(context.Background(), actorFor(crew[model.RoleAdmin]))
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	})

	t.Run("recent activities are scoped to the actor", func(t *testing.T) {
		all, err := s.RecentActivities(context.Background(), actorFor(crew[model.RoleAdmin]), 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "material_collection", all[0].StageName)

		mine, err := s.RecentActivities(context.Background(), actorFor(crew[model.RoleAssemblyTech]), 0)
		require.NoError(t, err)
		assert.Empty(t, mine)
	})
}

func TestGormStore_MachineStatistics(t *testing.T) {
	gdb := newTestDB(t)
	seedCrew(t, gdb)
	s := NewGormStore(gdb)

	first := &model.Machine{SerialNumber: "SN-600"}
	second := &model.Machine{SerialNumber: "SN-601"}
	require.NoError(t, s.CreateMachine(context.Background(), first))
	require.NoError(t, s.CreateMachine(context.Background(), second))

	// Force one machine into the completed bucket without walking every stage.
	require.NoError(t, gdb.Model(&model.Machine{}).Where("id = ?", second.ID).
		Updates(map[string]interface{}{"status": model.MachineStatusCompleted, "workflow_status": "completed"}).Error)

	total, completed, stats, err := s.MachineStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), completed)

	byStage := make(map[string]StageStat, len(stats))
	for _, st := range stats {
		byStage[st.Stage] = st
	}
	assert.Equal(t, int64(1), byStage["material_collection"].Count)
	assert.Equal(t, 50.0, byStage["material_collection"].Percentage)
	assert.Equal(t, "Terminé", byStage["completed"].Label)
	assert.Equal(t, int64(1), byStage["completed"].Count)
}
