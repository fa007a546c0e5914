package store

import (
	"context"
	"fmt"
	"math"

	"workshop-tracker-backend/internal/model"
)

// Dashboard recomputes the per-user counters from the raw collections.
// Admins see machine-wide counts; technicians see their own assignments and
// their completed-task history.
func (s *gormStore) Dashboard(ctx context.Context, actor Actor) (DashboardCounts, error) {
	var counts DashboardCounts
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Machine{}).Count(&counts.TotalMachines).Error; err != nil {
		return counts, err
	}

	if actor.IsAdmin() {
		if err := db.Model(&model.Machine{}).
			Where("status = ?", model.MachineStatusActive).
			Count(&counts.MyPendingTasks).Error; err != nil {
			return counts, err
		}
		if err := db.Model(&model.Machine{}).
			Where("status = ?", model.MachineStatusCompleted).
			Count(&counts.MyCompletedTasks).Error; err != nil {
			return counts, err
		}
		counts.MachinesInMyStage = counts.TotalMachines
		return counts, nil
	}

	if err := db.Model(&model.Machine{}).
		Where("assigned_user_id = ? AND status = ?", actor.UserID, model.MachineStatusActive).
		Count(&counts.MyPendingTasks).Error; err != nil {
		return counts, err
	}
	if err := db.Model(&model.Machine{}).
		Where("assigned_user_id = ?", actor.UserID).
		Count(&counts.MachinesInMyStage).Error; err != nil {
		return counts, err
	}
	if err := db.Model(&model.StageHistory{}).
		Where("user_id = ?", actor.UserID).
		Count(&counts.MyCompletedTasks).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

// MyTasks returns the machines whose current stage is assigned to the actor.
// Admins get every active machine.
func (s *gormStore) MyTasks(ctx context.Context, actor Actor) ([]Task, error) {
	db := s.db.WithContext(ctx)

	var machines []model.Machine
	query := db.Where("status = ?", model.MachineStatusActive)
	if !actor.IsAdmin() {
		query = query.Where("assigned_user_id = ?", actor.UserID)
	}
	if err := query.Order("stage_started_at ASC").Find(&machines).Error; err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(machines))
	for _, m := range machines {
		tasks = append(tasks, Task{
			ID:         taskID(m),
			MachineID:  m.ID,
			StageName:  m.CurrentStage,
			StageLabel: m.CurrentStageLabel,
			Status:     model.StageInProgress,
			MachineInfo: TaskMachine{
				SerialNumber:  m.SerialNumber,
				MachineType:   m.MachineType,
				ClientName:    m.ClientName,
				ClientSociety: m.ClientSociety,
			},
			StageStartedAt: m.StageStartedAt,
			AssignedUser:   m.AssignedUsername,
			Priority:       "normal",
		})
	}
	return tasks, nil
}

func taskID(m model.Machine) string {
	stage := m.CurrentStage
	if stage == "" {
		stage = "unknown"
	}
	return fmt.Sprintf("%d_%s", m.ID, stage)
}

// RecentActivities returns the latest completed-stage snapshots, newest
// first. Non-admin actors only see their own activity.
func (s *gormStore) RecentActivities(ctx context.Context, actor Actor, limit int) ([]model.StageHistory, error) {
	if limit <= 0 {
		limit = 15
	}

	query := s.db.WithContext(ctx).Model(&model.StageHistory{})
	if !actor.IsAdmin() {
		query = query.Where("user_id = ?", actor.UserID)
	}

	var activities []model.StageHistory
	if err := query.Order("completed_at DESC").Limit(limit).Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}

// MachineStatistics aggregates the machine distribution per current stage.
// Completed machines are grouped under the synthetic "completed" stage.
func (s *gormStore) MachineStatistics(ctx context.Context) (int64, int64, []StageStat, error) {
	db := s.db.WithContext(ctx)

	var machines []model.Machine
	if err := db.Find(&machines).Error; err != nil {
		return 0, 0, nil, err
	}

	var defs []model.StageDefinition
	if err := db.Find(&defs).Error; err != nil {
		return 0, 0, nil, err
	}
	labels := make(map[string]string, len(defs))
	for _, d := range defs {
		labels[d.Name] = d.Label
	}
	labels["completed"] = "Terminé"

	stageCounts := make(map[string]int64)
	var total, completed int64
	for _, m := range machines {
		stage := m.CurrentStage
		if stage == "" {
			stage = "unknown"
		}
		if m.Status == model.MachineStatusCompleted {
			completed++
			stage = "completed"
		}
		stageCounts[stage]++
		total++
	}

	stats := make([]StageStat, 0, len(stageCounts))
	for stage, count := range stageCounts {
		label, ok := labels[stage]
		if !ok {
			label = stage
		}
		var pct float64
		if total > 0 {
			pct = math.Round(float64(count)/float64(total)*1000) / 10
		}
		stats = append(stats, StageStat{Stage: stage, Label: label, Count: count, Percentage: pct})
	}
	return total, completed, stats, nil
}
