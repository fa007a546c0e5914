package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/store"
	"workshop-tracker-backend/internal/view"
	"workshop-tracker-backend/internal/workflow"
)

// LoginPage renders the login form, or skips straight to the dashboard when a
// session is already present.
func (p *Pages) LoginPage(c *gin.Context) {
	if _, ok := auth.FromContext(c); ok {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	c.HTML(http.StatusOK, "login.tmpl", gin.H{"Title": "Connexion"})
}

// DashboardPage renders the per-user counters and the recent activity feed.
func (p *Pages) DashboardPage(c *gin.Context) {
	act := p.actor(c)
	ctx := c.Request.Context()

	counts, err := p.store.Dashboard(ctx, act)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	activities, err := p.store.RecentActivities(ctx, act, 0)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load activities")
		return
	}

	c.HTML(http.StatusOK, "dashboard.tmpl", gin.H{
		"Title":      "Tableau de bord",
		"Page":       p.pageContext(c),
		"Counts":     counts,
		"Activities": activities,
	})
}

// TasksPage renders the session user's open tasks.
func (p *Pages) TasksPage(c *gin.Context) {
	tasks, err := p.store.MyTasks(c.Request.Context(), p.actor(c))
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load tasks")
		return
	}

	c.HTML(http.StatusOK, "tasks.tmpl", gin.H{
		"Title": "Mes tâches",
		"Page":  p.pageContext(c),
		"Tasks": tasks,
	})
}

// MachinesPage renders the machine list with the same role filtering as the
// API, narrowed further by the ?q= substring filter.
func (p *Pages) MachinesPage(c *gin.Context) {
	act := p.actor(c)

	query := p.store.DB().Order("created_at DESC")
	if !act.IsAdmin() {
		query = query.Where("current_stage = ? OR assigned_user_id = ?", act.StageAccess, act.UserID)
	}

	var machines []model.Machine
	if err := query.Find(&machines).Error; err != nil {
		c.String(http.StatusInternalServerError, "failed to load machines")
		return
	}

	q := c.Query("q")
	machines = view.Filter(machines, q, func(m model.Machine) []string {
		return []string{
			m.SerialNumber, m.FicheNumber, m.MachineType,
			m.ClientName, m.ClientSociety, m.CurrentStageLabel, m.Status,
		}
	})

	c.HTML(http.StatusOK, "machines.tmpl", gin.H{
		"Title":    "Machines",
		"Page":     p.pageContext(c),
		"Machines": machines,
		"Query":    q,
		"CanAdd":   view.CanSeeNavItem(act.Role, "nav-add-machine"),
	})
}

// stageRow pairs a workflow stage with the actions the session user may
// request on it.
type stageRow struct {
	Stage   model.WorkflowStage
	Actions []workflow.Action
}

// MachineDetailPage renders one machine with its workflow timeline.
func (p *Pages) MachineDetailPage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := p.store.GetMachine(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "machine not found")
		return
	}
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load machine")
		return
	}

	rows := make([]stageRow, 0, len(machine.Stages))
	for _, s := range machine.Stages {
		rows = append(rows, stageRow{Stage: s, Actions: workflow.ActionsFor(s.Status)})
	}

	var history []model.StageHistory
	p.store.DB().Where("machine_id = ?", id).Order("completed_at ASC").Find(&history)

	c.HTML(http.StatusOK, "machine_detail.tmpl", gin.H{
		"Title":   "Machine " + machine.SerialNumber,
		"Page":    p.pageContext(c),
		"Machine": machine,
		"Stages":  rows,
		"History": history,
	})
}

// ClientsPage renders the client list, admin only.
func (p *Pages) ClientsPage(c *gin.Context) {
	var clients []model.Client
	if err := p.store.DB().Order("created_at DESC").Find(&clients).Error; err != nil {
		c.String(http.StatusInternalServerError, "failed to load clients")
		return
	}

	q := c.Query("q")
	clients = view.Filter(clients, q, func(cl model.Client) []string {
		return []string{cl.Name, cl.Society, cl.Email, cl.Phone, cl.Address, cl.Location}
	})

	c.HTML(http.StatusOK, "clients.tmpl", gin.H{
		"Title":   "Clients",
		"Page":    p.pageContext(c),
		"Clients": clients,
		"Query":   q,
	})
}

// UsersPage renders the account list, admin only.
func (p *Pages) UsersPage(c *gin.Context) {
	var users []model.User
	if err := p.store.DB().Order("created_at DESC").Find(&users).Error; err != nil {
		c.String(http.StatusInternalServerError, "failed to load users")
		return
	}

	q := c.Query("q")
	users = view.Filter(users, q, func(u model.User) []string {
		return []string{u.Username, u.Email, u.FirstName, u.LastName, model.RoleLabels[u.Role], u.Department}
	})

	c.HTML(http.StatusOK, "users.tmpl", gin.H{
		"Title":      "Utilisateurs",
		"Page":       p.pageContext(c),
		"Users":      users,
		"Query":      q,
		"RoleLabels": model.RoleLabels,
	})
}
