package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"workshop-tracker-backend/config"
	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/mw"
	"workshop-tracker-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, sessions *auth.Sessions, cfg *config.Config, webpushOptions *webpush.Options, notify store.Notifier) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, sessions, webpushOptions, notify)

	rateLimiter := mw.RateLimiter(
		rate.Limit(cfg.Server.RateLimitPerSec),
		cfg.Server.RateLimitBurst,
		cfg.Server.RequestIPHeader,
	)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.Use(sessions.Middleware())

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.POST("/login", handler.Login)
		api.POST("/logout", handler.Logout)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		authed := api.Group("", auth.RequireAuth())
		{
			authed.GET("/users/current", handler.CurrentUser)
			authed.GET("/users/roles", handler.Roles)
			authed.GET("/users/by-stage/:stage", handler.UsersByStage)
			// Own-profile access; the handlers enforce admin for other IDs.
			authed.GET("/users/:id", handler.GetUser)
			authed.PUT("/users/:id", handler.UpdateUser)

			// Both list spellings survive from earlier client revisions.
			authed.GET("/clients", caching, handler.ListClients)
			authed.GET("/clients/all", caching, handler.ListClients)
			authed.GET("/clients/:id", handler.GetClient)

			authed.GET("/machines", handler.ListMachines)
			authed.GET("/machines/statistics", caching, handler.MachineStatistics)
			authed.GET("/machines/:id", handler.GetMachine)
			authed.POST("/machines", auth.RequireRoles(model.RoleDeliveryTech), handler.CreateMachine)

			authed.GET("/stages/definitions", caching, handler.StageDefinitions)
			authed.GET("/stages/machine/:id/current", handler.MachineCurrentStage)
			authed.GET("/stages/machine/:id/history", handler.MachineHistory)
			authed.POST("/stages/:id/validate", handler.ValidateStage)

			authed.GET("/stages/dashboard", handler.Dashboard)
			authed.GET("/stages/my-tasks", handler.MyTasks)
			authed.GET("/stages/recent-activities", handler.RecentActivities)

			authed.GET("/workflows", handler.ListWorkflows)
			authed.GET("/workflows/:machineID", handler.GetWorkflow)
			authed.PUT("/workflows/:machineID/stage/:stageName", handler.UpdateWorkflowStage)

			authed.GET("/subscriptions", handler.GetSubscription)
			authed.PUT("/subscriptions", handler.PutSubscription)
			authed.DELETE("/subscriptions", handler.DeleteSubscription)
		}

		admin := api.Group("", auth.RequireAuth(), auth.RequireAdmin())
		{
			admin.GET("/users", handler.ListUsers)
			admin.GET("/users/all", handler.ListUsers)
			admin.POST("/users", handler.CreateUser)
			admin.DELETE("/users/:id", handler.DeleteUser)

			admin.POST("/clients", handler.CreateClient)
			admin.PUT("/clients/:id", handler.UpdateClient)
			admin.DELETE("/clients/:id", handler.DeleteClient)

			admin.PUT("/machines/:id", handler.UpdateMachine)
			admin.DELETE("/machines/:id", handler.DeleteMachine)

			admin.POST("/workflows/:machineID/stage/:stageName/assign", handler.AssignStageUser)
		}
	}

	return r
}
