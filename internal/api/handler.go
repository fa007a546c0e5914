package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	sessions *auth.Sessions
	webpush  *webpush.Options
	notify   store.Notifier
}

// NewHandler creates a new API handler. notify may be nil when push
// notifications are disabled.
func NewHandler(s store.Store, sessions *auth.Sessions, webpushOptions *webpush.Options, notify store.Notifier) *Handler {
	return &Handler{
		store:    s,
		sessions: sessions,
		webpush:  webpushOptions,
		notify:   notify,
	}
}

// actor extracts the session actor from the gin context. Handlers behind
// RequireAuth can rely on it being present.
func actor(c *gin.Context) store.Actor {
	claims, ok := auth.FromContext(c)
	if !ok {
		return store.Actor{}
	}
	return store.Actor{
		UserID:      claims.UserID,
		Username:    claims.Username,
		Role:        claims.Role,
		StageAccess: claims.StageAccess,
	}
}

// abortWithStoreError maps store sentinel errors onto HTTP statuses and
// surfaces the error text verbatim, which is what clients display.
func abortWithStoreError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrNoWorkflow), errors.Is(err, store.ErrStageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNoEligibleUser):
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
