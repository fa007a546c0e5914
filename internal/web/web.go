package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/store"
	"workshop-tracker-backend/internal/view"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Pages renders the server-side HTML surface on top of the same store the
// JSON API uses.
type Pages struct {
	store store.Store
}

// Register parses the embedded templates and mounts the page routes. Sessions
// are read from the request context; the router's session middleware has
// already run by the time a page handler does.
func Register(r *gin.Engine, s store.Store) {
	funcs := template.FuncMap{
		"orNA":         view.OrNA,
		"orDash":       view.OrDash,
		"price":        view.Price,
		"date":         view.Date,
		"statusBucket": view.StatusBucket,
	}
	tmpl := template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.tmpl"))
	r.SetHTMLTemplate(tmpl)

	static, _ := fs.Sub(staticFS, "static")
	r.StaticFS("/static", http.FS(static))

	p := &Pages{store: s}

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	})
	r.GET("/login", p.LoginPage)

	authed := r.Group("", requireSession())
	{
		authed.GET("/dashboard", p.DashboardPage)
		authed.GET("/my-tasks", p.TasksPage)
		authed.GET("/machines", p.MachinesPage)
		authed.GET("/machines/:id", p.MachineDetailPage)
	}

	admin := r.Group("", requireSession(), requireAdminPage())
	{
		admin.GET("/clients", p.ClientsPage)
		admin.GET("/users", p.UsersPage)
	}
}

// requireSession redirects anonymous visitors to the login page.
func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := auth.FromContext(c); !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAdminPage sends non-admins back to the dashboard instead of showing
// a page they cannot use.
func requireAdminPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		if claims == nil || claims.Role != model.RoleAdmin {
			c.Redirect(http.StatusFound, "/dashboard")
			c.Abort()
			return
		}
		c.Next()
	}
}

// pageContext is the data every page template receives alongside its own
// payload.
type pageContext struct {
	Username string
	Role     string
	Nav      []view.NavItem
}

func (p *Pages) pageContext(c *gin.Context) pageContext {
	claims, ok := auth.FromContext(c)
	if !ok {
		return pageContext{}
	}
	return pageContext{
		Username: claims.Username,
		Role:     claims.Role,
		Nav:      view.NavFor(claims.Role),
	}
}

func (p *Pages) actor(c *gin.Context) store.Actor {
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
