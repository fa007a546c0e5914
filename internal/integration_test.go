package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"workshop-tracker-backend/config"
	"workshop-tracker-backend/internal/api"
	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/db"
	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/store"
	"workshop-tracker-backend/internal/web"
)

// TestMachineLifecycle walks one machine from registration through every
// production stage and verifies what each participant sees along the way.
func TestMachineLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(1)
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Seed.AdminUsername = "admin"
	cfg.Seed.AdminEmail = "admin@atelier.example"
	cfg.Seed.AdminPassword = "secret123"
	require.NoError(t, db.SeedAdmin(testDB, &cfg.Seed))

	appStore := store.NewGormStore(testDB)
	sessions := auth.NewSessions("integration-secret", time.Hour)
	router := api.NewRouter(appStore, sessions, cfg, nil, nil)
	web.Register(router, appStore)

	do := func(method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	login := func(email, password string) *http.Cookie {
		w := do(http.MethodPost, "/api/login", gin.H{"email": email, "password": password}, nil)
		require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())
		for _, c := range w.Result().Cookies() {
			if c.Name == auth.SessionCookie {
				return c
			}
		}
		t.Fatal("no session cookie set on login")
		return nil
	}

	t.Run("anonymous visitors are sent to the login page", func(t *testing.T) {
		w := do(http.MethodGet, "/dashboard", nil, nil)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))

		w = do(http.MethodGet, "/api/users/current", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	adminCookie := login("admin@atelier.example", "secret123")

	t.Run("admin staffs the workshop", func(t *testing.T) {
		for username, role := range map[string]string{
			"sami":  model.RoleSupervisor,
			"amel":  model.RoleAssemblyTech,
			"tarek": model.RoleTestingTech,
			"dora":  model.RoleDeliveryTech,
			"imen":  model.RoleInstallationTech,
		} {
			w := do(http.MethodPost, "/api/users", gin.H{
				"username": username,
				"email":    username + "@atelier.example",
				"password": "secret123",
				"role":     role,
			}, adminCookie)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		}
	})

	var clientID int64
	t.Run("admin registers a client", func(t *testing.T) {
		w := do(http.MethodPost, "/api/clients", gin.H{
			"clientName":    "Jalel Ben Ali",
			"clientSociety": "Agri Sud",
			"clientPhone":   "71 234 567",
			"clientAddress": "1 Rue des Oliviers",
		}, adminCookie)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var client model.Client
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &client))
		clientID = client.ID
	})

	var machineID int64
	t.Run("machine registration builds the workflow", func(t *testing.T) {
		w := do(http.MethodPost, "/api/machines", gin.H{
			"serialNumber": "SN-2024-001",
			"machineType":  "Broyeur",
			"clientId":     clientID,
		}, adminCookie)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var machine model.Machine
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &machine))
		machineID = machine.ID

		assert.Equal(t, "Agri Sud", machine.ClientSociety)
		assert.Equal(t, "material_collection", machine.CurrentStage)
		assert.Equal(t, "sami", machine.AssignedUsername)
	})

	t.Run("each technician validates their stage in turn", func(t *testing.T) {
		path := fmt.Sprintf("/api/stages/%d/validate", machineID)
		for _, username := range []string{"sami", "amel", "tarek", "dora"} {
			cookie := login(username+"@atelier.example", "secret123")
			w := do(http.MethodPost, path, gin.H{"remarks": "ok"}, cookie)
			require.Equal(t, http.StatusOK, w.Code, "%s: %s", username, w.Body.String())
		}

		cookie := login("imen@atelier.example", "secret123")
		w := do(http.MethodPost, path, gin.H{"remarks": "posée chez le client"}, cookie)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Final stage 'Installation' completed. Machine marked as completed.", resp["message"])
	})

	t.Run("dashboard and activity reflect the finished machine", func(t *testing.T) {
		w := do(http.MethodGet, "/api/stages/dashboard", nil, adminCookie)
		require.Equal(t, http.StatusOK, w.Code)

		var counts store.DashboardCounts
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
		assert.Equal(t, int64(1), counts.TotalMachines)
		assert.Equal(t, int64(0), counts.MyPendingTasks)
		assert.Equal(t, int64(1), counts.MyCompletedTasks)

		w = do(http.MethodGet, "/api/stages/recent-activities", nil, adminCookie)
		require.Equal(t, http.StatusOK, w.Code)

		var activities []model.StageHistory
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &activities))
		require.Len(t, activities, 5)
		// Newest first: the installation stage closed last.
		assert.Equal(t, "installation", activities[0].StageName)
	})

	t.Run("machine page renders with placeholders and workflow timeline", func(t *testing.T) {
		w := do(http.MethodGet, fmt.Sprintf("/machines/%d", machineID), nil, adminCookie)
		require.Equal(t, http.StatusOK, w.Code)

		page := w.Body.String()
		assert.Contains(t, page, "SN-2024-001")
		assert.Contains(t, page, "Agri Sud")
		// Prices were never set, so the placeholder shows instead of 0.00.
		assert.Contains(t, page, "N/A")
	})

	t.Run("page search narrows the machine list", func(t *testing.T) {
		w := do(http.MethodGet, "/machines?q=sn-2024", nil, adminCookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "SN-2024-001")

		w = do(http.MethodGet, "/machines?q=introuvable", nil, adminCookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "Aucune machine trouvée"))
	})

	t.Run("admin pages bounce technicians back to the dashboard", func(t *testing.T) {
		cookie := login("sami@atelier.example", "secret123")

		w := do(http.MethodGet, "/users", nil, cookie)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))

		w = do(http.MethodGet, "/clients", nil, cookie)
		require.Equal(t, http.StatusFound, w.Code)
	})
}
