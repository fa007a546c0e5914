package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"workshop-tracker-backend/config"
	"workshop-tracker-backend/internal/auth"
	"workshop-tracker-backend/internal/db"
	"workshop-tracker-backend/internal/model"
	"workshop-tracker-backend/internal/store"
)

var testDBSeq atomic.Int64

// newTestRouter wires a full router against a fresh in-memory database.
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1

	sessions := auth.NewSessions("test-secret", time.Hour)
	appStore := store.NewGormStore(gdb)

	return NewRouter(appStore, sessions, cfg, nil, nil), gdb
}

func seedAccount(t *testing.T, gdb *gorm.DB, username, role, password string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	u := &model.User{
		Username:     username,
		Email:        username + "@atelier.example",
		PasswordHash: string(hash),
		Role:         role,
		StageAccess:  model.StageAccessForRole[role],
		IsActive:     true,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// doJSON performs a request with an optional JSON body and session cookie.
func doJSON(r *gin.Engine, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// login authenticates the given account and returns its session cookie.
func login(t *testing.T, r *gin.Engine, email, password string) *http.Cookie {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/login", gin.H{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set on login")
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
