//go:build integration

package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/notes-garden/internal/config"
	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPISpecPath = "../../api/openapi/openapi.yaml"

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx, "../../migrations")
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pg.ConnectionString
	cfg.Database.MaxOpenConns = 5
	cfg.Database.ConnectAttempts = 3
	cfg.Log.Level = "error"
	cfg.JWT.SecretKey = "test-secret-key"
	cfg.Password.MemoryKiB = 1024
	cfg.Password.Iterations = 1
	cfg.Password.Parallelism = 1
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid test config: %v", err)
	}

	application, err := New(ctx, &cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pg.NewPool(ctx)
	if err != nil {
		log.Fatalf("open test pool: %v", err)
	}

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}
	if err := pg.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}

	os.Exit(code)
}

func newClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClient(t, testServer.URL, testValidator)
}

// newUser registers a fresh account and returns an authenticated client and the user id.
func newUser(t *testing.T) (*testutil.Client, string) {
	t.Helper()
	c := newClient(t)
	email := "u-" + uuid.NewString()[:8] + "@example.com"
	id := c.Register("Test User", email, "password123")
	return c.Login(email, "password123"), id
}

type noteResponse struct {
	Data domain.Note `json:"data"`
}

type notePageResponse struct {
	Data domain.Page[domain.Note] `json:"data"`
}

func tagNames(n domain.Note) []string {
	names := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		names = append(names, t.Name)
	}
	return names
}

func TestHealthAndVersion(t *testing.T) {
	c := newClient(t)

	resp := c.GET("/healthz")
	testutil.Close(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.GET("/readyz")
	testutil.Close(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.GET("/version")
	testutil.Close(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotes_ExampleScenario(t *testing.T) {
	c, userID := newUser(t)

	// Create with a tag repeated modulo surrounding spaces.
	resp := c.POST("/api/v1/notes", map[string]any{
		"title":     "Groceries",
		"content":   "milk, eggs",
		"memo_date": "20240115",
		"tags":      []string{"home", " home ", "errands"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created noteResponse
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, userID, created.Data.UserID)
	assert.ElementsMatch(t, []string{"home", "errands"}, tagNames(created.Data))

	noteURL := "/api/v1/notes/" + created.Data.ID

	resp = c.GET(noteURL)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched noteResponse
	testutil.DecodeJSON(t, resp, &fetched)
	assert.Equal(t, "milk, eggs", fetched.Data.Content)

	resp = c.GET("/api/v1/tags/home/notes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byTag notePageResponse
	testutil.DecodeJSON(t, resp, &byTag)
	require.Len(t, byTag.Data.Items, 1)
	assert.Equal(t, created.Data.ID, byTag.Data.Items[0].ID)

	resp = c.PUT(noteURL, map[string]any{"title": "Shopping", "tags": []string{"weekly"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated noteResponse
	testutil.DecodeJSON(t, resp, &updated)
	assert.Equal(t, "Shopping", updated.Data.Title)
	assert.Equal(t, "milk, eggs", updated.Data.Content)
	assert.Equal(t, []string{"weekly"}, tagNames(updated.Data))
	assert.False(t, updated.Data.UpdatedAt.Before(created.Data.UpdatedAt))

	resp = c.DELETE(noteURL + "/tags")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared noteResponse
	testutil.DecodeJSON(t, resp, &cleared)
	assert.Empty(t, cleared.Data.Tags)

	resp = c.DELETE(noteURL)
	testutil.Close(resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = c.GET(noteURL)
	testutil.Close(resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Tags outlive the notes that used them.
	var tagCount int
	require.NoError(t, testDB.QueryRow(context.Background(),
		`SELECT count(*) FROM tags WHERE name IN ('home', 'errands', 'weekly')`).Scan(&tagCount))
	assert.Equal(t, 3, tagCount)
}

func TestNotes_Pagination(t *testing.T) {
	c, _ := newUser(t)

	for i := 0; i < 5; i++ {
		resp := c.POST("/api/v1/notes", map[string]any{
			"title":     fmt.Sprintf("note %d", i),
			"content":   "body",
			"memo_date": "20240101",
		})
		testutil.Close(resp)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var titles []string
	path := "/api/v1/notes?limit=2"
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5, "pagination did not terminate")

		resp := c.GET(path)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var page notePageResponse
		testutil.DecodeJSON(t, resp, &page)

		for _, n := range page.Data.Items {
			titles = append(titles, n.Title)
		}
		if !page.Data.HasMore {
			assert.Empty(t, page.Data.NextCursor)
			break
		}
		path = "/api/v1/notes?limit=2&cursor=" + page.Data.NextCursor
	}

	assert.Equal(t, []string{"note 4", "note 3", "note 2", "note 1", "note 0"}, titles)
}

func TestNotes_OwnerIsolation(t *testing.T) {
	owner, _ := newUser(t)
	other, _ := newUser(t)

	resp := owner.POST("/api/v1/notes", map[string]any{
		"title": "private", "content": "secret", "memo_date": "20240101",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created noteResponse
	testutil.DecodeJSON(t, resp, &created)

	for _, r := range []*http.Response{
		other.GET("/api/v1/notes/" + created.Data.ID),
		other.PUT("/api/v1/notes/"+created.Data.ID, map[string]any{"title": "stolen"}),
		other.DELETE("/api/v1/notes/" + created.Data.ID),
	} {
		testutil.Close(r)
		assert.Equal(t, http.StatusNotFound, r.StatusCode, r.Request.Method)
	}

	resp = other.GET("/api/v1/notes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page notePageResponse
	testutil.DecodeJSON(t, resp, &page)
	assert.Empty(t, page.Data.Items)
}

func TestNotes_BadRequests(t *testing.T) {
	c, _ := newUser(t)
	raw := c.WithoutValidation()

	tests := []struct {
		name   string
		resp   func() *http.Response
		status int
	}{
		{
			name: "title too long",
			resp: func() *http.Response {
				return raw.POST("/api/v1/notes", map[string]any{
					"title": strings.Repeat("a", 65), "content": "x", "memo_date": "20240101",
				})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "memo date wrong length",
			resp: func() *http.Response {
				return raw.POST("/api/v1/notes", map[string]any{
					"title": "t", "content": "x", "memo_date": "2024",
				})
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "limit out of range",
			resp:   func() *http.Response { return raw.GET("/api/v1/notes?limit=101") },
			status: http.StatusBadRequest,
		},
		{
			name:   "garbage cursor",
			resp:   func() *http.Response { return raw.GET("/api/v1/notes?cursor=garbage") },
			status: http.StatusBadRequest,
		},
		{
			name:   "missing token",
			resp:   func() *http.Response { return raw.WithToken("").GET("/api/v1/notes") },
			status: http.StatusUnauthorized,
		},
		{
			name:   "forged token",
			resp:   func() *http.Response { return raw.WithToken("not.a.jwt").GET("/api/v1/notes") },
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp()
			testutil.Close(resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestUsers_RegistrationAndProfile(t *testing.T) {
	c := newClient(t)
	email := "reg-" + uuid.NewString()[:8] + "@example.com"
	id := c.Register("Reg", email, "password123")

	resp := c.POST("/api/v1/users", map[string]string{
		"name": "Again", "email": email, "password": "password123",
	})
	testutil.Close(resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = c.POST("/api/v1/auth/login", map[string]string{"email": email, "password": "wrong-password"})
	testutil.Close(resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	authed := c.Login(email, "password123")

	resp = authed.GET("/api/v1/users/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		Data domain.User `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &me)
	assert.Equal(t, id, me.Data.ID)
	assert.Equal(t, domain.RoleUser, me.Data.Role)

	resp = authed.PATCH("/api/v1/users/me", map[string]any{
		"current_password": "password123",
		"name":             "Renamed",
		"new_password":     "new-password-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.Close(resp)

	c.Login(email, "new-password-1")

	resp = authed.PATCH("/api/v1/users/me", map[string]any{
		"current_password": "new-password-1",
		"role":             "admin",
	})
	testutil.Close(resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = authed.GET("/api/v1/users")
	testutil.Close(resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUsers_AdminRoutes(t *testing.T) {
	c := newClient(t)
	adminEmail := "admin-" + uuid.NewString()[:8] + "@example.com"
	adminID := c.Register("Admin", adminEmail, "password123")
	_, err := testDB.Exec(context.Background(), `UPDATE users SET role = 'admin' WHERE id = $1`, adminID)
	require.NoError(t, err)
	admin := c.Login(adminEmail, "password123")

	_, victimID := newUser(t)

	resp := admin.GET("/api/v1/users?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Data domain.Page[domain.User] `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &page)
	assert.Len(t, page.Data.Items, 1)
	assert.True(t, page.Data.HasMore)

	resp = admin.GET("/api/v1/users/" + victimID)
	testutil.Close(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = admin.DELETE("/api/v1/users/" + victimID)
	testutil.Close(resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = admin.GET("/api/v1/users/" + victimID)
	testutil.Close(resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
