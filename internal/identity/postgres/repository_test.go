//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/identity"
	"github.com/bissquit/notes-garden/internal/identity/jwt"
	"github.com/bissquit/notes-garden/internal/identity/password"
	"github.com/bissquit/notes-garden/internal/pkg/clock"
	"github.com/bissquit/notes-garden/internal/pkg/postgres"
	"github.com/bissquit/notes-garden/internal/pkg/uow"
	"github.com/bissquit/notes-garden/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx, "../../../migrations")
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testPool, err = pg.NewPool(ctx)
	if err != nil {
		log.Fatalf("open pool: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pg.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func newOpener() uow.Opener[identity.Repository] {
	return postgres.NewOpener(testPool, pgx.TxOptions{}, func(tx pgx.Tx) identity.Repository {
		return NewRepository(tx)
	})
}

func newService(t *testing.T) *identity.Service {
	t.Helper()
	require.NoError(t, testutil.Truncate(context.Background(), testPool, "users"))

	issuer, err := jwt.NewIssuer("test-secret", clock.System{})
	require.NoError(t, err)
	hasher := password.NewHasher(password.Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MaxConcurrent: 4,
	})

	return identity.NewService(newOpener(), hasher, issuer, clock.System{}, identity.Config{
		AccessTokenDuration: time.Hour,
		DefaultPageSize:     10,
		MaxPageSize:         100,
	}, nil)
}

func countUsers(t *testing.T, email string) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(context.Background(), `SELECT count(*) FROM users WHERE email = $1`, email).Scan(&n))
	return n
}

func TestRepository_DuplicateEmailConflict(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	input := identity.CreateUserInput{Name: "A", Email: "dup@example.com", Password: "password123"}

	_, err := svc.CreateUser(ctx, input)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, input)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, countUsers(t, "dup@example.com"))
}

func TestRepository_ConcurrentDuplicateEmail(t *testing.T) {
	svc := newService(t)
	input := identity.CreateUserInput{Name: "A", Email: "race@example.com", Password: "password123"}

	const writers = 5
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateUser(context.Background(), input)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, countUsers(t, "race@example.com"))
}

func TestRepository_UserLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	memo := "first memo"

	created, err := svc.CreateUser(ctx, identity.CreateUserInput{
		Name: "A", Email: "life@example.com", Password: "password123", Memo: &memo,
	})
	require.NoError(t, err)

	login, err := svc.Login(ctx, identity.LoginInput{Email: "life@example.com", Password: "password123"})
	require.NoError(t, err)
	userID, role, err := svc.ValidateToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, userID)
	assert.Equal(t, domain.RoleUser, role)

	name := "Renamed"
	updated, err := svc.UpdateUser(ctx, created.ID, domain.RoleUser, identity.UpdateUserInput{
		CurrentPassword: "password123",
		Name:            &name,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Profile.Name)
	require.NotNil(t, updated.Memo)
	assert.Equal(t, "first memo", *updated.Memo)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	require.NoError(t, svc.DeleteUser(ctx, created.ID))
	_, err = svc.GetUser(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_UserPagination(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CreateUser(ctx, identity.CreateUserInput{
			Name: "U", Email: uuid.NewString()[:8] + "@example.com", Password: "password123",
		})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	next := ""
	pageSize := 2
	for {
		page, err := svc.ListUsers(ctx, &pageSize, next)
		require.NoError(t, err)
		for _, u := range page.Items {
			assert.False(t, seen[u.ID])
			seen[u.ID] = true
		}
		if !page.HasMore {
			break
		}
		next = page.NextCursor
	}
	assert.Len(t, seen, 5)
}
