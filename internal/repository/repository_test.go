package repository

import (
	"context"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/be-hr-workflows/internal/common/database"
	"github.com/identra/be-hr-workflows/internal/common/errors"
	"github.com/identra/be-hr-workflows/internal/domain"
)

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	sql, err := migrations.ReadFile(names[0])
	require.NoError(t, err)
	for _, idx := range []string{"uq_workflow_requests_active", "uq_approval_step_instances_awaiting", "uq_workflow_types_code"} {
		assert.Contains(t, string(sql), idx)
	}
}

// openTestDB connects to the Postgres named by WORKFLOWS_TEST_DB_HOST and
// resets the schema. Tests are skipped when it is not set.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	host := os.Getenv("WORKFLOWS_TEST_DB_HOST")
	if host == "" {
		t.Skip("WORKFLOWS_TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("WORKFLOWS_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{
		Host:     host,
		Port:     port,
		User:     envOr("WORKFLOWS_TEST_DB_USER", "postgres"),
		Password: os.Getenv("WORKFLOWS_TEST_DB_PASSWORD"),
		Database: envOr("WORKFLOWS_TEST_DB_NAME", "hr_workflows_test"),
		SSLMode:  "disable",
		MaxConns: 8,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are re-runnable")
	_, err = db.Exec(ctx, `TRUNCATE workflow_audit_log, approval_step_instances, workflow_requests, workflow_steps, workflow_types RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func seedTemplate(t *testing.T, repo *TemplateRepository) *domain.Template {
	t.Helper()
	ctx := context.Background()
	tmpl, err := repo.CreateTemplate(ctx, domain.WorkflowType{Code: "LEAVE", Name: domain.LocalizedName{En: "Leave"}, IsActive: true},
		[]domain.WorkflowStep{
			{StepOrder: 1, Name: domain.LocalizedName{En: "Manager"}, ApproverRoleID: "MANAGER"},
			{StepOrder: 2, Name: domain.LocalizedName{En: "Director"}, ApproverRoleID: "DIRECTOR", IsFinalStep: true},
		})
	require.NoError(t, err)
	return tmpl
}

func TestTemplateRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()

	tmpl := seedTemplate(t, repo)
	require.Len(t, tmpl.Steps, 2)

	_, err := repo.CreateTemplate(ctx, domain.WorkflowType{Code: "LEAVE", Name: domain.LocalizedName{En: "Again"}}, nil)
	assert.True(t, errors.Is(err, domain.ErrDuplicateCode))

	// a failing step insert rolls the type back
	_, err = repo.CreateTemplate(ctx, domain.WorkflowType{Code: "BROKEN", Name: domain.LocalizedName{En: "Broken"}},
		[]domain.WorkflowStep{{StepOrder: 1, Name: domain.LocalizedName{En: "Manager"}, ApproverRoleID: "MANAGER\x00", IsFinalStep: true}})
	require.Error(t, err)
	_, err = repo.GetTemplateByCode(ctx, "BROKEN")
	assert.True(t, errors.Is(err, domain.ErrTemplateNotFound))

	tmpl, err = repo.AddStep(ctx, tmpl.Type.ID, domain.WorkflowStep{StepOrder: 2, Name: domain.LocalizedName{En: "HR"}, ApproverRoleID: "HR"})
	require.NoError(t, err)
	require.Len(t, tmpl.Steps, 3)
	assert.Equal(t, domain.RoleID("HR"), tmpl.Steps[1].ApproverRoleID)
	assert.True(t, tmpl.Steps[2].IsFinalStep)

	_, err = repo.SetTemplateActive(ctx, tmpl.Type.ID, false)
	require.NoError(t, err)
	_, err = repo.GetTemplate(ctx, tmpl.Type.ID)
	assert.True(t, errors.Is(err, domain.ErrTemplateInactive))

	got, err := repo.GetTemplateByCode(ctx, "LEAVE")
	require.NoError(t, err)
	assert.False(t, got.Type.IsActive)
}

func TestRequestRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	templates := NewTemplateRepository(db)
	requests := NewRequestRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tmpl := seedTemplate(t, templates)
	agg, err := domain.NewAggregate(*tmpl, []int64{40, 60}, "LV-1", 12, now)
	require.NoError(t, err)

	created, err := requests.CreateAggregate(ctx, agg)
	require.NoError(t, err)
	require.NotZero(t, created.Request.ID)
	first := created.Current().ID

	again, err := domain.NewAggregate(*tmpl, []int64{40, 60}, "LV-1", 12, now)
	require.NoError(t, err)
	_, err = requests.CreateAggregate(ctx, again)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	pending, err := requests.ListPendingForApprover(ctx, 40)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// concurrent decisions on one instance: exactly one wins, losers see NOT_ACTIONABLE
	race := func(instanceID, actor int64) {
		t.Helper()
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			refusals []error
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := requests.ApplyDecision(ctx, instanceID, func(a *domain.Aggregate) (*domain.Transition, error) {
					return a.Decide(instanceID, actor, domain.ActionApprove, "", now.Add(time.Minute))
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
					return
				}
				refusals = append(refusals, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		for _, err := range refusals {
			assert.Equal(t, domain.CodeNotActionable, errors.CodeOf(err), err.Error())
		}
	}

	race(first, 40)
	after, err := requests.GetAggregate(ctx, created.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Request.CurrentStepOrder)
	require.NoError(t, after.CheckInvariants())

	race(after.Current().ID, 60)
	after, err = requests.GetAggregate(ctx, created.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, after.Request.CurrentStatus)
	require.NoError(t, after.CheckInvariants())

	_, err = requests.ApplyToRequest(ctx, created.Request.ID, func(a *domain.Aggregate) (*domain.Transition, error) {
		return a.Cancel(12, "plans changed", now.Add(2*time.Minute))
	})
	assert.True(t, errors.Is(err, domain.ErrRequestAlreadyClosed))

	history, err := requests.ListHistory(ctx, created.Request.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.RequestApproved, history[2].StatusAfter)

	_, err = requests.ListHistory(ctx, 9999)
	assert.True(t, errors.Is(err, domain.ErrRequestNotFound))

	// a closed request frees the transaction for a new attempt
	retry, err := domain.NewAggregate(*tmpl, []int64{40, 60}, "LV-1", 12, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = requests.CreateAggregate(ctx, retry)
	require.NoError(t, err)
}
