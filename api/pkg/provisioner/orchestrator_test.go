package provisioner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidgyai/hlprovision/api/pkg/login"
	"github.com/squidgyai/hlprovision/api/pkg/mailbox"
	"github.com/squidgyai/hlprovision/api/pkg/store"
	"github.com/squidgyai/hlprovision/api/pkg/types"
	"github.com/squidgyai/hlprovision/api/pkg/wizard"
)

// fakeRunner scripts one job's browser behaviour.
type fakeRunner struct {
	startErr   error
	authErr    error
	mfaSeen    bool
	intercepts map[types.TokenKind]string
	storage    map[types.TokenKind]string
	mintResult wizard.Result
	mintErr    error

	job         *types.ProvisioningJob
	statusAtMFA types.JobStatus
	mintCalls   int
	scrapeCalls int
	closed      bool
}

func (f *fakeRunner) Start(context.Context) error { return f.startErr }

func (f *fakeRunner) Close() { f.closed = true }

func (f *fakeRunner) Authenticate(_ context.Context, _ login.Credentials, onMFA func()) error {
	if f.mfaSeen && onMFA != nil {
		onMFA()
		if f.job != nil {
			f.statusAtMFA = f.job.Status
		}
	}
	return f.authErr
}

func (f *fakeRunner) CapturedTokens() map[types.TokenKind]string {
	out := map[types.TokenKind]string{}
	for k, v := range f.intercepts {
		out[k] = v
	}
	return out
}

func (f *fakeRunner) ScrapeStorage(context.Context) error {
	f.scrapeCalls++
	for k, v := range f.storage {
		if f.intercepts == nil {
			f.intercepts = map[types.TokenKind]string{}
		}
		if _, ok := f.intercepts[k]; !ok {
			f.intercepts[k] = v
		}
	}
	return nil
}

func (f *fakeRunner) MintIntegration(context.Context, string, []string) (wizard.Result, error) {
	f.mintCalls++
	return f.mintResult, f.mintErr
}

// fakeStore records upserts in memory.
type fakeStore struct {
	mu      sync.Mutex
	upserts map[string]types.CredentialUpdate
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{upserts: map[string]types.CredentialUpdate{}}
}

func (f *fakeStore) UpsertTenantCredentials(_ context.Context, tenantID string, update types.CredentialUpdate) (*types.TenantCredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.upserts[tenantID] = update
	return &types.TenantCredentialRecord{TenantID: tenantID}, nil
}

func (f *fakeStore) GetTenantCredentials(context.Context, string) (*types.TenantCredentialRecord, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListTenantCredentials(context.Context, *store.ListTenantCredentialsQuery) ([]*types.TenantCredentialRecord, error) {
	return nil, nil
}

func (f *fakeStore) DeleteTenantCredentials(context.Context, string) error { return nil }

func bearerWithExpiry(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func newTestOrchestrator(runner *fakeRunner, credStore store.Store) *Orchestrator {
	factory := func(*types.ProvisioningJob) JobRunner { return runner }
	return NewOrchestrator(factory, credStore, Options{
		JobTimeout:  time.Minute,
		StepTimeout: time.Second,
	})
}

func fullJob() *types.ProvisioningJob {
	return NewJob("tenant-1", "agency@example.com", "hunter2", "loc-123", types.JobFlavorFullProvision, nil)
}

func TestRunHappyPath(t *testing.T) {
	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	bearer := bearerWithExpiry(t, exp)

	runner := &fakeRunner{
		mfaSeen: true,
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer:  bearer,
			types.TokenKindSession: "session-token-value",
		},
		mintResult: wizard.Result{Token: "pit-0a1b2c3d4e5f6a7b8c9d"},
	}
	credStore := newFakeStore()

	job := fullJob()
	result := newTestOrchestrator(runner, credStore).Run(context.Background(), job)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Missing)
	assert.Equal(t, bearer, result.Captured[types.TokenKindBearer])
	assert.Equal(t, "pit-0a1b2c3d4e5f6a7b8c9d", result.Captured[types.TokenKindIntegration])
	assert.Equal(t, types.JobStatusCompleted, job.Status)
	assert.True(t, runner.closed)

	saved := credStore.upserts["tenant-1"]
	assert.Equal(t, bearer, saved.Bearer)
	assert.Equal(t, "pit-0a1b2c3d4e5f6a7b8c9d", saved.Integration)
	require.NotNil(t, saved.ExpiresAt)
	assert.True(t, saved.ExpiresAt.Equal(exp))
}

func TestRunOtpTimeoutIsRerunnable(t *testing.T) {
	runner := &fakeRunner{
		mfaSeen: true,
		authErr: mailbox.ErrNoCode,
	}
	credStore := newFakeStore()

	job := fullJob()
	result := newTestOrchestrator(runner, credStore).Run(context.Background(), job)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Equal(t, ReasonOtpTimeout, result.Reason)
	assert.Equal(t, types.JobStatusFailed, job.Status)
	assert.Zero(t, runner.mintCalls, "wizard must not run after a failed login")
	assert.Empty(t, credStore.upserts)
	assert.True(t, runner.closed)
}

func TestRunWizardFailureIsPartialWhenTokensCaptured(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer:  "bearer-token-long-enough-value",
			types.TokenKindSession: "session-token-value",
		},
		mintErr: wizard.ErrTokenNotFound,
	}
	credStore := newFakeStore()

	result := newTestOrchestrator(runner, credStore).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusPartial, result.Status)
	assert.Equal(t, []types.TokenKind{types.TokenKindIntegration}, result.Missing)
	assert.True(t, result.Has(types.TokenKindBearer))
	// Live-captured tokens are persisted even when the mint failed.
	assert.Equal(t, "bearer-token-long-enough-value", credStore.upserts["tenant-1"].Bearer)
}

func TestRunWizardFailureWithNothingCapturedFails(t *testing.T) {
	runner := &fakeRunner{mintErr: errors.New("wizard never rendered")}
	credStore := newFakeStore()

	result := newTestOrchestrator(runner, credStore).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Equal(t, ReasonWizardFailed, result.Reason)
}

func TestRunStartFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("browser refused to launch")}
	credStore := newFakeStore()

	result := newTestOrchestrator(runner, credStore).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Equal(t, ReasonFatalEnvironment, result.Reason)
	assert.Zero(t, runner.mintCalls)
	assert.True(t, runner.closed, "a failed start must still release browser resources")
}

func TestRunLoginFailure(t *testing.T) {
	runner := &fakeRunner{authErr: errors.New("bad credentials")}

	result := newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Equal(t, ReasonLoginFailed, result.Reason)
}

func TestRunStorageScrapeBacksUpInterception(t *testing.T) {
	runner := &fakeRunner{
		storage: map[types.TokenKind]string{
			types.TokenKindBearer:  "bearer-from-local-storage-value",
			types.TokenKindRefresh: "refresh-from-local-storage-val",
		},
		mintResult: wizard.Result{Token: "pit-0a1b2c3d4e5f6a7b8c9d"},
	}

	result := newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), fullJob())

	assert.GreaterOrEqual(t, runner.scrapeCalls, 1)
	assert.Equal(t, "bearer-from-local-storage-value", result.Captured[types.TokenKindBearer])
	assert.Equal(t, "refresh-from-local-storage-val", result.Captured[types.TokenKindRefresh])
	// The session header never showed up; it is reported but optional.
	assert.Contains(t, result.Missing, types.TokenKindSession)
	assert.Equal(t, types.RunStatusCompleted, result.Status)
}

func TestRunCompletesWithoutOptionalSessionHeader(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer: "bearer-token-long-enough-value",
		},
		mintResult: wizard.Result{Token: "pit-0a1b2c3d4e5f6a7b8c9d"},
	}

	result := newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, []types.TokenKind{types.TokenKindSession}, result.Missing)
}

func TestRunBearerOnlyWithoutIntegrationIsPartial(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer: "bearer-token-long-enough-value",
		},
		mintErr: wizard.ErrTokenNotFound,
	}

	result := newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusPartial, result.Status)
	assert.Contains(t, result.Missing, types.TokenKindIntegration)
}

func TestRunRefreshFlavorSkipsWizard(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer:  "bearer-token-long-enough-value",
			types.TokenKindSession: "session-token-value",
		},
	}
	credStore := newFakeStore()

	job := NewJob("tenant-1", "agency@example.com", "hunter2", "loc-123", types.JobFlavorTokenRefresh, nil)
	result := newTestOrchestrator(runner, credStore).Run(context.Background(), job)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Zero(t, runner.mintCalls)
	assert.NotContains(t, result.Missing, types.TokenKindIntegration)
}

func TestRunPersistenceFailureIsWarningOnly(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer:  "bearer-token-long-enough-value",
			types.TokenKindSession: "session-token-value",
		},
		mintResult: wizard.Result{Token: "pit-0a1b2c3d4e5f6a7b8c9d"},
	}
	credStore := newFakeStore()
	credStore.err = errors.New("database is down")

	result := newTestOrchestrator(runner, credStore).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusCompleted, result.Status, "a store failure must not invalidate captured tokens")
	assert.True(t, result.Has(types.TokenKindIntegration))
}

func TestRunReportsSkippedScopes(t *testing.T) {
	runner := &fakeRunner{
		intercepts: map[types.TokenKind]string{
			types.TokenKindBearer:  "bearer-token-long-enough-value",
			types.TokenKindSession: "session-token-value",
		},
		mintResult: wizard.Result{
			Token:         "pit-0a1b2c3d4e5f6a7b8c9d",
			SkippedScopes: []string{"View Medias"},
		},
	}

	result := newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), fullJob())

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"View Medias"}, result.SkippedScopes)
}

func TestRunTracksAwaitingMFAStatus(t *testing.T) {
	runner := &fakeRunner{mfaSeen: true, authErr: errors.New("gave up after mfa")}

	job := fullJob()
	runner.job = job
	_ = newTestOrchestrator(runner, newFakeStore()).Run(context.Background(), job)

	assert.Equal(t, types.JobStatusAwaitingMFA, runner.statusAtMFA)
	assert.Equal(t, types.JobStatusFailed, job.Status)
}

func TestNewJobDefaults(t *testing.T) {
	job := NewJob("tenant-1", "a@b.c", "pw", "loc-1", types.JobFlavorFullProvision, nil)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, types.JobStatusPending, job.Status)
	assert.Equal(t, wizard.DefaultScopes, job.ScopeSet)

	custom := NewJob("tenant-1", "a@b.c", "pw", "loc-1", types.JobFlavorFullProvision, []string{"View Contacts"})
	assert.Equal(t, []string{"View Contacts"}, custom.ScopeSet)
}

func TestRunAllBoundsConcurrencyAndReturnsEveryResult(t *testing.T) {
	var mu sync.Mutex
	var active, peak int

	factory := func(*types.ProvisioningJob) JobRunner {
		return &slowRunner{
			onStart: func() {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
			},
			onClose: func() {
				mu.Lock()
				active--
				mu.Unlock()
			},
		}
	}

	orch := NewOrchestrator(factory, newFakeStore(), Options{JobTimeout: time.Minute})

	jobs := make([]*types.ProvisioningJob, 6)
	for i := range jobs {
		jobs[i] = NewJob("tenant", "a@b.c", "pw", "loc", types.JobFlavorTokenRefresh, nil)
	}

	results := orch.RunAll(context.Background(), jobs, 2)

	require.Len(t, results, 6)
	for i, result := range results {
		require.NotNil(t, result, "job %d must have a result", i)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

// slowRunner holds its slot long enough for concurrency to overlap.
type slowRunner struct {
	onStart func()
	onClose func()
}

func (s *slowRunner) Start(context.Context) error {
	s.onStart()
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (s *slowRunner) Close() { s.onClose() }

func (s *slowRunner) Authenticate(context.Context, login.Credentials, func()) error { return nil }

func (s *slowRunner) CapturedTokens() map[types.TokenKind]string {
	return map[types.TokenKind]string{
		types.TokenKindBearer:  "bearer-token-long-enough-value",
		types.TokenKindSession: "session-token-value",
	}
}

func (s *slowRunner) ScrapeStorage(context.Context) error { return nil }

func (s *slowRunner) MintIntegration(context.Context, string, []string) (wizard.Result, error) {
	return wizard.Result{}, nil
}
