// Package provisioner composes the browser session, login state machine,
// mailbox poller, token interceptor, wizard and credential store into one
// end-to-end provisioning job.
package provisioner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/login"
	"github.com/squidgyai/hlprovision/api/pkg/mailbox"
	"github.com/squidgyai/hlprovision/api/pkg/store"
	"github.com/squidgyai/hlprovision/api/pkg/token"
	"github.com/squidgyai/hlprovision/api/pkg/types"
	"github.com/squidgyai/hlprovision/api/pkg/wizard"
)

// JobRunner executes the browser-facing steps of one job. The production
// implementation binds a rod page; tests substitute fakes.
type JobRunner interface {
	// Start acquires the browser session and performs the initial
	// navigation. A Start failure is an environment problem and is never
	// retried.
	Start(ctx context.Context) error
	// Close releases every browser resource. Must be safe to call after a
	// failed Start and more than once.
	Close()
	Authenticate(ctx context.Context, creds login.Credentials, onMFA func()) error
	// CapturedTokens snapshots what the network tap has seen so far.
	CapturedTokens() map[types.TokenKind]string
	// ScrapeStorage is the post-auth fallback when interception missed.
	ScrapeStorage(ctx context.Context) error
	MintIntegration(ctx context.Context, tenantHandle string, scopes []string) (wizard.Result, error)
}

// RunnerFactory builds the runner for one job.
type RunnerFactory func(job *types.ProvisioningJob) JobRunner

type Options struct {
	JobTimeout  time.Duration
	StepTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Minute
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 60 * time.Second
	}
	return o
}

type Orchestrator struct {
	factory RunnerFactory
	creds   store.Store
	opts    Options
}

func NewOrchestrator(factory RunnerFactory, creds store.Store, opts Options) *Orchestrator {
	return &Orchestrator{factory: factory, creds: creds, opts: opts.withDefaults()}
}

// NewJob builds a pending job for a tenant. Scope set defaults to the
// wizard's standard permission list.
func NewJob(tenantID, loginIdentity, loginSecret, tenantHandle string, flavor types.JobFlavor, scopes []string) *types.ProvisioningJob {
	if len(scopes) == 0 {
		scopes = wizard.DefaultScopes
	}
	now := time.Now()
	return &types.ProvisioningJob{
		ID:                 uuid.New().String(),
		TenantID:           tenantID,
		LoginIdentity:      loginIdentity,
		LoginSecret:        loginSecret,
		TargetTenantHandle: tenantHandle,
		ScopeSet:           scopes,
		Flavor:             flavor,
		Status:             types.JobStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Run drives one job end to end. The returned result always names which
// credential kinds were and were not captured; errors are folded into the
// result's status and reason, never returned raw.
func (o *Orchestrator) Run(ctx context.Context, job *types.ProvisioningJob) *types.RunResult {
	ctx, cancel := context.WithTimeout(ctx, o.opts.JobTimeout)
	defer cancel()

	result := &types.RunResult{
		JobID:    job.ID,
		TenantID: job.TenantID,
		Captured: map[types.TokenKind]string{},
	}

	runner := o.factory(job)

	o.setStatus(job, types.JobStatusAuthenticating)
	if err := runner.Start(ctx); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("browser session could not start")
		// Start may have acquired resources before failing.
		runner.Close()
		return o.fail(job, result, ReasonFatalEnvironment)
	}
	// Teardown is guaranteed on every path from here on, including the
	// job-level timeout firing mid-step.
	defer runner.Close()

	creds := login.Credentials{Identity: job.LoginIdentity, Secret: job.LoginSecret}
	err := runner.Authenticate(ctx, creds, func() {
		o.setStatus(job, types.JobStatusAwaitingMFA)
	})
	if err != nil {
		if errors.Is(err, mailbox.ErrNoCode) {
			log.Warn().Str("job_id", job.ID).Msg("no otp arrived, job is re-runnable")
			return o.fail(job, result, ReasonOtpTimeout)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return o.fail(job, result, ReasonJobTimeout)
		}
		log.Error().Err(err).Str("job_id", job.ID).Msg("authentication failed")
		return o.fail(job, result, ReasonLoginFailed)
	}

	// Captured tokens are read only after authentication; the interceptor
	// has been accumulating since before the first navigation.
	o.setStatus(job, types.JobStatusCapturing)
	o.collectTokens(ctx, runner, result)

	if job.Flavor == types.JobFlavorFullProvision {
		o.setStatus(job, types.JobStatusProvisioning)

		mintCtx, mintCancel := context.WithTimeout(ctx, o.opts.StepTimeout)
		minted, err := runner.MintIntegration(mintCtx, job.TargetTenantHandle, job.ScopeSet)
		mintCancel()

		result.SkippedScopes = minted.SkippedScopes
		if err != nil {
			if len(result.Captured) == 0 {
				log.Error().Err(err).Str("job_id", job.ID).Msg("wizard failed with nothing captured")
				return o.fail(job, result, ReasonWizardFailed)
			}
			// Losing the minted token does not invalidate what the tap
			// already caught.
			log.Warn().Err(err).Str("job_id", job.ID).Msg("integration mint failed, reporting partial capture")
		} else {
			result.Captured[types.TokenKindIntegration] = minted.Token
		}

		// The wizard run produces fresh traffic; pick up anything new.
		o.collectTokens(ctx, runner, result)
	}

	o.setStatus(job, types.JobStatusPersisting)
	o.persist(ctx, job, result)

	o.finalize(job, result)
	return result
}

// collectTokens merges the interceptor snapshot into the result, falling
// back to a storage scrape when live interception caught nothing.
func (o *Orchestrator) collectTokens(ctx context.Context, runner JobRunner, result *types.RunResult) {
	merge := func() {
		for kind, value := range runner.CapturedTokens() {
			if _, ok := result.Captured[kind]; !ok {
				result.Captured[kind] = value
			}
		}
	}

	merge()
	if _, ok := result.Captured[types.TokenKindBearer]; !ok {
		if err := runner.ScrapeStorage(ctx); err != nil {
			log.Warn().Err(err).Msg("storage scrape failed")
		}
		merge()
	}
}

func (o *Orchestrator) persist(ctx context.Context, job *types.ProvisioningJob, result *types.RunResult) {
	update := types.CredentialUpdate{
		Bearer:      result.Captured[types.TokenKindBearer],
		Session:     result.Captured[types.TokenKindSession],
		Refresh:     result.Captured[types.TokenKindRefresh],
		Integration: result.Captured[types.TokenKindIntegration],
	}

	for kind, value := range result.Captured {
		captured := types.CapturedToken{JobID: job.ID, Kind: kind, Value: value}
		if claims := token.Inspect(value); claims != nil {
			captured.IssuedAt = claims.IssuedAt
			captured.ExpiresAt = claims.ExpiresAt
		}
		if kind == types.TokenKindBearer {
			update.ExpiresAt = captured.ExpiresAt
		}
		// Token values never reach the log, only their bookkeeping.
		log.Debug().
			Str("job_id", captured.JobID).
			Str("kind", string(captured.Kind)).
			Interface("expires_at", captured.ExpiresAt).
			Msg("captured token recorded")
	}

	if update.Empty() {
		return
	}

	if _, err := o.creds.UpsertTenantCredentials(ctx, job.TenantID, update); err != nil {
		// A store write failure is a warning; the tokens in the result are
		// still good and are still returned to the caller.
		log.Warn().Err(err).Str("tenant_id", job.TenantID).Msg("credential persistence failed")
	}
}

// finalize decides the terminal status. Completed means every required kind
// for the flavor is present: the bearer token, plus the integration token on
// a full provision. The session header is informational only, some console
// builds never emit it; a missing one is still listed but does not demote
// the run. Any other non-empty subset is a partial success.
func (o *Orchestrator) finalize(job *types.ProvisioningJob, result *types.RunResult) {
	result.Missing = missingKinds(job.Flavor, result.Captured)

	switch {
	case hasAll(requiredKinds(job.Flavor), result.Captured):
		result.Status = types.RunStatusCompleted
	case len(result.Captured) > 0:
		result.Status = types.RunStatusPartial
	default:
		result.Status = types.RunStatusFailed
		result.Reason = ReasonCaptureFailed
	}

	if result.Status == types.RunStatusFailed {
		o.setStatus(job, types.JobStatusFailed)
	} else {
		o.setStatus(job, types.JobStatusCompleted)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("status", string(result.Status)).
		Interface("missing", result.Missing).
		Strs("skipped_scopes", result.SkippedScopes).
		Msg("provisioning job finished")
}

func (o *Orchestrator) fail(job *types.ProvisioningJob, result *types.RunResult, reason string) *types.RunResult {
	result.Status = types.RunStatusFailed
	result.Reason = reason
	result.Missing = missingKinds(job.Flavor, result.Captured)
	o.setStatus(job, types.JobStatusFailed)
	return result
}

func (o *Orchestrator) setStatus(job *types.ProvisioningJob, status types.JobStatus) {
	job.Status = status
	job.UpdatedAt = time.Now()
	log.Debug().Str("job_id", job.ID).Str("status", string(status)).Msg("job status")
}

func requiredKinds(flavor types.JobFlavor) []types.TokenKind {
	required := []types.TokenKind{types.TokenKindBearer}
	if flavor == types.JobFlavorFullProvision {
		required = append(required, types.TokenKindIntegration)
	}
	return required
}

// missingKinds reports every expected kind that did not show up, including
// the optional session header, so a caller sees the full picture.
func missingKinds(flavor types.JobFlavor, captured map[types.TokenKind]string) []types.TokenKind {
	expected := []types.TokenKind{types.TokenKindBearer, types.TokenKindSession}
	if flavor == types.JobFlavorFullProvision {
		expected = append(expected, types.TokenKindIntegration)
	}

	var missing []types.TokenKind
	for _, kind := range expected {
		if _, ok := captured[kind]; !ok {
			missing = append(missing, kind)
		}
	}
	return missing
}

func hasAll(kinds []types.TokenKind, captured map[types.TokenKind]string) bool {
	for _, kind := range kinds {
		if _, ok := captured[kind]; !ok {
			return false
		}
	}
	return true
}
