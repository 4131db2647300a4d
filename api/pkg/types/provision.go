package types

import (
	"time"
)

// JobStatus tracks a provisioning job through its lifecycle. Only the
// orchestrator mutates it.
type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusAuthenticating JobStatus = "authenticating"
	JobStatusAwaitingMFA    JobStatus = "awaiting_mfa"
	JobStatusCapturing      JobStatus = "capturing"
	JobStatusProvisioning   JobStatus = "provisioning"
	JobStatusPersisting     JobStatus = "persisting"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
)

// JobFlavor selects how much of the pipeline a job runs. A refresh job logs
// in and captures live tokens but never touches the integration wizard.
type JobFlavor string

const (
	JobFlavorFullProvision JobFlavor = "full_provision"
	JobFlavorTokenRefresh  JobFlavor = "token_refresh"
)

type TokenKind string

const (
	TokenKindBearer      TokenKind = "bearer"
	TokenKindSession     TokenKind = "session"
	TokenKindRefresh     TokenKind = "refresh"
	TokenKindIntegration TokenKind = "integration"
)

// ProvisioningJob is one end-to-end credential provisioning run for a tenant.
type ProvisioningJob struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	LoginIdentity      string    `json:"login_identity"`
	LoginSecret        string    `json:"-"`
	TargetTenantHandle string    `json:"target_tenant_handle"`
	ScopeSet           []string  `json:"scope_set"`
	Flavor             JobFlavor `json:"flavor"`
	Status             JobStatus `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// OTPChallenge records one email MFA round. The code is consumed exactly
// once and never reused across jobs.
type OTPChallenge struct {
	JobID    string    `json:"job_id"`
	SentAt   time.Time `json:"sent_at"`
	Code     string    `json:"code"`
	Consumed bool      `json:"consumed"`
	Expired  bool      `json:"expired"`
}

// CapturedToken is a credential observed during a run. Bearer, session and
// refresh tokens are captured opportunistically; the integration token is
// minted once by the wizard.
type CapturedToken struct {
	JobID     string     `json:"job_id"`
	Kind      TokenKind  `json:"kind"`
	Value     string     `json:"value"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TenantCredentialRecord holds the latest known value per token kind for a
// tenant. Keyed by tenant; updated in place, never duplicated.
type TenantCredentialRecord struct {
	TenantID         string     `json:"tenant_id" gorm:"primaryKey"`
	BearerToken      string     `json:"bearer_token"`
	SessionToken     string     `json:"session_token"`
	RefreshToken     string     `json:"refresh_token"`
	IntegrationToken string     `json:"integration_token"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CredentialUpdate carries the fields of an upsert. Zero-valued fields are
// left untouched in the store so partial capture never clobbers known-good
// values.
type CredentialUpdate struct {
	Bearer      string     `json:"bearer,omitempty"`
	Session     string     `json:"session,omitempty"`
	Refresh     string     `json:"refresh,omitempty"`
	Integration string     `json:"integration,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (u CredentialUpdate) Empty() bool {
	return u.Bearer == "" && u.Session == "" && u.Refresh == "" &&
		u.Integration == "" && u.ExpiresAt == nil
}

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// RunResult is what a caller gets back from a provisioning run. It always
// names which credential kinds were and were not captured so the caller can
// judge the usability of a partial result.
type RunResult struct {
	JobID         string               `json:"job_id"`
	TenantID      string               `json:"tenant_id"`
	Status        RunStatus            `json:"status"`
	Captured      map[TokenKind]string `json:"captured"`
	Missing       []TokenKind          `json:"missing"`
	SkippedScopes []string             `json:"skipped_scopes,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

func (r *RunResult) Has(kind TokenKind) bool {
	_, ok := r.Captured[kind]
	return ok
}
