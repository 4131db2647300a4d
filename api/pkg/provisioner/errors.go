package provisioner

// Reason codes attached to terminal job failures. Step-local failures retry
// up to their own bound, then escalate to one of these, never a bare error.
// The underlying sentinels live with the step that produces them
// (browser.ErrEnvironment, mailbox.ErrNoCode, wizard.ErrTokenNotFound).
const (
	ReasonFatalEnvironment = "fatal_environment"
	ReasonOtpTimeout       = "otp_timeout"
	ReasonLoginFailed      = "login_failed"
	ReasonCaptureFailed    = "capture_failed"
	ReasonWizardFailed     = "wizard_failed"
	ReasonJobTimeout       = "job_timeout"
)
