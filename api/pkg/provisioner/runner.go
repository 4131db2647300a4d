package provisioner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/browser"
	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/login"
	"github.com/squidgyai/hlprovision/api/pkg/mailbox"
	"github.com/squidgyai/hlprovision/api/pkg/selector"
	"github.com/squidgyai/hlprovision/api/pkg/types"
	"github.com/squidgyai/hlprovision/api/pkg/wizard"
)

// rodRunner is the production JobRunner. It owns one browser session for
// the lifetime of a job and binds the login machine, mailbox poller and
// wizard to its page.
type rodRunner struct {
	cfg    config.ServerConfig
	table  selector.Table
	job    *types.ProvisioningJob
	waiter login.CodeWaiter

	manager *browser.Manager
	wizard  *wizard.Driver
	sess    *browser.Session
}

// NewRodRunnerFactory builds runners that drive a real browser. The code
// waiter is shared across jobs; the mailbox connection is dialed per poll,
// not held open.
func NewRodRunnerFactory(cfg config.ServerConfig, table selector.Table, waiter login.CodeWaiter) RunnerFactory {
	if waiter == nil {
		waiter = mailbox.New(cfg.Mailbox)
	}
	return func(job *types.ProvisioningJob) JobRunner {
		return &rodRunner{
			cfg:     cfg,
			table:   table,
			job:     job,
			waiter:  waiter,
			manager: browser.NewManager(cfg.Browser),
			wizard:  wizard.NewDriver(table, cfg.Target, wizard.Options{}),
		}
	}
}

// Start acquires the browser and navigates straight to the integrations
// page. An unauthenticated visit bounces to the sign-in form, which is
// exactly where the login machine expects to begin.
func (r *rodRunner) Start(ctx context.Context) error {
	sess, err := r.manager.Acquire(ctx)
	if err != nil {
		return err
	}
	r.sess = sess

	page := sess.Page().Context(ctx)
	if err := page.Navigate(r.wizard.IntegrationsURL(r.job.TargetTenantHandle)); err != nil {
		return fmt.Errorf("%w: initial navigation: %v", browser.ErrEnvironment, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: initial page load: %v", browser.ErrEnvironment, err)
	}
	return nil
}

func (r *rodRunner) Close() {
	if r.sess != nil {
		r.sess.Release()
		r.sess = nil
	}
}

func (r *rodRunner) Authenticate(ctx context.Context, creds login.Credentials, onMFA func()) error {
	machine := login.NewMachine(r.table, r.waiter, login.Options{
		DestinationMarker: r.cfg.Target.DestinationMarker(),
		OTPMaxAttempts:    r.cfg.Mailbox.PollAttempts,
		OTPInterval:       r.cfg.Mailbox.PollInterval,
		OnMFADetected:     onMFA,
	})
	err := machine.Authenticate(ctx, r.sess.Page(), creds)

	if challenge := machine.Challenge(); challenge != nil {
		challenge.JobID = r.job.ID
		log.Info().
			Str("job_id", challenge.JobID).
			Time("sent_at", challenge.SentAt).
			Bool("consumed", challenge.Consumed).
			Bool("expired", challenge.Expired).
			Msg("mfa challenge round finished")
	}

	return err
}

func (r *rodRunner) CapturedTokens() map[types.TokenKind]string {
	return r.sess.Interceptor().Captured()
}

func (r *rodRunner) ScrapeStorage(ctx context.Context) error {
	return r.sess.Interceptor().ScrapeStorage(r.sess.Page().Context(ctx))
}

func (r *rodRunner) MintIntegration(ctx context.Context, tenantHandle string, scopes []string) (wizard.Result, error) {
	return r.wizard.Provision(ctx, r.sess.Page(), tenantHandle, scopes)
}
