// Package login drives the console's sign-in flow as a small state machine:
// classify what the page shows, act, re-classify, until authenticated or
// out of budget.
package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/selector"
	"github.com/squidgyai/hlprovision/api/pkg/types"
)

type State string

const (
	StateLoginForm     State = "login_form"
	StateMFAChallenge  State = "mfa_challenge"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
)

// CodeWaiter hands over a fresh OTP or reports that none arrived.
type CodeWaiter interface {
	AwaitCode(ctx context.Context, sentAfter time.Time, maxAttempts int, interval time.Duration) (string, error)
}

type Credentials struct {
	Identity string
	Secret   string
}

type Options struct {
	// DestinationMarker is the URL fragment that proves we are through,
	// e.g. "private-integrations".
	DestinationMarker string
	ProbeTimeout      time.Duration
	SettleDelay       time.Duration
	OTPMaxAttempts    int
	OTPInterval       time.Duration
	// MaxTransitions bounds the classify-act loop; a page that keeps
	// bouncing between states is a failed login, not an infinite loop.
	MaxTransitions int
	// OnMFADetected fires once when the challenge page is first seen, so
	// the job owner can track the awaiting-MFA phase.
	OnMFADetected func()
}

func (o Options) withDefaults() Options {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 3 * time.Second
	}
	if o.OTPMaxAttempts <= 0 {
		o.OTPMaxAttempts = 30
	}
	if o.OTPInterval <= 0 {
		o.OTPInterval = time.Second
	}
	if o.MaxTransitions <= 0 {
		o.MaxTransitions = 6
	}
	return o
}

type Machine struct {
	table  selector.Table
	waiter CodeWaiter
	opts   Options

	challenge *types.OTPChallenge
}

// Challenge returns the record of the MFA round, nil when the login never
// hit a challenge page. The code is kept for audit only and is never reused.
func (m *Machine) Challenge() *types.OTPChallenge {
	return m.challenge
}

func NewMachine(table selector.Table, waiter CodeWaiter, opts Options) *Machine {
	return &Machine{table: table, waiter: waiter, opts: opts.withDefaults()}
}

// Classify probes the DOM to decide what the page currently is: a password
// field means the login form, a code widget means the MFA challenge, and
// otherwise a destination-URL match means we are authenticated.
func (m *Machine) Classify(ctx context.Context, page *rod.Page) State {
	if m.probe(ctx, page, m.table.LoginPassword) {
		return StateLoginForm
	}
	if m.probe(ctx, page, m.table.OTPDigitInputs) || m.probe(ctx, page, m.table.OTPSingleInput) {
		return StateMFAChallenge
	}

	info, err := page.Context(ctx).Info()
	if err == nil && m.opts.DestinationMarker != "" &&
		strings.Contains(info.URL, m.opts.DestinationMarker) {
		return StateAuthenticated
	}

	return StateFailed
}

// Authenticate drives the page from whatever state it is in to
// StateAuthenticated, or fails with a reason the orchestrator can map.
func (m *Machine) Authenticate(ctx context.Context, page *rod.Page, creds Credentials) error {
	for transition := 0; transition < m.opts.MaxTransitions; transition++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state := m.Classify(ctx, page)
		log.Info().
			Str("state", string(state)).
			Int("transition", transition).
			Msg("login state classified")

		switch state {
		case StateAuthenticated:
			return nil

		case StateLoginForm:
			if err := m.submitCredentials(ctx, page, creds); err != nil {
				return fmt.Errorf("submitting credentials: %w", err)
			}

		case StateMFAChallenge:
			if err := m.completeMFA(ctx, page); err != nil {
				return fmt.Errorf("completing mfa challenge: %w", err)
			}

		case StateFailed:
			// Unrecognized page; give it a settle period, it may still be
			// rendering, then re-probe.
			m.settle(ctx, page)
		}
	}

	return fmt.Errorf("login did not reach authenticated state within %d transitions", m.opts.MaxTransitions)
}

func (m *Machine) submitCredentials(ctx context.Context, page *rod.Page, creds Credentials) error {
	retryOpts := selector.Options{PerTryTimeout: m.opts.ProbeTimeout}

	if _, err := selector.ResolveAndAct(ctx, m.table.LoginEmail, selector.Fill(page, creds.Identity), retryOpts); err != nil {
		return fmt.Errorf("filling identity: %w", err)
	}
	if _, err := selector.ResolveAndAct(ctx, m.table.LoginPassword, selector.Fill(page, creds.Secret), retryOpts); err != nil {
		return fmt.Errorf("filling secret: %w", err)
	}
	if _, err := selector.ResolveAndAct(ctx, m.table.LoginSubmit, selector.Click(page), retryOpts); err != nil {
		return fmt.Errorf("clicking submit: %w", err)
	}

	m.settle(ctx, page)
	return nil
}

func (m *Machine) completeMFA(ctx context.Context, page *rod.Page) error {
	if m.opts.OnMFADetected != nil {
		m.opts.OnMFADetected()
		m.opts.OnMFADetected = nil
	}

	// The challenge window opens before the click lands, so an email that
	// races ahead of us still counts.
	sentAt := time.Now()
	m.challenge = &types.OTPChallenge{SentAt: sentAt}

	// Idempotent: the console may have dispatched a code on its own, in
	// which case the button simply is not there.
	if _, err := selector.ResolveAndAct(ctx, m.table.MFASendCode, selector.Click(page),
		selector.Options{PerTryTimeout: m.opts.ProbeTimeout, MaxRounds: 1}); err != nil {
		log.Info().Msg("send-code control not found, assuming code already sent")
	}

	code, err := m.waiter.AwaitCode(ctx, sentAt, m.opts.OTPMaxAttempts, m.opts.OTPInterval)
	if err != nil {
		m.challenge.Expired = true
		return fmt.Errorf("awaiting otp: %w", err)
	}
	m.challenge.Code = code
	m.challenge.Consumed = true

	if err := m.fillOTP(ctx, page, code); err != nil {
		return fmt.Errorf("entering otp %q: %w", code, err)
	}

	m.settle(ctx, page)
	return nil
}

// fillOTP enters the code either into the console's individual digit boxes
// or a single input, tried as separate strategies.
func (m *Machine) fillOTP(ctx context.Context, page *rod.Page, code string) error {
	if m.fillDigitBoxes(ctx, page, code) {
		m.submitOTP(ctx, page)
		return nil
	}

	_, err := selector.ResolveAndAct(ctx, m.table.OTPSingleInput, selector.Fill(page, code),
		selector.Options{PerTryTimeout: m.opts.ProbeTimeout})
	if err != nil {
		return err
	}

	m.submitOTP(ctx, page)
	return nil
}

func (m *Machine) fillDigitBoxes(ctx context.Context, page *rod.Page, code string) bool {
	for _, loc := range m.table.OTPDigitInputs.Locators {
		probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
		els, err := selector.ResolveAll(probeCtx, page, loc)
		cancel()
		if err != nil || len(els) < len(code) {
			continue
		}

		log.Info().
			Str("locator", loc.String()).
			Int("inputs", len(els)).
			Msg("filling otp digit boxes")

		ok := true
		for i, digit := range code {
			el := els[i].Context(ctx)
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				ok = false
				break
			}
			_ = el.SelectAllText()
			if err := el.Input(string(digit)); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// submitOTP is best-effort: many console builds auto-submit on the last
// digit, so a missing button is not an error. Enter is the final fallback.
func (m *Machine) submitOTP(ctx context.Context, page *rod.Page) {
	_, err := selector.ResolveAndAct(ctx, m.table.OTPSubmit, selector.Click(page),
		selector.Options{PerTryTimeout: m.opts.ProbeTimeout, MaxRounds: 1})
	if err != nil {
		if kerr := page.Context(ctx).Keyboard.Press(input.Enter); kerr != nil {
			log.Debug().Err(kerr).Msg("could not press enter to submit otp")
		}
	}
}

func (m *Machine) probe(ctx context.Context, page *rod.Page, strategy selector.Strategy) bool {
	for _, loc := range strategy.Locators {
		probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
		el, err := selector.Resolve(probeCtx, page, loc)
		cancel()
		if err != nil {
			continue
		}
		if visible, err := el.Visible(); err == nil && visible {
			return true
		}
	}
	return false
}

func (m *Machine) settle(ctx context.Context, page *rod.Page) {
	if err := page.Context(ctx).WaitLoad(); err != nil {
		log.Debug().Err(err).Msg("wait load after action")
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.opts.SettleDelay):
	}
}
