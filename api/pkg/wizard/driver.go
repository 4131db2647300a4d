// Package wizard drives the console's private-integration flow: open the
// form, name it, request scopes, submit, and walk away with the minted
// long-lived token.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/config"
	"github.com/squidgyai/hlprovision/api/pkg/selector"
)

const (
	// tokenPrefix is the shape of a minted integration token.
	tokenPrefix    = "pit-"
	minTokenLength = 16
)

// ErrTokenNotFound means the wizard ran but the minted secret could not be
// read back. The run can still be a partial success on live-captured tokens.
var ErrTokenNotFound = errors.New("integration token not found on page")

// DefaultScopes is the permission set requested at mint time. Order is the
// order they are typed into the scope picker.
var DefaultScopes = []string{
	"View Contacts", "Edit Contacts",
	"View Conversation Reports", "Edit Conversations",
	"View Calendars", "View Businesses",
	"View Conversation Messages", "Edit Conversation Messages",
	"View Custom Fields", "Edit Custom Fields",
	"View Custom Values", "Edit Custom Values",
	"View Medias", "Edit Tags", "View Tags",
}

type Result struct {
	Token         string
	SkippedScopes []string
}

type Options struct {
	PerTryTimeout time.Duration
	SettleDelay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PerTryTimeout <= 0 {
		o.PerTryTimeout = 5 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 3 * time.Second
	}
	return o
}

type Driver struct {
	table  selector.Table
	target config.Target
	opts   Options
}

func NewDriver(table selector.Table, target config.Target, opts Options) *Driver {
	return &Driver{table: table, target: target, opts: opts.withDefaults()}
}

// IntegrationsURL renders the integration-management address for a tenant.
func (d *Driver) IntegrationsURL(tenantHandle string) string {
	return d.target.BaseURL + fmt.Sprintf(d.target.IntegrationsPathTemplate, tenantHandle)
}

// Provision walks the whole wizard for one tenant. A rejected scope is
// skipped and reported, never fatal; only losing the minted token itself is
// an error.
func (d *Driver) Provision(ctx context.Context, page *rod.Page, tenantHandle string, scopes []string) (Result, error) {
	var res Result

	if err := d.navigate(ctx, page, tenantHandle); err != nil {
		return res, fmt.Errorf("navigating to integrations: %w", err)
	}

	if err := d.openForm(ctx, page); err != nil {
		return res, fmt.Errorf("opening integration form: %w", err)
	}

	if err := d.nameIntegration(ctx, page); err != nil {
		return res, fmt.Errorf("naming integration: %w", err)
	}

	if err := d.advance(ctx, page); err != nil {
		return res, fmt.Errorf("submitting integration form: %w", err)
	}

	res.SkippedScopes = d.selectScopes(ctx, page, scopes)

	if err := d.advance(ctx, page); err != nil {
		return res, fmt.Errorf("submitting scope selection: %w", err)
	}

	tok, err := d.extractToken(ctx, page)
	if err != nil {
		return res, err
	}
	res.Token = tok

	log.Info().
		Str("tenant_handle", tenantHandle).
		Int("scopes_requested", len(scopes)).
		Int("scopes_skipped", len(res.SkippedScopes)).
		Msg("integration token minted")

	return res, nil
}

func (d *Driver) navigate(ctx context.Context, page *rod.Page, tenantHandle string) error {
	url := d.IntegrationsURL(tenantHandle)

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		log.Debug().Err(err).Msg("wait load after integrations navigation")
	}
	d.settle(ctx)

	info, err := p.Info()
	if err == nil && !strings.Contains(info.URL, d.target.DestinationMarker()) {
		log.Warn().Str("url", info.URL).Msg("not on the integrations page after navigation")
	}
	return nil
}

func (d *Driver) openForm(ctx context.Context, page *rod.Page) error {
	_, err := selector.ResolveAndAct(ctx, d.table.WizardCreate, selector.Click(page),
		selector.Options{PerTryTimeout: d.opts.PerTryTimeout})
	if err != nil {
		return err
	}
	d.settle(ctx)
	return nil
}

func (d *Driver) nameIntegration(ctx context.Context, page *rod.Page) error {
	_, err := selector.ResolveAndAct(ctx, d.table.WizardName,
		selector.Fill(page, d.target.IntegrationName),
		selector.Options{PerTryTimeout: d.opts.PerTryTimeout})
	return err
}

func (d *Driver) advance(ctx context.Context, page *rod.Page) error {
	_, err := selector.ResolveAndAct(ctx, d.table.WizardFormSubmit, selector.Click(page),
		selector.Options{PerTryTimeout: d.opts.PerTryTimeout})
	if err != nil {
		return err
	}
	d.settle(ctx)
	return nil
}

// selectScopes focuses the scope picker once, then types each scope and
// commits it with Enter, verifying the console accepted it. Returns the
// scopes that were rejected.
func (d *Driver) selectScopes(ctx context.Context, page *rod.Page, scopes []string) []string {
	picker := d.findScopeInput(ctx, page)
	if picker == nil {
		log.Warn().Msg("scope picker not found, submitting with default scopes")
		return append([]string(nil), scopes...)
	}

	var skipped []string
	for _, scope := range scopes {
		if err := d.enterScope(ctx, page, picker, scope); err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("scope rejected, skipping")
			skipped = append(skipped, scope)
		}
	}

	// Click a neutral spot so the dropdown closes and the selection
	// finalizes before submit.
	if body, err := page.Context(ctx).Element("body"); err == nil {
		_ = body.Click(proto.InputMouseButtonLeft, 1)
	}

	return skipped
}

func (d *Driver) findScopeInput(ctx context.Context, page *rod.Page) *rod.Element {
	for _, loc := range d.table.WizardScopeInput.Locators {
		probeCtx, cancel := context.WithTimeout(ctx, d.opts.PerTryTimeout)
		el, err := selector.Resolve(probeCtx, page, loc)
		cancel()
		if err != nil {
			continue
		}
		if err := el.ScrollIntoView(); err != nil {
			continue
		}
		return el
	}
	return nil
}

func (d *Driver) enterScope(ctx context.Context, page *rod.Page, picker *rod.Element, scope string) error {
	el := picker.Context(ctx)

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focusing scope input: %w", err)
	}
	_ = el.SelectAllText()
	if err := el.Input(scope); err != nil {
		return fmt.Errorf("typing scope: %w", err)
	}
	if err := page.Context(ctx).Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("committing scope: %w", err)
	}

	// Acceptance shows up as a selection tag carrying the scope text.
	verifyCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := page.Context(verifyCtx).ElementR("*", regexp.QuoteMeta(scope)); err != nil {
		return fmt.Errorf("scope not accepted by picker")
	}
	return nil
}

// extractToken reads the minted secret from the result dialog, falling back
// to the clipboard-copy affordance and a scan of nearby nodes.
func (d *Driver) extractToken(ctx context.Context, page *rod.Page) (string, error) {
	for _, loc := range d.table.WizardTokenText.Locators {
		probeCtx, cancel := context.WithTimeout(ctx, d.opts.PerTryTimeout)
		el, err := selector.Resolve(probeCtx, page, loc)
		cancel()
		if err != nil {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		if tok, ok := tokenShaped(text); ok {
			return tok, nil
		}
	}

	log.Info().Msg("token dialog text not readable, trying copy affordance")

	if _, err := selector.ResolveAndAct(ctx, d.table.WizardTokenCopy, selector.Click(page),
		selector.Options{PerTryTimeout: d.opts.PerTryTimeout, MaxRounds: 1}); err != nil {
		log.Debug().Err(err).Msg("copy affordance not found")
	}

	els, err := page.Context(ctx).Elements(`pre, code, p, textarea, div[class*="token"]`)
	if err != nil {
		return "", ErrTokenNotFound
	}
	var texts []string
	for _, el := range els {
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		texts = append(texts, text)
	}

	if tok, ok := firstTokenShaped(texts); ok {
		log.Info().Msg("integration token recovered via copy fallback")
		return tok, nil
	}

	return "", ErrTokenNotFound
}

// firstTokenShaped scans candidate texts in document order and returns the
// first one shaped like the minted secret.
func firstTokenShaped(texts []string) (string, bool) {
	for _, text := range texts {
		if tok, ok := tokenShaped(text); ok {
			return tok, true
		}
	}
	return "", false
}

// tokenShaped validates a candidate string against the known secret shape.
func tokenShaped(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minTokenLength || strings.ContainsAny(trimmed, " \n\t") {
		return "", false
	}
	if strings.HasPrefix(trimmed, tokenPrefix) {
		return trimmed, true
	}
	return "", false
}

func (d *Driver) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(d.opts.SettleDelay):
	}
}
