// Package browser owns the lifecycle of the automated browser: process,
// isolated context, page, and the passive token interceptor. A session is
// only handed out with the interceptor already listening, because the very
// first authenticated request may carry the token we want.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/config"
)

// ErrEnvironment means the browser process could not be started or reached.
// Callers must treat it as fatal, not retryable.
var ErrEnvironment = errors.New("browser environment failure")

type Manager struct {
	cfg config.Browser
}

func NewManager(cfg config.Browser) *Manager {
	return &Manager{cfg: cfg}
}

// Session is one browser process with one isolated context and one page.
// Contexts are never shared across jobs, so no cookie bleed between tenants.
type Session struct {
	browser     *rod.Browser
	incognito   *rod.Browser
	page        *rod.Page
	launcher    *launcher.Launcher
	interceptor *Interceptor
	keepOpen    bool

	// ctx is the job context the session was acquired under. Once it is
	// done, even a keep-open session must be torn down.
	ctx context.Context

	// closeBrowser and kill are bound at acquire time so Release never has
	// to know how the browser was obtained. kill is nil for attached
	// browsers, which this process does not own.
	closeBrowser func() error
	kill         func()
}

func (s *Session) Page() *rod.Page { return s.page }

func (s *Session) Interceptor() *Interceptor { return s.interceptor }

// Acquire launches (or attaches to) a browser, opens an incognito context
// and a blank page, and wires the network tap before any navigation.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	sess := &Session{
		interceptor: NewInterceptor(),
		keepOpen:    m.cfg.KeepOpen,
		ctx:         ctx,
	}

	controlURL := m.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launching chrome: %v", ErrEnvironment, err)
		}
		sess.launcher = l
		sess.kill = l.Kill
		controlURL = u
	} else {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving control URL %s: %v", ErrEnvironment, controlURL, err)
		}
		controlURL = u
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if sess.kill != nil {
			sess.kill()
		}
		sess.cleanupLauncher()
		return nil, fmt.Errorf("%w: connecting to browser: %v", ErrEnvironment, err)
	}
	sess.browser = b
	sess.closeBrowser = b.Close

	incognito, err := b.Incognito()
	if err != nil {
		sess.Release()
		return nil, fmt.Errorf("%w: creating incognito context: %v", ErrEnvironment, err)
	}
	sess.incognito = incognito

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		sess.Release()
		return nil, fmt.Errorf("%w: creating page: %v", ErrEnvironment, err)
	}
	sess.page = page

	// Interception must be live before the first navigation.
	sess.interceptor.Attach(page)

	log.Info().
		Bool("headless", m.cfg.Headless).
		Str("control_url", m.cfg.ControlURL).
		Msg("browser session acquired")

	return sess, nil
}

// WithSession runs fn inside a scoped session and guarantees teardown on
// every exit path, including panics and context cancellation.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, sess *Session) error) error {
	sess, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	return fn(ctx, sess)
}

// Release tears the session down: page, then context, then browser process.
// Safe to call more than once. Keep-open only spares a session whose job
// context is still live: after a job timeout the browser goes regardless.
func (s *Session) Release() {
	if s.keepOpen && (s.ctx == nil || s.ctx.Err() == nil) {
		log.Warn().Msg("keep-open set, leaving browser running for inspection")
		return
	}

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			log.Debug().Err(err).Msg("closing page")
		}
		s.page = nil
	}
	s.incognito = nil
	s.browser = nil

	if s.closeBrowser != nil {
		if err := s.closeBrowser(); err != nil {
			// The graceful close is a CDP call on the job context; after a
			// timeout it fails without touching the process. Kill the
			// process directly, or launcher.Cleanup below blocks forever
			// waiting for an exit that never comes.
			log.Warn().Err(err).Msg("graceful browser close failed, killing process")
			if s.kill != nil {
				s.kill()
			}
		}
		s.closeBrowser = nil
	}
	s.cleanupLauncher()
}

func (s *Session) cleanupLauncher() {
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
}
