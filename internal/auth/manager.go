// Package auth drives the marketplace login state machine: cached-cookie
// reuse, credential submission with bounded retries, and security challenge
// detection. It owns the account Sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/audit"
	"github.com/xkilldash9x/listing-refresher/internal/core"
	"github.com/xkilldash9x/listing-refresher/internal/driver"
	"github.com/xkilldash9x/listing-refresher/internal/locator"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
)

const (
	cookieNavigateSettle = 2 * time.Second
	cookieReloadSettle   = 5 * time.Second
	loginPageSettle      = 5 * time.Second
	fieldSettle          = time.Second
	submitSettle         = 8 * time.Second
	attemptBackoff       = 5 * time.Second
	landmarkTimeout      = 5 * time.Second
)

// loginURLMarkers in the current URL mean the login form is showing.
var loginURLMarkers = []string{"login", "log in", "signin", "sign in"}

// landmarks are only rendered for an authenticated user.
var landmarks = []locator.Target{
	{Strategy: schemas.ByCSS, Value: `div[role="navigation"]`},
	{Strategy: schemas.ByCSS, Value: `div[data-pagelet="LeftRail"]`},
	{Strategy: schemas.ByXPath, Value: `//span[text()='Home']`},
	{Strategy: schemas.ByCSS, Value: `a[aria-label="Home"]`},
}

// Manager runs logins for the bot's page and tracks one Session per account.
type Manager struct {
	bot    *core.BotContext
	loc    *locator.Locator
	drv    *driver.Driver
	cache  *CookieCache
	logger *zap.Logger

	detectors []ChallengeDetector
	resolvers []ChallengeResolver

	mu       sync.Mutex
	state    State
	sessions map[string]*schemas.Session
}

// NewManager builds a Manager with marker detectors from the auth config and
// no challenge resolvers.
func NewManager(bot *core.BotContext, loc *locator.Locator, drv *driver.Driver) (*Manager, error) {
	cache, err := NewCookieCache(bot.Config.Auth.CookieDir, bot.Clock.Now)
	if err != nil {
		return nil, err
	}
	return &Manager{
		bot:       bot,
		loc:       loc,
		drv:       drv,
		cache:     cache,
		logger:    bot.Logger.Named("auth"),
		detectors: DefaultDetectors(bot.Config.Auth.ChallengeMarkers, loc),
		sessions:  make(map[string]*schemas.Session),
	}, nil
}

// RegisterDetector appends a detector after the defaults.
func (m *Manager) RegisterDetector(d ChallengeDetector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectors = append(m.detectors, d)
}

// RegisterResolver adds a resolver offered every detected challenge.
func (m *Manager) RegisterResolver(r ChallengeResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers = append(m.resolvers, r)
}

// Cache exposes the cookie cache.
func (m *Manager) Cache() *CookieCache { return m.cache }

// State reports the last state reached.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Debug("Login state changed.", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Login walks the state machine until the page is authenticated or every
// strategy is exhausted.
func (m *Manager) Login(ctx context.Context, creds schemas.Credentials) (sess *schemas.Session, err error) {
	op := m.bot.Audit.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeLogin, m.bot.OperationMeta())
	m.setState(StateLoggedOut)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: unexpected fault: %v", ErrLoginFailed, r)
			m.logger.Error("Login aborted by an unexpected fault.", zap.Any("panic", r))
			op.Error(ctx, audit.Counts{Processed: 1, Failed: 1}, err, string(debug.Stack()))
			m.setState(StateLoginFailed)
			sess = nil
		}
	}()

	if !creds.Valid() {
		m.setState(StateLoginFailed)
		err := fmt.Errorf("%w: %w", ErrLoginFailed, ErrNoCredentials)
		op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, err)
		return nil, err
	}
	log := m.logger.With(zap.String("account", creds.Account))
	log.Info("Starting login.")

	if m.TryCookieLogin(ctx, creds.Account) {
		return m.establish(ctx, op, creds.Account, "cookies"), nil
	}
	if err := ctx.Err(); err != nil {
		op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, err)
		return nil, err
	}

	m.setState(StateCredentialAttempted)
	attempts := m.bot.Settings.Int(ctx, settings.MaxLoginAttempts)
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Info("Login attempt.", zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))

		if m.credentialAttempt(ctx, creds, attempt, attempts) {
			return m.establish(ctx, op, creds.Account, "credentials"), nil
		}

		if attempt < attempts {
			if err := m.bot.Clock.Sleep(ctx, attemptBackoff); err != nil {
				op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, err)
				return nil, err
			}
		}
	}

	m.setState(StateChallengeDetected)
	kind, resolved := m.handleChallenges(ctx)
	if resolved {
		return m.establish(ctx, op, creds.Account, "challenge"), nil
	}

	m.invalidate(creds.Account)
	m.setState(StateLoginFailed)
	err = fmt.Errorf("%w: %w (challenge: %s)", ErrLoginFailed, ErrManualIntervention, kind)
	op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, err)
	log.Error("All login attempts failed.", zap.String("challenge", string(kind)))
	return nil, err
}

// credentialAttempt records one PerformLogin as a credential_login operation.
func (m *Manager) credentialAttempt(ctx context.Context, creds schemas.Credentials, attempt, attempts int) bool {
	sub := m.bot.Audit.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeCredentialLogin, m.bot.OperationMeta())
	defer finishOnPanic(ctx, sub)

	if m.PerformLogin(ctx, creds) {
		sub.Complete(ctx, audit.Counts{Processed: 1, Successful: 1})
		return true
	}
	sub.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, fmt.Errorf("attempt %d of %d did not reach a logged-in page", attempt, attempts))
	return false
}

// finishOnPanic gives op an error status when the deferring function panics,
// then lets the panic continue to Login's recover.
func finishOnPanic(ctx context.Context, op *audit.Operation) {
	if r := recover(); r != nil {
		op.Error(ctx, audit.Counts{Processed: 1, Failed: 1}, fmt.Errorf("unexpected fault: %v", r), string(debug.Stack()))
		panic(r)
	}
}

// TryCookieLogin injects the cached cookies for account and reports whether
// that alone produced a logged-in page. It does nothing when no cookies are
// cached.
func (m *Manager) TryCookieLogin(ctx context.Context, account string) bool {
	cookies, err := m.cache.Load(account)
	if err != nil {
		m.logger.Warn("Ignoring unreadable cookie cache.", zap.Error(err))
		return false
	}
	if len(cookies) == 0 {
		m.logger.Debug("No cached cookies; skipping cookie login.")
		return false
	}

	m.setState(StateCookieAttempted)
	op := m.bot.Audit.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeCookieLogin, m.bot.OperationMeta())
	defer finishOnPanic(ctx, op)

	ok, err := m.cookieLogin(ctx, cookies)
	switch {
	case ok:
		op.Complete(ctx, audit.Counts{Processed: 1, Successful: 1})
		m.logger.Info("Logged in with cached cookies.")
	case err != nil:
		op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, err)
		m.logger.Debug("Cookie login failed.", zap.Error(err))
	default:
		op.Fail(ctx, audit.Counts{Processed: 1, Failed: 1}, errors.New("cached cookies did not produce a logged-in page"))
	}
	return ok
}

func (m *Manager) cookieLogin(ctx context.Context, cookies []schemas.Cookie) (bool, error) {
	if !m.drv.Navigate(ctx, m.bot.Config.Marketplace.BaseURL) {
		return false, errors.New("failed to open the site root")
	}
	if err := m.drv.Sleep(ctx, cookieNavigateSettle); err != nil {
		return false, err
	}
	if err := m.bot.Page.SetCookies(ctx, cookies); err != nil {
		return false, err
	}
	if err := m.bot.Page.Reload(ctx); err != nil {
		return false, fmt.Errorf("failed to reload after injecting cookies: %w", err)
	}
	if err := m.drv.Sleep(ctx, cookieReloadSettle); err != nil {
		return false, err
	}
	return m.IsLoggedIn(ctx), nil
}

// PerformLogin submits the credential form once. Each field is located once;
// a missing field fails the attempt immediately.
func (m *Manager) PerformLogin(ctx context.Context, creds schemas.Credentials) bool {
	if !m.drv.Navigate(ctx, m.bot.Config.Marketplace.BaseURL) {
		return false
	}
	if m.drv.Sleep(ctx, loginPageSettle) != nil {
		return false
	}

	if !m.fill(ctx, "email", creds.Account) {
		return false
	}
	if !m.fill(ctx, "pass", creds.Secret) {
		return false
	}

	button, ok := m.loc.Locate(ctx, schemas.ByName, "login", 0)
	if !ok {
		m.logger.Error("Login button not found.")
		return false
	}
	if !m.drv.Click(ctx, button, 0) {
		m.logger.Warn("Login button click did not register.")
	}
	if m.drv.Sleep(ctx, submitSettle) != nil {
		return false
	}
	return m.IsLoggedIn(ctx)
}

// fill clears the named input and types value into it. value is never
// logged.
func (m *Manager) fill(ctx context.Context, name, value string) bool {
	field, ok := m.loc.Locate(ctx, schemas.ByName, name, 0)
	if !ok {
		m.logger.Error("Login field not found.", zap.String("field", name))
		return false
	}
	if err := field.Clear(ctx); err != nil {
		m.logger.Warn("Failed to clear login field.", zap.String("field", name), zap.Error(err))
		return false
	}
	if err := field.Type(ctx, value); err != nil {
		m.logger.Warn("Failed to type into login field.", zap.String("field", name), zap.Error(err))
		return false
	}
	return m.drv.Sleep(ctx, fieldSettle) == nil
}

// IsLoggedIn checks the URL for login markers, then looks for any landmark of
// the authenticated layout. An inconclusive check counts as logged out.
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	url, err := m.bot.Page.URL(ctx)
	if err != nil {
		m.logger.Debug("Login check inconclusive: current url unavailable.", zap.Error(err))
		return false
	}
	lower := strings.ToLower(url)
	for _, marker := range loginURLMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}

	for _, lm := range landmarks {
		if _, ok := m.loc.Locate(ctx, lm.Strategy, lm.Value, landmarkTimeout); ok {
			return true
		}
		if ctx.Err() != nil {
			break
		}
	}
	m.logger.Debug("Login check inconclusive: no landmark found.", zap.String("url", url))
	return false
}

// handleChallenges probes the detectors in order and offers the first
// detected challenge to the resolvers.
func (m *Manager) handleChallenges(ctx context.Context) (ChallengeKind, bool) {
	op := m.bot.Audit.Start(ctx, schemas.OperationAuthentication, schemas.SubtypeChallengeCheck, m.bot.OperationMeta())

	m.mu.Lock()
	detectors := append([]ChallengeDetector(nil), m.detectors...)
	resolvers := append([]ChallengeResolver(nil), m.resolvers...)
	m.mu.Unlock()

	kind := ChallengeNone
	probed := 0
	for _, d := range detectors {
		probed++
		found, err := d.Detect(ctx, m.bot.Page)
		if err != nil {
			m.logger.Debug("Challenge detector failed.", zap.String("kind", string(d.Kind())), zap.Error(err))
			continue
		}
		if found {
			kind = d.Kind()
			break
		}
	}

	if kind == ChallengeNone {
		op.Fail(ctx, audit.Counts{Processed: probed}, errors.New("no challenge detected"))
		return kind, false
	}
	m.logger.Warn("Security challenge detected.", zap.String("kind", string(kind)))

	for _, r := range resolvers {
		ok, err := r.Resolve(ctx, kind, m.bot.Page)
		if err != nil {
			m.logger.Warn("Challenge resolver failed.", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		if ok && m.IsLoggedIn(ctx) {
			op.Complete(ctx, audit.Counts{Processed: probed, Successful: 1})
			return kind, true
		}
	}

	op.Fail(ctx, audit.Counts{Processed: probed, Failed: 1}, fmt.Errorf("challenge %s requires manual intervention", kind))
	return kind, false
}

// establish registers a new Session for account, replacing any previous one,
// and writes the page cookies through to the cache.
func (m *Manager) establish(ctx context.Context, op *audit.Operation, account, via string) *schemas.Session {
	cookies, err := m.bot.Page.Cookies(ctx)
	if err != nil {
		m.logger.Warn("Could not read session cookies.", zap.Error(err))
	} else if err := m.cache.Save(account, cookies); err != nil {
		m.logger.Warn("Could not cache session cookies.", zap.Error(err))
	}

	sess := &schemas.Session{
		SessionID:     uuid.NewString(),
		Account:       account,
		EstablishedAt: m.bot.Clock.Now(),
		Active:        true,
		Cookies:       cookies,
	}

	m.mu.Lock()
	if prev, ok := m.sessions[account]; ok {
		prev.Active = false
	}
	m.sessions[account] = sess
	m.mu.Unlock()

	m.bot.SetBrowserSession(sess.SessionID)
	m.setState(StateLoggedIn)
	op.Complete(ctx, audit.Counts{Processed: 1, Successful: 1})
	m.logger.Info("Logged in.", zap.String("via", via), zap.String("session_id", sess.SessionID))
	return sess
}

func (m *Manager) invalidate(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[account]; ok {
		prev.Active = false
		delete(m.sessions, account)
	}
}

// ActiveSession returns the live session for account. Sessions older than
// auth.session_max_age are invalidated on access.
func (m *Manager) ActiveSession(account string) (*schemas.Session, bool) {
	now := m.bot.Clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[account]
	if !ok || !sess.Active {
		return nil, false
	}
	if sess.Expired(now, m.bot.Config.Auth.SessionMaxAge) {
		sess.Active = false
		delete(m.sessions, account)
		return nil, false
	}
	return sess, true
}

// Logout invalidates the session for account and forgets its cookies.
func (m *Manager) Logout(account string) error {
	m.invalidate(account)
	m.setState(StateLoggedOut)
	return m.cache.Delete(account)
}
