// Package session owns the authentication state of one process: which credential
// scheme is active, who the user is, and how to log in and out.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/credstore"
	"github.com/aussiebroadwan/tenantauth/pkg/metrics"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrLoginThrottled is returned when interactive logins exceed the configured rate.
	ErrLoginThrottled = errors.New("session: too many login attempts")

	// ErrNoSession is returned by Probe when there is no credential to probe with.
	ErrNoSession = errors.New("session: not authenticated")

	// ErrNotRefreshable reports a 401 that cannot be recovered by a refresh.
	ErrNotRefreshable = errors.New("session: unauthorized response is not refreshable")

	// ErrRetryUnauthorized reports a request that was still unauthorized after a refresh.
	ErrRetryUnauthorized = errors.New("session: still unauthorized after refresh")
)

// Cookies gives the Manager access to the cookie tokens of SSO sessions.
type Cookies interface {
	XSRFToken() string
	Clear()
}

type tokenExpiry interface {
	AccessTokenExpiry() (time.Time, bool)
}

type noCookies struct{}

func (noCookies) XSRFToken() string { return "" }
func (noCookies) Clear()            {}

// Option configures a Manager.
type Option func(*Manager)

// WithStorage sets where the basic credential pair is kept. Defaults to memory.
func WithStorage(s credstore.Storage) Option {
	return func(m *Manager) { m.storage = s }
}

// WithCookies sets the cookie tokens source. Without it no cookie session is found.
func WithCookies(c Cookies) Option {
	return func(m *Manager) { m.cookies = c }
}

// WithNavigator sets the Navigator for SSO redirects and logout.
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.nav = n }
}

// WithLogger sets the logger; entries carry component=session.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = slogx.Component(l, "session") }
}

// WithMetrics records logins and expiries on mt. Nil records nothing.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLoginLimiter throttles PerformBasicAuthLogin. Unlimited by default.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// Manager is the session of one process. It is safe for concurrent use.
type Manager struct {
	backend authsdk.Backend
	storage credstore.Storage
	cookies Cookies
	nav     Navigator
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	group singleflight.Group

	mu          sync.RWMutex
	state       State
	cred        authsdk.Credential
	basicSecret string
	showLogin   bool

	optMu         sync.Mutex
	options       []authsdk.LoginOption
	optionsLoaded bool
}

// NewManager returns an unauthenticated Manager talking to backend.
func NewManager(backend authsdk.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		storage: credstore.NewMemoryStorage(),
		cookies: noCookies{},
		nav:     noopNavigator{},
		logger:  slogx.Component(nil, "session"),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ============================================================================
// Startup
// ============================================================================

// GetUser returns the authenticated user, logging in with an existing credential when
// one is found. With no credential it returns (nil, nil) after either redirecting to
// SSO (when ctx carries the SSO hint and the tenant offers OAUTH2) or flagging that the
// login page should be shown. Concurrent calls share one resolution.
func (m *Manager) GetUser(ctx context.Context) (*authsdk.CurrentUser, error) {
	if user, ok := m.cachedUser(); ok {
		return user, nil
	}

	sso := SSOHintFromContext(ctx)
	key := "user"
	if sso {
		key = "user+sso"
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.resolveUser(context.WithoutCancel(ctx), sso)
	})
	if err != nil {
		return nil, err
	}

	user, _ := v.(*authsdk.CurrentUser)
	if user == nil {
		return nil, nil
	}
	u := *user
	return &u, nil
}

func (m *Manager) resolveUser(ctx context.Context, sso bool) (*authsdk.CurrentUser, error) {
	if user, ok := m.cachedUser(); ok {
		return user, nil
	}

	if cred := m.probeCredential(ctx); cred != nil {
		user, err := m.TryLogin(ctx, cred)
		switch {
		case err == nil:
			return user, nil
		case errors.Is(err, authsdk.ErrInvalidCredentials), errors.Is(err, authsdk.ErrSessionExpired):
			m.logger.Info("existing credential rejected", "scheme", schemeOf(cred).String(), "error", err)
			m.discardCredential(ctx, cred)
		default:
			return nil, err
		}
	}

	options, err := m.LoginOptions(ctx)
	if err != nil {
		return nil, err
	}

	if sso {
		if opt, ok := authsdk.FirstOAuth2(options); ok {
			return nil, m.redirectToSSO(ctx, opt)
		}
	}

	m.mu.Lock()
	m.showLogin = true
	m.mu.Unlock()
	return nil, nil
}

// probeCredential finds an existing credential: the XSRF cookie first, then a stored
// basic pair.
func (m *Manager) probeCredential(ctx context.Context) authsdk.Credential {
	if m.cookies.XSRFToken() != "" {
		return authsdk.CookieCredential{}
	}

	cred, ok, err := credstore.LoadBasic(ctx, m.storage)
	if err != nil {
		m.logger.Warn("ignoring unreadable stored credentials", "error", err)
		if errors.Is(err, credstore.ErrCorrupt) {
			_ = credstore.RemoveBasic(ctx, m.storage)
		}
		return nil
	}
	if !ok {
		return nil
	}
	return cred
}

func (m *Manager) discardCredential(ctx context.Context, cred authsdk.Credential) {
	switch cred.(type) {
	case authsdk.CookieCredential:
		m.cookies.Clear()
	case authsdk.BasicCredential:
		if err := credstore.RemoveBasic(ctx, m.storage); err != nil {
			m.logger.Warn("failed to remove stored credentials", "error", err)
		}
	}
}

// ============================================================================
// Login
// ============================================================================

func schemeOf(cred authsdk.Credential) Scheme {
	switch cred.(type) {
	case authsdk.CookieCredential:
		return SchemeOAuth2
	case authsdk.BasicCredential:
		return SchemeBasic
	default:
		return SchemeNone
	}
}

// TryLogin validates cred and loads the tenant (and, for cookie sessions, the OAuth
// descriptor). The session is committed only once every fetch has succeeded.
func (m *Manager) TryLogin(ctx context.Context, cred authsdk.Credential) (*authsdk.CurrentUser, error) {
	scheme := schemeOf(cred)
	if scheme == SchemeNone {
		return nil, errors.New("session: no credential")
	}
	ctx = context.WithoutCancel(ctx)

	user, err := m.backend.CurrentUser(ctx, cred)
	if err != nil {
		return nil, m.loginFailed(scheme, fmt.Errorf("current user: %w", err))
	}

	tenant, err := m.backend.CurrentTenant(ctx, cred)
	if err != nil {
		return nil, m.loginFailed(scheme, fmt.Errorf("current tenant: %w", err))
	}

	next := State{
		Authenticated: true,
		Scheme:        scheme,
		User:          user,
		TenantID:      tenant.Name,
	}
	var secret string

	switch c := cred.(type) {
	case authsdk.CookieCredential:
		c.UserID = user.ID
		cred = c

		desc, err := m.backend.OAuthDescriptor(ctx, cred)
		if err != nil {
			return nil, m.loginFailed(scheme, fmt.Errorf("oauth descriptor: %w", err))
		}
		next.OAuthIssuer = desc.Issuer
	case authsdk.BasicCredential:
		secret = authsdk.BasicSecret(tenant.Name, c.Username, c.Password)
	}

	m.mu.Lock()
	m.state = next
	m.cred = cred
	m.basicSecret = secret
	m.showLogin = false
	m.mu.Unlock()

	m.metrics.Login(scheme.String(), metrics.OutcomeSuccess)
	m.metrics.SetAuthenticated(true)
	m.logger.Info("login succeeded",
		"scheme", scheme.String(),
		"user_id", user.ID,
		"tenant", tenant.Name,
	)

	u := *user
	return &u, nil
}

func (m *Manager) loginFailed(scheme Scheme, err error) error {
	m.metrics.Login(scheme.String(), metrics.OutcomeFailure)
	m.logger.Info("login failed", "scheme", scheme.String(), "error", err)
	return err
}

// PerformBasicAuthLogin logs in with a username and password and stores the pair so a
// restarted process in the same session scope can log in again silently.
func (m *Manager) PerformBasicAuthLogin(ctx context.Context, username, password string) (*authsdk.CurrentUser, error) {
	if !m.limiter.Allow() {
		m.metrics.Login(SchemeBasic.String(), metrics.OutcomeThrottled)
		return nil, ErrLoginThrottled
	}

	cred := authsdk.BasicCredential{Username: username, Password: password}
	user, err := m.TryLogin(ctx, cred)
	if err != nil {
		return nil, err
	}

	if err := credstore.SaveBasic(context.WithoutCancel(ctx), m.storage, cred); err != nil {
		m.logger.Warn("failed to persist credentials", "error", err)
	}
	return user, nil
}

// PerformOAuthLogin navigates to the SSO authorization URL. It does nothing when the
// tenant offers no OAUTH2 login.
func (m *Manager) PerformOAuthLogin(ctx context.Context) error {
	options, err := m.LoginOptions(ctx)
	if err != nil {
		return err
	}

	opt, ok := authsdk.FirstOAuth2(options)
	if !ok {
		return nil
	}
	return m.redirectToSSO(ctx, opt)
}

func (m *Manager) redirectToSSO(ctx context.Context, opt authsdk.LoginOption) error {
	target := AuthorizationURL(opt.InitRequest, m.nav.CurrentURL())
	m.logger.Info("redirecting to sso")
	if err := m.nav.Navigate(ctx, target); err != nil {
		return fmt.Errorf("navigate to sso: %w", err)
	}
	return nil
}

// LoginOptions returns the tenant's login options. The first successful fetch is
// cached; failures are not.
func (m *Manager) LoginOptions(ctx context.Context) ([]authsdk.LoginOption, error) {
	m.optMu.Lock()
	if m.optionsLoaded {
		options := slices.Clone(m.options)
		m.optMu.Unlock()
		return options, nil
	}
	m.optMu.Unlock()

	v, err, _ := m.group.Do("options", func() (any, error) {
		options, err := m.backend.LoginOptions(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		m.optMu.Lock()
		m.options = options
		m.optionsLoaded = true
		m.optMu.Unlock()
		return options, nil
	})
	if err != nil {
		return nil, fmt.Errorf("login options: %w", err)
	}

	options, _ := v.([]authsdk.LoginOption)
	return slices.Clone(options), nil
}

// SupportsOAuth reports whether the last loaded login options include OAUTH2.
func (m *Manager) SupportsOAuth() bool {
	m.optMu.Lock()
	defer m.optMu.Unlock()

	if !m.optionsLoaded {
		return false
	}
	_, ok := authsdk.FirstOAuth2(m.options)
	return ok
}

// ============================================================================
// Logout and expiry
// ============================================================================

// PerformLogout ends the session. BASIC sessions drop the stored pair and reload; SSO
// sessions clear the cookie tokens and navigate to the provider's logout page. Local
// state is reset even when the backend logout fails; that failure is returned.
func (m *Manager) PerformLogout(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	m.mu.RLock()
	st, cred := m.state, m.cred
	m.mu.RUnlock()

	if !st.Authenticated || cred == nil {
		return nil
	}

	var errs []error

	switch st.Scheme {
	case SchemeBasic:
		if err := credstore.RemoveBasic(ctx, m.storage); err != nil {
			errs = append(errs, fmt.Errorf("remove stored credentials: %w", err))
		}
		if err := m.backend.Logout(ctx, cred); err != nil {
			errs = append(errs, fmt.Errorf("backend logout: %w", err))
		}
		m.reset()
		if err := m.nav.Reload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reload: %w", err))
		}

	case SchemeOAuth2:
		if err := m.backend.Logout(ctx, cred); err != nil {
			errs = append(errs, fmt.Errorf("backend logout: %w", err))
		}
		m.reset()
		m.cookies.Clear()
		if err := m.nav.Navigate(ctx, LogoutURL(st.OAuthIssuer, m.nav.CurrentURL())); err != nil {
			errs = append(errs, fmt.Errorf("navigate to sso logout: %w", err))
		}
	}

	m.logger.Info("logged out", "scheme", st.Scheme.String())
	return errors.Join(errs...)
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.state = State{}
	m.cred = nil
	m.basicSecret = ""
	m.mu.Unlock()

	m.metrics.SetAuthenticated(false)
}

// MarkExpired drops the session without contacting the backend.
func (m *Manager) MarkExpired(ctx context.Context) {
	m.mu.RLock()
	was := m.state.Authenticated
	m.mu.RUnlock()

	m.reset()
	if was {
		m.logger.InfoContext(ctx, "session marked expired")
	}
}

// HandleSessionExpired records an unrecoverable unauthorized response. It does not
// change the session; callers decide whether to MarkExpired.
func (m *Manager) HandleSessionExpired(req *http.Request, resp *http.Response, err error) {
	reason := "unauthorized"
	switch {
	case errors.Is(err, ErrNotRefreshable):
		reason = "not_refreshable"
	case errors.Is(err, ErrRetryUnauthorized):
		reason = "retry_unauthorized"
	}

	attrs := []any{"reason", reason, "scheme", m.Scheme().String()}
	if req != nil {
		attrs = append(attrs,
			"req_id", slogx.RequestID(req.Context()),
			"method", req.Method,
			"url", req.URL.Redacted(),
		)
	}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	if te, ok := m.cookies.(tokenExpiry); ok {
		if exp, ok := te.AccessTokenExpiry(); ok {
			attrs = append(attrs, "token_expires_at", exp, "token_expired", time.Now().After(exp))
		}
	}

	m.logger.Warn("session expired", attrs...)
	m.metrics.SessionExpired(reason)
}

// Probe re-validates the active credential against the backend. Cookie rotation, if
// the backend does any, happens through the shared cookie jar.
func (m *Manager) Probe(ctx context.Context) error {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()

	if cred == nil {
		return ErrNoSession
	}

	user, err := m.backend.CurrentUser(ctx, cred)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state.Authenticated {
		m.state.User = user
	}
	m.mu.Unlock()
	return nil
}

// ============================================================================
// Accessors
// ============================================================================

func (m *Manager) cachedUser() (*authsdk.CurrentUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.state.Authenticated || m.state.User == nil {
		return nil, false
	}
	u := *m.state.User
	return &u, true
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Authenticated
}

func (m *Manager) Scheme() Scheme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Scheme
}

func (m *Manager) TenantID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TenantID
}

// BasicSecret returns the Authorization header value of a BASIC session, or "".
func (m *Manager) BasicSecret() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.basicSecret
}

// XSRFToken returns the current XSRF cookie token, or "".
func (m *Manager) XSRFToken() string { return m.cookies.XSRFToken() }

// ShouldShowLoginPage reports whether GetUser found no session and no SSO redirect
// happened.
func (m *Manager) ShouldShowLoginPage() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.showLogin
}
