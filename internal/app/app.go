package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/credstore"
	"github.com/aussiebroadwan/tenantauth/pkg/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/idx"
	"github.com/aussiebroadwan/tenantauth/pkg/metrics"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
	"github.com/aussiebroadwan/tenantauth/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

type options struct {
	navigator session.Navigator
	registry  *prometheus.Registry
	logOutput io.Writer
	base      http.RoundTripper
}

// Option overrides a default collaborator of the Application.
type Option func(*options)

// WithNavigator replaces the terminal navigator.
func WithNavigator(n session.Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithRegistry registers metrics on r instead of a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogOutput redirects logs, os.Stderr by default.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithBaseTransport sets the transport under the logging and auth layers.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// Application wires the session, its storage and the authenticated HTTP client.
type Application struct {
	cfg    Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	storage     credstore.Storage
	db          *sqlite.Store // nil with memory storage
	scope       idx.ID
	housekeeper *credstore.Housekeeper

	cookies     *credstore.CookieTokens
	backend     *authsdk.SDKClient
	session     *session.Manager
	coordinator *transport.Coordinator
	client      *http.Client
}

// New creates a new Application with all dependencies initialized.
func New(cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		registry:  prometheus.NewRegistry(),
		logOutput: os.Stderr,
		base:      http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.navigator == nil {
		o.navigator = &session.WriterNavigator{Out: os.Stdout, Origin: cfg.AppURL}
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tenantauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  o.logOutput,
		}),
		registry: o.registry,
	}
	app.metrics = metrics.New(metrics.WithRegistry(o.registry))

	if err := app.initStorage(); err != nil {
		return nil, err
	}

	if err := app.initSession(o); err != nil {
		_ = app.Close()
		return nil, err
	}

	return app, nil
}

// initStorage opens the session-scoped storage and starts housekeeping for sqlite.
func (app *Application) initStorage() error {
	if app.cfg.Storage == StorageMemory {
		app.storage = credstore.NewMemoryStorage()
		return nil
	}

	scope, err := idx.ParseOrNew(app.cfg.SessionScope)
	if err != nil {
		return fmt.Errorf("invalid TENANTAUTH_SESSION_SCOPE: %w", err)
	}

	sealer, err := cryptox.NewSealer([]byte(app.cfg.MasterKey))
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}

	db, err := sqlite.NewStore(app.cfg.DatabaseFile, sqlite.Config{
		Scope:  scope,
		TTL:    app.cfg.SessionTTL,
		Sealer: sealer,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Debug("database migrations applied", "file", app.cfg.DatabaseFile)

	app.db = db
	app.storage = db
	app.scope = db.Scope()
	app.housekeeper = credstore.NewHousekeeper(db, slogx.Component(app.logger, "housekeeping"), app.cfg.HousekeepingInterval)
	app.housekeeper.Start()
	return nil
}

func (app *Application) initSession(o options) error {
	cookies, err := credstore.NewCookieTokens(app.cfg.BaseURL)
	if err != nil {
		return err
	}
	if err := cookies.Restore(context.Background(), app.storage); err != nil {
		app.logger.Warn("ignoring stored cookies", "error", err)
	}
	app.cookies = cookies

	logged := &slogx.Transport{Base: o.base, Logger: slogx.Component(app.logger, "http")}

	backend := authsdk.NewSDKClient(app.cfg.BaseURL)
	backend.HTTPClient = &http.Client{
		Timeout:   app.cfg.HTTPTimeout,
		Jar:       cookies.Jar(),
		Transport: logged,
	}
	backend.Tokens = cookies
	app.backend = backend

	limiter := rate.NewLimiter(rate.Inf, 0)
	if app.cfg.LoginRate > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(app.cfg.LoginRate)), max(app.cfg.LoginBurst, 1))
	}

	app.session = session.NewManager(backend,
		session.WithStorage(app.storage),
		session.WithCookies(cookies),
		session.WithNavigator(o.navigator),
		session.WithLogger(app.logger),
		session.WithMetrics(app.metrics),
		session.WithLoginLimiter(limiter),
	)

	app.coordinator = &transport.Coordinator{
		Probe:   app.session.Probe,
		Timeout: app.cfg.RefreshTimeout,
		Logger:  slogx.Component(app.logger, "transport"),
		Metrics: app.metrics,
	}

	app.client = &http.Client{
		Timeout: app.cfg.HTTPTimeout,
		Jar:     cookies.Jar(),
		Transport: &transport.Transport{
			Session:         app.session,
			Coordinator:     app.coordinator,
			ProtectedPrefix: app.cfg.ProtectedPrefix,
			Base:            logged,
			Logger:          slogx.Component(app.logger, "transport"),
		},
	}
	return nil
}

// Session returns the session manager.
func (app *Application) Session() *session.Manager { return app.session }

// Client returns the HTTP client that authenticates with the session and refreshes it.
func (app *Application) Client() *http.Client { return app.client }

func (app *Application) Logger() *slog.Logger { return app.logger }

// Gatherer exposes the metrics registry.
func (app *Application) Gatherer() prometheus.Gatherer { return app.registry }

// SessionScope returns the scope of sqlite storage, or the zero ID with memory storage.
func (app *Application) SessionScope() idx.ID { return app.scope }

// URL resolves a backend path against the base URL.
func (app *Application) URL(path string) string {
	return strings.TrimSuffix(app.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Persist writes the session cookies to storage so a later process in the same scope
// resumes the SSO session.
func (app *Application) Persist(ctx context.Context) error {
	return app.cookies.Save(ctx, app.storage)
}

// StartupContext returns ctx carrying the SSO hint of the app URL: sso=true in its query
// asks GetUser to go straight to the identity provider when there is no session.
func (app *Application) StartupContext(ctx context.Context) context.Context {
	u, err := url.Parse(app.cfg.AppURL)
	if err != nil {
		return ctx
	}
	return session.WithSSOHint(ctx, session.SSOHintFromQuery(u.Query()))
}

// EndSession drops every value stored for the session scope. Call it after logout.
func (app *Application) EndSession(ctx context.Context) error {
	return app.storage.Clear(ctx)
}

// WriteMetrics writes the registry in the text exposition format to the configured
// metrics file, for a node exporter textfile collector. It does nothing without one.
func (app *Application) WriteMetrics() error {
	if app.cfg.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(app.cfg.MetricsFile, app.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// ImportSSOCookies seeds the cookie jar with the tokens issued by an SSO login that
// completed in a browser. Empty values are skipped.
func (app *Application) ImportSSOCookies(xsrf, authorization string) {
	if xsrf != "" {
		app.cookies.Import(credstore.XSRFCookie, xsrf)
	}
	if authorization != "" {
		app.cookies.Import(credstore.AuthorizationCookie, authorization)
	}
}

// Close stops housekeeping and closes the database.
func (app *Application) Close() error {
	if app.housekeeper != nil {
		app.housekeeper.Stop()
		app.housekeeper = nil
	}
	if app.db != nil {
		err := app.db.Close()
		app.db = nil
		if err != nil {
			app.logger.Error("error closing database", "error", err)
			return err
		}
	}
	return nil
}
