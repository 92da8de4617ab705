package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/tenantauth/internal/app"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tenantauth",
		Short: "Log in to a tenant and call its services",
		Long: `tenantauth keeps an authenticated session against a multi-tenant backend.

Sessions use either a tenant-qualified username and password (BASIC) or the
cookies issued by the tenant's SSO provider (OAUTH2). Requests to protected
services are stamped with the active credential, and an expired SSO session is
refreshed once for every request waiting on it.

Configuration is read from TENANTAUTH_* environment variables. Set
TENANTAUTH_STORAGE=sqlite to keep a session between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		loginCmd(),
		whoamiCmd(),
		optionsCmd(),
		getCmd(),
		logoutCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// withApp builds the Application from the environment, runs fn with the startup SSO
// hint, then persists the session cookies and metrics before closing.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg := app.LoadConfig()

	a, err := app.New(cfg, app.WithNavigator(&session.WriterNavigator{
		Out:    cmd.OutOrStdout(),
		Origin: cfg.AppURL,
	}))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = a.StartupContext(ctx)

	runErr := fn(ctx, a)
	if err := a.Persist(ctx); err != nil {
		a.Logger().Warn("failed to persist session cookies", "error", err)
	}
	if err := a.WriteMetrics(); err != nil {
		a.Logger().Warn("failed to export metrics", "error", err)
	}

	if cfg.Storage == app.StorageSQLite && cfg.SessionScope == "" {
		info(cmd, "Session scope: %s (export TENANTAUTH_SESSION_SCOPE to reuse it)", a.SessionScope())
	}
	return runErr
}

func info(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
