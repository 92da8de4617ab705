package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tenantauth/internal/app"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/spf13/cobra"
)

var errSSOUnavailable = errors.New("the tenant does not offer SSO login")

func loginCmd() *cobra.Command {
	var (
		username string
		password string
		sso      bool
		xsrf     string
		authz    string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a password or through SSO",
		Long: `Log in to the tenant.

With --username and --password a BASIC session is created. With --sso an existing
session is resumed, or the SSO authorization URL is printed; once the browser login
completes, pass the issued cookies back with --xsrf-token and --auth-cookie to resume
that session here. Without flags an existing session is resumed if one is found, and
sso=true in the query of TENANTAUTH_APP_URL behaves like --sso.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				mgr := a.Session()

				switch {
				case username != "":
					if password == "" {
						return errors.New("--password is required with --username")
					}
					user, err := mgr.PerformBasicAuthLogin(ctx, username, password)
					if err != nil {
						return errors.New(session.LoginErrorMessage(err))
					}
					printUser(cmd, a, user.DisplayName(), user.UserName)
					return nil

				case sso:
					if _, err := mgr.LoginOptions(ctx); err != nil {
						return err
					}
					if !mgr.SupportsOAuth() {
						return errSSOUnavailable
					}
					ctx = session.WithSSOHint(ctx, true)

				case xsrf != "":
					a.ImportSSOCookies(xsrf, authz)
				}

				user, err := mgr.GetUser(ctx)
				if err != nil {
					return errors.New(session.LoginErrorMessage(err))
				}
				if user == nil {
					if session.SSOHintFromContext(ctx) && mgr.SupportsOAuth() {
						// GetUser printed the authorization URL.
						return nil
					}
					return errors.New("no session found; log in with --username or --sso")
				}
				printUser(cmd, a, user.DisplayName(), user.UserName)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for a BASIC login")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password for a BASIC login")
	cmd.Flags().BoolVar(&sso, "sso", false, "Print the SSO authorization URL")
	cmd.Flags().StringVar(&xsrf, "xsrf-token", "", "XSRF-TOKEN cookie issued by a browser SSO login")
	cmd.Flags().StringVar(&authz, "auth-cookie", "", "authorization cookie issued by a browser SSO login")
	cmd.MarkFlagsMutuallyExclusive("username", "sso", "xsrf-token")

	return cmd
}

func printUser(cmd *cobra.Command, a *app.Application, displayName, userName string) {
	name := displayName
	if name == "" {
		name = userName
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (tenant %s, %s)\n",
		name, a.Session().TenantID(), a.Session().Scheme())
}
