package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/tenantauth/internal/app"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/spf13/cobra"
)

// errNotLoggedIn is returned after the guard has pointed the user at the login page.
var errNotLoggedIn = errors.New("not logged in")

// requireSession resumes an existing session and runs the guard over it.
func requireSession(ctx context.Context, cmd *cobra.Command, a *app.Application) error {
	if _, err := a.Session().GetUser(ctx); err != nil {
		return err
	}

	guard := session.Guard{
		Session:   a.Session(),
		Navigator: &session.WriterNavigator{Out: cmd.ErrOrStderr()},
		LoginPath: "tenantauth login",
	}
	if !guard.Allow(ctx) {
		return errNotLoggedIn
	}
	return nil
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := requireSession(ctx, cmd, a); err != nil {
					return err
				}

				st := a.Session().State()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:    %s\n", st.User.UserName)
				if name := st.User.DisplayName(); name != "" {
					fmt.Fprintf(out, "Name:    %s\n", name)
				}
				fmt.Fprintf(out, "Tenant:  %s\n", st.TenantID)
				fmt.Fprintf(out, "Scheme:  %s\n", st.Scheme)
				if st.OAuthIssuer != "" {
					fmt.Fprintf(out, "Issuer:  %s\n", st.OAuthIssuer)
				}
				return nil
			})
		},
	}
}

func optionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the login options the tenant offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				options, err := a.Session().LoginOptions(ctx)
				if err != nil {
					return err
				}
				for _, opt := range options {
					if opt.InitRequest != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", opt.Type, opt.InitRequest)
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), opt.Type)
				}
				return nil
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a backend path with the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := requireSession(ctx, cmd, a); err != nil {
					return err
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL(args[0]), nil)
				if err != nil {
					return err
				}
				req.Header.Set("Accept", "application/json")

				resp, err := a.Client().Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
					return err
				}
				if resp.StatusCode >= http.StatusBadRequest {
					return fmt.Errorf("%s returned %s", args[0], resp.Status)
				}
				return nil
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if _, err := a.Session().GetUser(ctx); err != nil {
					return err
				}
				if !a.Session().IsLoggedIn() {
					fmt.Fprintln(cmd.OutOrStdout(), "No active session.")
					return nil
				}
				logoutErr := a.Session().PerformLogout(ctx)
				if err := a.EndSession(ctx); err != nil {
					return errors.Join(logoutErr, fmt.Errorf("clear session storage: %w", err))
				}
				return logoutErr
			})
		},
	}
}
