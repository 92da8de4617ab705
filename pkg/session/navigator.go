package session

import (
	"context"
	"fmt"
	"io"
)

// Navigator performs the page-level side effects of the session: leaving for the SSO
// provider, reloading after logout, and reporting where the user currently is.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL() string
}

// WriterNavigator is a Navigator for terminals: it prints the target instead of opening
// it.
type WriterNavigator struct {
	Out io.Writer

	// Origin is reported as the current URL
	Origin string
}

func (n *WriterNavigator) Navigate(_ context.Context, url string) error {
	_, err := fmt.Fprintf(n.Out, "Open this URL to continue:\n  %s\n", url)
	return err
}

func (n *WriterNavigator) Reload(context.Context) error {
	_, err := fmt.Fprintln(n.Out, "Session reset.")
	return err
}

func (n *WriterNavigator) CurrentURL() string { return n.Origin }

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, string) error { return nil }
func (noopNavigator) Reload(context.Context) error           { return nil }
func (noopNavigator) CurrentURL() string                     { return "" }
