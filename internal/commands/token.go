package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"duet/internal/auth"
	"duet/internal/config"
)

// IssueToken mints a bearer token for userID with the server's secret.
// It is meant for local development and scripted clients.
func IssueToken(ctx context.Context, userID string, cfg *config.Config, out io.Writer) error {
	if cfg.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required to issue tokens")
	}

	authService, err := auth.NewAuthService(ctx, cfg.AuthConfig())
	if err != nil {
		return err
	}

	token, expiresAt, err := authService.IssueToken(userID)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, token)
	_, _ = fmt.Fprintf(out, "# expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
