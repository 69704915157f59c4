package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ytexport/internal/server"
	"github.com/desertthunder/ytexport/internal/services"
	"github.com/desertthunder/ytexport/internal/shared"
)

const authTimeout = 2 * time.Minute

// AuthYouTube runs the authorization code flow against Google and saves the token to
// credentials.youtube.token_path.
//
// The callback server listens on the host and port of the configured redirect URI.
func (r *Runner) AuthYouTube(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	oauthConfig, err := services.NewOAuthConfig(config.Credentials.YouTube)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, oauthConfig, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	tokenPath := config.Credentials.YouTube.TokenPath
	if err := services.SaveToken(tokenPath, token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", tokenPath)
	r.writePlain("You can now use: ytexport export batch\n")
	return nil
}

// callbackAddr derives the listen address from the redirect URI, e.g. http://localhost:3000/callback.
func callbackAddr(redirectURI string) (host string, port int, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", 0, fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", 0, fmt.Errorf("%w: redirect_uri must include a port: %v", shared.ErrInvalidConfig, err)
	}
	if port, err = strconv.Atoi(portStr); err != nil {
		return "", 0, fmt.Errorf("%w: redirect_uri port: %v", shared.ErrInvalidConfig, err)
	}
	return host, port, nil
}

func (r *Runner) doOAuth(ctx context.Context, oauthConfig *oauth2.Config, timeout time.Duration) (*oauth2.Token, error) {
	if timeout <= 0 {
		timeout = authTimeout
	}

	host, port, err := callbackAddr(oauthConfig.RedirectURL)
	if err != nil {
		return nil, err
	}

	state := shared.GenerateID()
	authURL := services.AuthURL(oauthConfig, state)

	oauthHandler := server.NewOAuthHandler(oauthConfig, state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()

	srv := server.New(host, port, router, r.logger)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Run(serverCtx)
	}()

	r.writePlain("→ Opening browser for YouTube authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("callback server stopped: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	}

	stop()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Err)
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}
