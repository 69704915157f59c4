package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/desertthunder/ytexport/internal/shared"
)

// YouTubeReadOnlyScope grants read access to the user's playlists and subscriptions.
const YouTubeReadOnlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// NewOAuthConfig builds the Google OAuth2 config for the YouTube Data API.
func NewOAuthConfig(creds shared.YouTubeConfig) (*oauth2.Config, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: youtube client_id and client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{YouTubeReadOnlyScope},
		Endpoint:     endpoints.Google,
	}, nil
}

// AuthURL returns the consent URL, asking for a refresh token so exports can continue unattended.
func AuthURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// LoadToken reads a token saved by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(shared.ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no token at %s, run `ytexport auth youtube`", shared.ErrNotAuthenticated, path)
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &token, nil
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	path = shared.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// savingTokenSource persists refreshed tokens so the next process starts with a valid access token.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// NewOAuthClient returns an HTTP client authorized with the token saved at tokenPath, refreshing it as needed.
func NewOAuthClient(ctx context.Context, config *oauth2.Config, tokenPath string) (*http.Client, error) {
	token, err := LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	ts := &savingTokenSource{
		base: config.TokenSource(ctx, token),
		path: tokenPath,
		last: token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, ts)), nil
}
