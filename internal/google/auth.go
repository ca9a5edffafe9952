// Package google adapts the Google Calendar and Google Tasks APIs to the
// reconcile stores, and handles the installed-app OAuth flow.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/tasks/v1"

	"calsync/internal/config"
	appLog "calsync/internal/log"
)

// Scopes requested for the stored token.
var Scopes = []string{calendar.CalendarScope, tasks.TasksScope}

// ErrNoToken means the authorization flow has not been run yet.
var ErrNoToken = errors.New("no stored OAuth token; run `calsync auth` first")

// Auth owns the OAuth client configuration and the token file.
type Auth struct {
	cfg       *oauth2.Config
	tokenPath string
}

// LoadAuth reads the OAuth client file downloaded from the cloud console.
func LoadAuth(credentialsPath, tokenPath string) (*Auth, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read OAuth client file: %w", err)
	}
	cfg, err := googleoauth.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse OAuth client file: %w", err)
	}
	return &Auth{cfg: cfg, tokenPath: tokenPath}, nil
}

// AuthCodeURL is the consent page the user must visit. Offline access is
// requested so that a refresh token comes back.
func (a *Auth) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (a *Auth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := a.SaveToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// LoadToken reads the stored token.
func (a *Auth) LoadToken() (*oauth2.Token, error) {
	b, err := os.ReadFile(a.tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", a.tokenPath, err)
	}
	return &tok, nil
}

// SaveToken writes tok with 0600 permissions.
func (a *Auth) SaveToken(tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(a.tokenPath, b); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// HTTPClient returns a client authorized with the stored token. Refreshed
// tokens are written back to the token file.
func (a *Auth) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := a.LoadToken()
	if err != nil {
		return nil, err
	}
	src := &persistingSource{
		base: a.cfg.TokenSource(ctx, tok),
		last: tok.AccessToken,
		save: a.SaveToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

type persistingSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token) error
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			// The refreshed token is still usable for this process.
			appLog.Warn("failed to persist refreshed token", "error", err.Error())
		} else {
			appLog.Debug("refreshed token persisted", "expiry", tok.Expiry)
		}
	}
	return tok, nil
}
