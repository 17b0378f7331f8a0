// Package gauth loads the delegated Google credential and keeps it
// fresh. The credential is the "authorized user" token JSON written
// by Google's installed-app OAuth flow, supplied through the
// environment or a file. Interactive consent is out of scope: when
// no usable credential exists the process must not start.
package gauth

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"

	"github.com/drivedrop/drivedrop/internal/logging"
)

// Scope limits the credential to files the app created.
const Scope = "https://www.googleapis.com/auth/drive.file"

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// authorizedUser mirrors the token JSON produced by Google OAuth
// installed-app flows.
type authorizedUser struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"token"`
	TokenURI     string    `json:"token_uri"`
	Expiry       time.Time `json:"expiry"`
}

// TokenSource builds a self-refreshing token source from tokenJSON,
// falling back to tokenFile when tokenJSON is empty. Refreshed
// tokens are written back to tokenFile (when set) and logged so
// stateless deployments can rotate the environment value.
func TokenSource(ctx context.Context, tokenJSON, tokenFile string, log *logging.Logger) (oauth2.TokenSource, error) {
	raw := []byte(tokenJSON)
	if len(raw) == 0 {
		if tokenFile == "" {
			return nil, fmt.Errorf("no credential configured")
		}
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading token file %s: %w", tokenFile, err)
		}
		raw = data
	}

	user, err := parseAuthorizedUser(raw)
	if err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID:     user.ClientID,
		ClientSecret: user.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: user.tokenURL()},
		Scopes:       []string{Scope},
	}
	tok := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       user.Expiry,
	}

	ps := &persistingSource{
		inner:     cfg.TokenSource(ctx, tok),
		user:      user,
		tokenFile: tokenFile,
		log:       log,
		last:      tok.AccessToken,
	}
	return ps, nil
}

func parseAuthorizedUser(raw []byte) (*authorizedUser, error) {
	var user authorizedUser
	if err := sonic.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("parsing token JSON: %w", err)
	}
	if user.RefreshToken == "" {
		return nil, fmt.Errorf("token JSON has no refresh_token")
	}
	if user.ClientID == "" || user.ClientSecret == "" {
		return nil, fmt.Errorf("token JSON is missing client_id or client_secret")
	}
	return &user, nil
}

func (u *authorizedUser) tokenURL() string {
	if u.TokenURI != "" {
		return u.TokenURI
	}
	return defaultTokenURL
}

// persistingSource wraps a token source and persists refreshed
// tokens, mirroring the original deployment's need to carry the
// credential across stateless restarts.
type persistingSource struct {
	inner     oauth2.TokenSource
	user      *authorizedUser
	tokenFile string
	log       *logging.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing credential: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken

	p.user.AccessToken = tok.AccessToken
	p.user.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		p.user.RefreshToken = tok.RefreshToken
	}

	data, err := sonic.Marshal(p.user)
	if err != nil {
		p.log.Warn("failed to serialize refreshed token")
		return tok, nil
	}
	if p.tokenFile != "" {
		if err := os.WriteFile(p.tokenFile, data, 0o600); err != nil {
			p.log.Sugar().Warnw("failed to persist refreshed token", "file", p.tokenFile, "error", err)
		}
	}
	p.log.Info("credential refreshed; for stateless deployments update GOOGLE_TOKEN_JSON to the contents of the token file")
	return tok, nil
}
