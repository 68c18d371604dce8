// Package auth handles OAuth2 token management and persistence.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrTokenNotSet indicates no OAuth token is available.
var ErrTokenNotSet = errors.New("no token defined")

// Token owns the mailbox credentials. Access tokens come from one reusable token source; a
// refreshed token replaces the current one and is written back to disk.
type Token struct {
	mu      sync.Mutex
	cfg     *oauth2.Config
	current *oauth2.Token
	src     oauth2.TokenSource
	path    string
	states  *states
	log     logrus.FieldLogger
}

// NewToken creates a Token, loading a previously persisted token from path when it exists.
func NewToken(cfg *oauth2.Config, path string, log logrus.FieldLogger) (*Token, error) {
	t := &Token{
		cfg:    cfg,
		path:   path,
		states: newStates(),
		log:    log,
	}

	saved, err := readToken(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.WithField("path", path).Info("Token file doesn't exist, it will be created after authorization")
	case err != nil:
		return nil, err
	case saved != nil:
		t.use(saved)
	}

	return t, nil
}

// RedirectURL builds the consent URL with a fresh single-use state.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.states.issue(time.Now())
	if err != nil {
		return "", fmt.Errorf("states.issue failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// AuthorizeCode exchanges an authorization code for a token once state has been checked.
func (t *Token) AuthorizeCode(ctx context.Context, code string, state string) error {
	if !t.states.consume(state, time.Now()) {
		return errors.New("invalid or expired state parameter")
	}

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.use(tok)
	t.log.WithField("expiry", tok.Expiry.Format(time.RFC3339)).Info("OAuth token authorized")

	if err := t.persist(); err != nil {
		t.log.WithError(err).Warn("Persisting authorized token failed")
	}

	return nil
}

// OAuthToken returns a valid access token, refreshing it when it has expired.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.src == nil {
		return nil, ErrTokenNotSet
	}

	tok, err := t.src.Token()
	if err != nil {
		return nil, fmt.Errorf("src.Token failed: %w", err)
	}
	if tok.AccessToken == t.current.AccessToken {
		return tok, nil
	}

	t.current = tok
	t.log.WithField("expiry", tok.Expiry.Format(time.RFC3339)).Info("OAuth token refreshed")

	if err := t.persist(); err != nil {
		t.log.WithError(err).Warn("Persisting refreshed token failed")
	}

	return tok, nil
}

// Persist writes the current token to disk.
func (t *Token) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.persist()
}

// use must be called with mu held or before t is shared.
func (t *Token) use(tok *oauth2.Token) {
	t.current = tok
	t.src = oauth2.ReuseTokenSource(tok, t.cfg.TokenSource(context.Background(), tok))
}

func (t *Token) persist() error {
	if t.path == "" || t.current == nil {
		return nil
	}

	return writeToken(t.path, t.current)
}

func readToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile failed: %w", err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("json.Unmarshal failed: %w", err)
	}

	return tok, nil
}

// writeToken atomically replaces path with tok.
func writeToken(path string, tok *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("os.MkdirAll failed: %w", err)
	}

	f, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp failed: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("f.Close failed: %w", err)
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("os.Rename failed: %w", err)
	}

	return nil
}
