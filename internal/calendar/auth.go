package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Auth держит OAuth-конфиг и токен на диске. Авторизация идёт через
// copy-paste кода: пользователь открывает ссылку, вставляет код в чат.
type Auth struct {
	CredentialsPath string
	TokenPath       string

	mu  sync.Mutex
	cfg *oauth2.Config
}

const scope = "https://www.googleapis.com/auth/calendar"

func NewAuth(credentialsPath, tokenPath string) *Auth {
	return &Auth{CredentialsPath: credentialsPath, TokenPath: tokenPath}
}

func (a *Auth) config() (*oauth2.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg != nil {
		return a.cfg, nil
	}
	b, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: credentials: %v", ErrAuthRequired, err)
	}
	cfg, err := google.ConfigFromJSON(b, scope)
	if err != nil {
		return nil, fmt.Errorf("bad credentials.json: %w", err)
	}
	// out-of-band flow: Google показывает код прямо в браузере
	cfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	a.cfg = cfg
	return cfg, nil
}

// AuthURL returns the consent URL the user has to open.
func (a *Auth) AuthURL() (string, error) {
	cfg, err := a.config()
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange trades the pasted code for a token and persists it.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth exchange: %w", err)
	}
	return a.saveToken(tok)
}

// Authorized reports whether a token file exists.
func (a *Auth) Authorized() bool {
	_, err := os.Stat(a.TokenPath)
	return err == nil
}

// TokenSource yields a self-refreshing token source that writes refreshed
// tokens back to disk. ErrAuthRequired when there is no token yet.
func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	tok, err := a.loadToken()
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		auth: a,
		src:  cfg.TokenSource(ctx, tok),
		last: tok,
	}, nil
}

func (a *Auth) loadToken() (*oauth2.Token, error) {
	b, err := os.ReadFile(a.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrAuthRequired, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("%w: bad token.json: %v", ErrAuthRequired, err)
	}
	return &tok, nil
}

func (a *Auth) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.TokenPath), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(a.TokenPath, b, 0o600)
}

// savingTokenSource persists the token whenever the refresh flow rotated
// it, the way the original kept token.json current.
type savingTokenSource struct {
	auth *Auth
	src  oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := s.last == nil || tok.AccessToken != s.last.AccessToken
	s.last = tok
	s.mu.Unlock()
	if changed {
		_ = s.auth.saveToken(tok)
	}
	return tok, nil
}
