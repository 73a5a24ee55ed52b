// Package oauthutil provides the token collaborator: it loads an
// oauth2 token from the config, refreshes it as needed and writes
// changed tokens back.
package oauthutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/fs/config/configmap"
	"golang.org/x/oauth2"
)

// ErrorNoToken is returned when the config has no token for the remote
var ErrorNoToken = errors.New("empty token found - please authorize the remote first")

// GetToken returns the token saved in the config under "token"
func GetToken(name string, m configmap.Mapper) (*oauth2.Token, error) {
	tokenString, ok := m.Get("token")
	if !ok || tokenString == "" {
		return nil, ErrorNoToken
	}
	token := new(oauth2.Token)
	err := json.Unmarshal([]byte(tokenString), token)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse token from config: %w", err)
	}
	return token, nil
}

// PutToken stores the token in the config under "token"
func PutToken(name string, m configmap.Mapper, token *oauth2.Token) error {
	tokenBytes, err := json.Marshal(token)
	if err != nil {
		return err
	}
	old, _ := m.Get("token")
	if string(tokenBytes) != old {
		m.Set("token", string(tokenBytes))
		fs.Debugf(name, "Saved new token in config")
	}
	return nil
}

// TokenSource stores updated tokens in the config
type TokenSource struct {
	mu          sync.Mutex
	name        string
	m           configmap.Mapper
	token       *oauth2.Token
	tokenSource oauth2.TokenSource
	config      *oauth2.Config
	ctx         context.Context
}

// Token returns a token or an error.  The token will be refreshed if
// it has expired, and any new token saved back to the config.
//
// Token is safe for concurrent use.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.tokenSource == nil {
		ts.tokenSource = ts.config.TokenSource(ts.ctx, ts.token)
	}
	token, err := ts.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch token: %w", err)
	}
	if token.AccessToken != ts.token.AccessToken {
		ts.token = token
		if saveErr := PutToken(ts.name, ts.m, token); saveErr != nil {
			fs.Errorf(ts.name, "Failed to save new token: %v", saveErr)
		}
	}
	return token, nil
}

// Invalidate invalidates the token so the next call to Token will
// fetch a new one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token.AccessToken = ""
	ts.tokenSource = nil
	ts.mu.Unlock()
}

// Check interface
var _ oauth2.TokenSource = (*TokenSource)(nil)

// Context returns a context with our HTTP Client baked in for oauth2
func Context(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// NewTokenSource makes a token source from the config identified by
// name using the http client passed in for any refresh requests.
func NewTokenSource(ctx context.Context, name string, m configmap.Mapper, config *oauth2.Config, baseClient *http.Client) (*TokenSource, error) {
	token, err := GetToken(name, m)
	if err != nil {
		return nil, err
	}
	return &TokenSource{
		name:   name,
		m:      m,
		token:  token,
		config: config,
		ctx:    Context(ctx, baseClient),
	}, nil
}
