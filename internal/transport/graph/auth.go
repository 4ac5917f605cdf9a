package graph

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenSource hands out cached client-credentials access tokens and can drop the cache when
// the API rejects a token.
type tokenSource struct {
	mu     sync.Mutex
	config *clientcredentials.Config
	ctx    context.Context
	source oauth2.TokenSource
}

func newTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &tokenSource{
		config: cfg,
		ctx:    ctx,
		source: cfg.TokenSource(ctx),
	}
}

// Token returns a valid access token, fetching a new one when the cached token is expired.
func (ts *tokenSource) Token() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token()
}

// ForceRefresh discards the cached token and acquires a new one.
func (ts *tokenSource) ForceRefresh() (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.source = ts.config.TokenSource(ts.ctx)
	return ts.token()
}

// token must be called with ts.mu held.
func (ts *tokenSource) token() (string, error) {
	tok, err := ts.source.Token()
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	return tok.AccessToken, nil
}
