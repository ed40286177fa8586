package api

import (
	"golang.org/x/oauth2"
)

// TokenStore is the on-device storage the bearer token is read from.
type TokenStore interface {
	Token() (string, error)
}

type storeTokenSource struct {
	store TokenStore
}

// StoreTokenSource returns a token source that reads the store on every call.
// No token is cached in memory; logging out in another process takes effect
// on the next request.
func StoreTokenSource(store TokenStore) oauth2.TokenSource {
	return storeTokenSource{store: store}
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.store.Token()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// StaticToken returns a token source for a fixed token.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return storeTokenSource{store: emptyStore{}}
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

type emptyStore struct{}

func (emptyStore) Token() (string, error) { return "", nil }
