package auth

import "fmt"

// Authenticator accepts either credential kind. Either part may be nil,
// in which case credentials of that kind are always rejected.
type Authenticator struct {
	tokens *TokenManager
	keys   *KeySet
}

// NewAuthenticator combines a token manager and a key set.
func NewAuthenticator(tokens *TokenManager, keys *KeySet) *Authenticator {
	return &Authenticator{tokens: tokens, keys: keys}
}

// ValidateToken validates a bearer token.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	if a.tokens == nil {
		return nil, ErrInvalidToken
	}
	return a.tokens.ValidateToken(token)
}

// ValidateAPIKey matches key against the configured hashes. The claims
// name the key by its position in the configuration.
func (a *Authenticator) ValidateAPIKey(key string) (*Claims, error) {
	i, err := a.keys.Match(key)
	if err != nil {
		return nil, err
	}
	var c Claims
	c.Subject = fmt.Sprintf("api-key-%d", i)
	return &c, nil
}
