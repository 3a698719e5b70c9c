package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenMechanism treats the secret as a signed HS256 token. The token
// must verify against the configured signing key and its subject claim
// must match the username presented alongside it.
type TokenMechanism struct {
	key []byte
}

// NewTokenMechanism creates a token mechanism with the given HMAC
// signing key.
func NewTokenMechanism(key []byte) *TokenMechanism {
	return &TokenMechanism{key: key}
}

func (t *TokenMechanism) Authenticate(username, secret string) bool {
	token, err := jwt.Parse(secret, func(tok *jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return false
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return false
	}
	return subject == username
}
