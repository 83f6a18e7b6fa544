package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthenticated is returned for missing, malformed or expired tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the user identity behind a connection token.
type Authenticator interface {
	ResolveUser(token string) (uuid.UUID, error)
}

// JWTAuthenticator validates HMAC-signed JWTs and extracts the user id
// from the subject claim.
type JWTAuthenticator struct {
	signingKey []byte
}

func NewJWTAuthenticator(signingKey []byte) *JWTAuthenticator {
	return &JWTAuthenticator{signingKey: signingKey}
}

// ResolveUser parses and verifies the token, returning the user id from
// the sub claim or ErrUnauthenticated.
func (a *JWTAuthenticator) ResolveUser(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		// Validate the algorithm is HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return uuid.Nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrUnauthenticated
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}
	return userID, nil
}
