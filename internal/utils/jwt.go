package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtCustomClaims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the storefront needs to know about a bearer token.
type Identity struct {
	UserID string
	Email  string
	Role   string
	Token  string
}

// GenerateToken creates a signed JWT shaped like the ones the API issues.
func GenerateToken(secret, userID, email string, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		ID:    userID,
		Email: email,
		Role:  "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken reads the identity out of tokenString. With a secret the
// signature is verified; without one the token is decoded and only its
// expiry checked, leaving verification to the API that receives it.
func ParseToken(secret, tokenString string) (*Identity, error) {
	claims := &jwtCustomClaims{}

	if secret != "" {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return nil, err
		}
		if !token.Valid {
			return nil, jwt.ErrTokenInvalidClaims
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, jwt.ErrTokenExpired
		}
	}

	userID := firstNonEmpty(claims.ID, claims.UserID, claims.Subject)
	if userID == "" {
		return nil, errors.Join(jwt.ErrTokenInvalidClaims, errors.New("token carries no user id"))
	}

	return &Identity{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
		Token:  tokenString,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
