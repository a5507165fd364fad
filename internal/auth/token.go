package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"libraryportal/internal/models"
)

// SessionTTL is how long an issued token stays valid.
const SessionTTL = 8 * time.Hour

// Claims carries the resolved caller identity inside the signed token.
type Claims struct {
	AccountID int         `json:"account_id"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies the identity tokens that stand in for
// server-side sessions.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue signs a token for the given account, valid for SessionTTL.
func (t *TokenIssuer) Issue(account *models.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies the token signature and expiry and returns the caller
// identity it carries.
func (t *TokenIssuer) Parse(tokenString string) (*models.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return t.secret, nil
		})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &models.Identity{
		AccountID: claims.AccountID,
		Username:  claims.Username,
		Role:      claims.Role,
	}, nil
}
