// Package jwttoken issues and validates the bearer tokens tenants use to call
// the issuance API. The tenant identity is carried in the tenant_id claim.
package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/middleware/auth"
	"certifier/pkg/requestcontext"
)

// AccessTokenClaims represents the JWT claims for tenant API tokens.
type AccessTokenClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey, issuer string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// GenerateAccessToken signs a token for the given tenant. The subject names the
// acting admin and ends up as the actor of activity entries.
func (s *JWTService) GenerateAccessToken(ctx context.Context, tenantID id.TenantID, subject string) (string, error) {
	if tenantID.IsNil() {
		return "", dErrors.New(dErrors.CodeValidation, "tenant ID is required")
	}
	if subject == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject is required")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        hex.EncodeToString(b),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken verifies signature, algorithm, issuer and expiry and returns
// the claims the auth middleware needs.
func (s *JWTService) ValidateToken(tokenString string) (*auth.Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "empty token")
	}

	claims := new(AccessTokenClaims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "token expired")
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid jwt signature")
		default:
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "jwt parse failed")
		}
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	return &auth.Claims{
		TenantID: claims.TenantID,
		Subject:  claims.Subject,
		JTI:      claims.ID,
	}, nil
}
