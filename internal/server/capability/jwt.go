// Package capability issues and verifies self-signed, short-lived read
// grants for blobs served through the API's blob proxy. S3 deployments use
// presigned URLs instead.
package capability

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	audience = "blob-read"
	// BlobPath is the route prefix under which the proxy serves capabilities.
	BlobPath = "/blobs/"
)

// Claims carry the storage ref in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer mints and checks HS256 capability tokens.
type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewSigner(secret []byte, baseURL string) *Signer {
	return &Signer{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Issue returns a proxy URL granting read access to ref for ttl.
func (s *Signer) Issue(ref string, ttl time.Duration) (string, error) {
	token, err := s.GenerateToken(ref, ttl)
	if err != nil {
		return "", err
	}
	return s.baseURL + BlobPath + url.PathEscape(token), nil
}

func (s *Signer) GenerateToken(ref string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ref,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify returns the storage ref named by tokenString.
// An expired token yields common.ErrCapabilityExpired, any other defect
// common.ErrInvalidCapability.
func (s *Signer) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrCapabilityExpired
		}
		return "", fmt.Errorf("%w: %w", common.ErrInvalidCapability, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidCapability
	}

	return claims.Subject, nil
}
