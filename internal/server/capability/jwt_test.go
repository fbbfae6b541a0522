package capability

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	s := NewSigner([]byte("super-secret"), "https://drop.example.com/")
	ref := "shares/2026/01/02/abc"

	u, err := s.Issue(ref, time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "https://drop.example.com/blobs/"))

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	token := strings.TrimPrefix(parsed.Path, BlobPath)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSigner([]byte("secret"), "http://x")
	s.now = func() time.Time { return now }

	tok, err := s.GenerateToken("ref", 5*time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(4 * time.Minute) }
	_, err = s.Verify(tok)
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(6 * time.Minute) }
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrCapabilityExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewSigner([]byte("right-secret"), "http://x").GenerateToken("ref", time.Hour)
	require.NoError(t, err)

	_, err = NewSigner([]byte("wrong-secret"), "http://x").Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidCapability)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	_, err := NewSigner([]byte("s"), "http://x").Verify("not-a-jwt")
	require.ErrorIs(t, err, common.ErrInvalidCapability)
}

func TestVerify_RejectsOtherAudienceAndAlg(t *testing.T) {
	t.Parallel()

	secret := []byte("s")
	s := NewSigner(secret, "http://x")

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ref",
		Audience:  jwt.ClaimStrings{"session"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	tok, err := other.SignedString(secret)
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidCapability)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ref",
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	tok, err = hs512.SignedString(secret)
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidCapability)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "ref",
		Audience: jwt.ClaimStrings{audience},
	}})
	tok, err = noExp.SignedString(secret)
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidCapability)
}
