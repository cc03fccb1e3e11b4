package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", time.Hour, "")

	issued, err := m.GenerateToken("nyt-crawler", []string{ScopeIngest, ScopeSync})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.TokenID)

	claims, err := m.ParseToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "nyt-crawler", claims.Service)
	assert.Equal(t, issued.TokenID, claims.ID)
	assert.True(t, claims.HasScope(ScopeIngest))
	assert.False(t, claims.HasScope(ScopeBackfill))
}

func TestParseToken_Expired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, "")
	issued, err := m.GenerateToken("pipeline", nil)
	require.NoError(t, err)

	_, err = m.ParseToken(issued.Token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestParseToken_WrongSecretOrIssuer(t *testing.T) {
	issued, err := NewManager("secret-a", time.Hour, "").GenerateToken("pipeline", nil)
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour, "").ParseToken(issued.Token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = NewManager("secret-a", time.Hour, "other-issuer").ParseToken(issued.Token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestGenerateToken_EmptyService(t *testing.T) {
	_, err := NewManager("s", time.Hour, "").GenerateToken("", nil)
	assert.Equal(t, apperrors.ErrCodeInvalidParams, apperrors.CodeOf(err))
}
