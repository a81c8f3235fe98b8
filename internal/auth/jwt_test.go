package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 8*time.Hour)
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken("u-42", "alice", RoleAnalyst)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAnalyst, claims.Role)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 8*time.Hour)
	mgr2 := NewJWTManager("secret-2", 8*time.Hour)

	token, err := mgr1.GenerateToken("u-42", "alice", RoleViewer)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", 1*time.Millisecond)

	token, err := mgr.GenerateToken("u-42", "alice", RoleViewer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken("u-42", "alice", RoleViewer)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token + "x")
	assert.Error(t, err)
}
