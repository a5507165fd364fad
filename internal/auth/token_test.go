package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryportal/internal/models"
)

func TestIssueParseRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	account := &models.Account{ID: 3, Username: "alice", Password: "pw", Role: models.RoleStudent}

	token, err := issuer.Issue(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, 3, identity.AccountID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, models.RoleStudent, identity.Role)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	account := &models.Account{ID: 1, Username: "admin", Role: models.RoleAdmin}

	token, err := issuer.Issue(account)
	require.NoError(t, err)

	_, err = NewTokenIssuer("other-secret").Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")

	_, err := issuer.Parse("not-a-token")
	assert.Error(t, err)
}
