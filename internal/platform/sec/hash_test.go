// Copyright (c) 2026 Divvy. All rights reserved.

package sec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/divvyapp/divvy/internal/platform/sec"
)

func newTestHasher(t *testing.T) *sec.PasswordHasher {
	t.Helper()
	hasher, err := sec.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return hasher
}

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, hasher.Compare("correct horse battery staple", hash))
}

/*
TestPasswordHasher_SingleCharacterMutation flips each character of the
password in turn and expects every variant to fail.
*/
func TestPasswordHasher_SingleCharacterMutation(t *testing.T) {
	hasher := newTestHasher(t)
	password := "S3cret!pw"

	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	for i := range password {
		mutated := []byte(password)
		mutated[i] ^= 0x01
		assert.Falsef(t, hasher.Compare(string(mutated), hash), "mutation at %d accepted", i)
	}

	assert.False(t, hasher.Compare(password+"x", hash))
	assert.False(t, hasher.Compare(password[:len(password)-1], hash))
	assert.False(t, hasher.Compare("", hash))
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same-password")
	require.NoError(t, err)
	second, err := hasher.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPasswordHasher_RejectsOverlongPassword(t *testing.T) {
	hasher := newTestHasher(t)

	_, err := hasher.Hash(strings.Repeat("a", sec.MaxPasswordBytes+1))
	assert.ErrorIs(t, err, sec.ErrPasswordTooLong)

	_, err = hasher.Hash(strings.Repeat("a", sec.MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestPasswordHasher_CompareGarbageHash(t *testing.T) {
	hasher := newTestHasher(t)
	assert.False(t, hasher.Compare("anything", "not-a-bcrypt-hash"))
	assert.False(t, hasher.CompareDummy("anything"))
}

func TestNewPasswordHasher_CostRange(t *testing.T) {
	_, err := sec.NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	_, err = sec.NewPasswordHasher(1)
	assert.Error(t, err)
}

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, sec.RoleAdmin.AtLeast(sec.RoleMember))
	assert.True(t, sec.RoleMember.AtLeast(sec.RoleMember))
	assert.False(t, sec.RoleMember.AtLeast(sec.RoleAdmin))
	assert.False(t, sec.UserRole("ghost").AtLeast(sec.RoleMember))
}

func TestSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, sec.HashToken(first), 64)
	assert.Equal(t, sec.HashToken(first), sec.HashToken(first))
}
