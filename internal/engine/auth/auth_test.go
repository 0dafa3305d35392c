package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskflow/internal/domain"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPasswordCost("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, VerifyPassword("s3cret", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestHashPasswordSalts(t *testing.T) {
	a, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, hash := range []string{"", "not-a-hash", "$2a$10$short"} {
		assert.False(t, VerifyPassword("anything", hash), "hash %q", hash)
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestTokenRoundTrip(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewTokenCodec("test-secret")
	require.NoError(t, err)
	codec.Now = fixedClock(issuedAt)

	token, err := codec.Issue("user-1")
	require.NoError(t, err)

	for _, offset := range []time.Duration{0, time.Hour, TokenTTL - time.Second} {
		codec.Now = fixedClock(issuedAt.Add(offset))
		sub, err := codec.Validate(token)
		require.NoError(t, err, "offset %s", offset)
		assert.Equal(t, "user-1", sub)
	}
}

func TestTokenExpiry(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewTokenCodec("test-secret")
	require.NoError(t, err)
	codec.Now = fixedClock(issuedAt)
	token, err := codec.Issue("user-1")
	require.NoError(t, err)

	for _, offset := range []time.Duration{TokenTTL, TokenTTL + time.Minute, 48 * time.Hour} {
		codec.Now = fixedClock(issuedAt.Add(offset))
		_, err := codec.Validate(token)
		assert.ErrorIs(t, err, ErrUnauthenticated, "offset %s", offset)
	}
}

func TestTokenInvalid(t *testing.T) {
	codec, err := NewTokenCodec("test-secret")
	require.NoError(t, err)

	other, err := NewTokenCodec("different-secret")
	require.NoError(t, err)
	foreign, err := other.Issue("user-1")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	valid, err := codec.Issue("user-1")
	require.NoError(t, err)
	tampered := valid[:strings.LastIndex(valid, ".")+1] + "AAAA"

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "malformed", token: "header.payload.signature"},
		{name: "wrong secret", token: foreign},
		{name: "alg none", token: noneToken},
		{name: "missing exp", token: noExp},
		{name: "missing sub", token: noSub},
		{name: "tampered signature", token: tampered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Validate(tt.token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	_, err := NewTokenCodec("  ")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, bad := range []string{"", "Bearer", "Basic abc", "Bearer a b", "abc"} {
		_, ok := BearerToken(bad)
		assert.False(t, ok, "header %q", bad)
	}
}

func TestMayAssignFollowsLevels(t *testing.T) {
	h := NewHierarchy(DefaultRoles)
	roles := []string{"senior_manager", "manager", "team_lead", "senior_architect", "architect", "senior_developer", "developer", "intern", "ghost", ""}
	for _, a := range roles {
		for _, b := range roles {
			want := h.LevelOf(a) >= h.LevelOf(b)
			assert.Equal(t, want, h.MayAssign(a, b), "%s -> %s", a, b)
		}
		assert.True(t, h.MayAssign(a, a), "peer assignment for %s", a)
	}
}

func TestMayAssignScenarios(t *testing.T) {
	h := NewHierarchy(DefaultRoles)
	assert.True(t, h.MayAssign("senior_manager", "intern"))
	assert.False(t, h.MayAssign("intern", "senior_manager"))
	assert.True(t, h.MayAssign("developer", "developer"))
	assert.True(t, h.MayAssign("intern", "ghost"), "unknown assignee is level 0")
	assert.False(t, h.MayAssign("ghost", "intern"), "unknown assigner is level 0")
}

func TestHierarchyTiesAndIsolation(t *testing.T) {
	levels := map[string]int{"lead": 2, "staff": 2, "junior": 1}
	h := NewHierarchy(levels)
	levels["junior"] = 9

	assert.Equal(t, 1, h.LevelOf("junior"))
	assert.True(t, h.MayAssign("lead", "staff"))
	assert.True(t, h.MayAssign("staff", "lead"))
	assert.False(t, h.Known("manager"))
	assert.Equal(t, 0, h.LevelOf("manager"))
}

func TestHierarchyRolesOrdered(t *testing.T) {
	roles := NewHierarchy(DefaultRoles).Roles()
	require.Len(t, roles, 8)
	assert.Equal(t, RoleLevel{Role: "senior_manager", Level: 8}, roles[0])
	assert.Equal(t, RoleLevel{Role: "intern", Level: 1}, roles[7])
}

func TestMayAccess(t *testing.T) {
	task := domain.Task{ID: "t1", AssignedBy: "boss", AssignedTo: "worker"}
	assert.True(t, MayAccess("boss", task))
	assert.True(t, MayAccess("worker", task))
	assert.False(t, MayAccess("stranger", task))
	assert.False(t, MayAccess("", task))

	self := domain.Task{ID: "t2", AssignedBy: "solo", AssignedTo: "solo"}
	assert.True(t, MayAccess("solo", self))
}
