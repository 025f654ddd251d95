package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	byHash map[string]*APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

func (m *mockKeyRepo) Save(_ context.Context, key APIKeyInfo) error {
	m.byHash[key.KeyHash] = &key
	return nil
}

func TestHashKey_DependsOnPepper(t *testing.T) {
	a := HashKey([]byte("pepper-a"), "secret")
	b := HashKey([]byte("pepper-b"), "secret")

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashKey([]byte("pepper-a"), "secret"))
}

func TestAuthenticate(t *testing.T) {
	pepper := []byte("pepper")
	repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{}}
	require.NoError(t, repo.Save(context.Background(), APIKeyInfo{
		ID:         "k1",
		KeyHash:    HashKey(pepper, "good-key"),
		Name:       "pos",
		Scopes:     []string{ScopeBillsRead},
		CustomerID: "CUST001",
	}))
	a := NewAuthenticator(repo, pepper)

	info, err := a.Authenticate(context.Background(), "good-key")
	require.NoError(t, err)
	assert.Equal(t, "k1", info.ID)
	assert.True(t, info.HasScope(ScopeBillsRead))
	assert.False(t, info.HasScope(ScopeBillsWrite))

	_, err = a.Authenticate(context.Background(), "bad-key")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_StoredHashMismatch(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashKey(pepper, "good-key")
	repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{
		hash: {ID: "k1", KeyHash: "zz"},
	}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "good-key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestKeyContext(t *testing.T) {
	_, ok := KeyFrom(context.Background())
	assert.False(t, ok)

	ctx := WithKey(context.Background(), &APIKeyInfo{ID: "k1"})
	info, ok := KeyFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "k1", info.ID)
}
