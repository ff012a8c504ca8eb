package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory(t *testing.T) {
	sess := NewMemory(map[string]string{"a": "1"})

	v, ok := sess.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = sess.Get("missing")
	assert.False(t, ok)

	sess.Set("b", "2")
	assert.True(t, sess.Delete("a"))
	assert.False(t, sess.Delete("a"))

	assert.NoError(t, sess.Save(context.Background()))
	assert.Equal(t, 1, sess.Saves)
	assert.Equal(t, map[string]string{"b": "2"}, sess.Values())
}

func TestMemory_Renew(t *testing.T) {
	sess := NewMemory(map[string]string{"a": "1"})
	sess.Renew()
	assert.NoError(t, sess.Save(context.Background()))
	assert.Equal(t, 1, sess.Renews)
	assert.Equal(t, 1, sess.Saves)
	assert.Equal(t, map[string]string{"a": "1"}, sess.Values())
}

func TestMemory_SeedIsCopied(t *testing.T) {
	seed := map[string]string{"a": "1"}
	sess := NewMemory(seed)
	sess.Set("a", "2")
	assert.Equal(t, "1", seed["a"])
}

func TestGenerateToken(t *testing.T) {
	token, hash, err := GenerateToken()
	assert.NoError(t, err)
	assert.Len(t, token, TokenLength*2)
	assert.Equal(t, HashToken(token), hash)
	assert.NotEqual(t, token, hash)

	other, _, err := GenerateToken()
	assert.NoError(t, err)
	assert.NotEqual(t, token, other)
}
