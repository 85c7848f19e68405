package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeychainRead(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("Claude Code-credentials", "alice", "secret-json"))

	b, _ := newTestBridge(t, "claude", Options{})

	secret, ok, err := b.Keychain.Read(bg, "Claude Code-credentials", "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secret-json", secret)

	_, ok, err = b.Keychain.Read(bg, "Claude Code-credentials", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeychainEmptyService(t *testing.T) {
	keyring.MockInit()
	b, _ := newTestBridge(t, "claude", Options{})

	_, _, err := b.Keychain.Read(bg, "", "alice")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
