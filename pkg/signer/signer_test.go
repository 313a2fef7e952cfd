package signer_test

import (
	"bytes"
	"testing"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seed = bytes.Repeat([]byte{7}, 32)

func keyring(t *testing.T) *signer.Keyring {
	t.Helper()
	k, err := signer.NewKeyring(t.TempDir())
	require.NoError(t, err)
	return k.WithScryptN(1 << 10)
}

func TestKeyring_AddUnlockSign(t *testing.T) {
	k := keyring(t)
	require.NoError(t, k.Add("5Alice", "Alice", seed, "hunter2"))

	s, err := k.Unlock("5Alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "5Alice", s.Address())

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)

	ed := s.(*signer.Ed25519Signer)
	ok, err := signer.Verify(ed.PublicKey(), []byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = signer.Verify(ed.PublicKey(), []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyring_WrongPassword(t *testing.T) {
	k := keyring(t)
	require.NoError(t, k.Add("5Alice", "Alice", seed, "hunter2"))

	_, err := k.Unlock("5Alice", "nope")
	assert.ErrorIs(t, err, signer.ErrAuth)
}

func TestKeyring_Lookup(t *testing.T) {
	k := keyring(t)
	require.NoError(t, k.Add("5Bob", "Bob", seed, "pw"))
	require.NoError(t, k.Add("5Alice", "Alice", seed, "pw"))

	assert.ErrorIs(t, k.Add("5Bob", "Bob", seed, "pw"), signer.ErrExists)

	name, err := k.Name("5Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	_, err = k.Unlock("5Carol", "pw")
	assert.ErrorIs(t, err, signer.ErrNotFound)

	accounts, err := k.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []chain.Account{{Address: "5Alice", Name: "Alice"}, {Address: "5Bob", Name: "Bob"}}, accounts)
}

func TestKeyring_RejectsBadSeed(t *testing.T) {
	k := keyring(t)
	assert.Error(t, k.Add("5Alice", "Alice", []byte("short"), "pw"))
}

func TestSignerSatisfiesChainSigner(t *testing.T) {
	s, err := signer.NewEd25519Signer("5A", seed)
	require.NoError(t, err)
	var _ chain.Signer = s
}
