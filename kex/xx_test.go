package kex

import (
	"testing"

	"github.com/opd-ai/channelmgr/vault/memvault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXXHandshakeEndToEnd(t *testing.T) {
	v := memvault.New()
	factory := &XXFactory{Vault: v}

	aliceStatic, err := v.NewSecretKey()
	require.NoError(t, err)
	bobStatic, err := v.NewSecretKey()
	require.NoError(t, err)

	alicePub, err := v.PublicKey(aliceStatic)
	require.NoError(t, err)
	bobPub, err := v.PublicKey(bobStatic)
	require.NoError(t, err)

	alice, err := factory.Initiator(aliceStatic)
	require.NoError(t, err)
	bob, err := factory.Responder(bobStatic)
	require.NoError(t, err)

	// Message 1: Initiator -> Responder.
	m1, err := alice.Process(nil)
	require.NoError(t, err)
	require.False(t, alice.IsComplete())

	// Message 2: Responder -> Initiator.
	m2, err := bob.Process(m1)
	require.NoError(t, err)
	require.False(t, bob.IsComplete())

	// Message 3: Initiator -> Responder, Initiator completes.
	m3, err := alice.Process(m2)
	require.NoError(t, err)
	require.True(t, alice.IsComplete())

	// Responder consumes message 3 and completes with nothing to send.
	m4, err := bob.Process(m3)
	require.NoError(t, err)
	require.True(t, bob.IsComplete())
	assert.Empty(t, m4)

	aliceResult, err := alice.Finalize()
	require.NoError(t, err)
	bobResult, err := bob.Finalize()
	require.NoError(t, err)

	assert.Equal(t, aliceResult.H, bobResult.H)
	assert.Equal(t, bobPub, aliceResult.RemoteStaticPublicKey)
	assert.Equal(t, alicePub, bobResult.RemoteStaticPublicKey)

	// The two sides hold distinct key handles, so assert the relationship
	// through behavior: what Alice encrypts with
	// her EncryptKey, Bob must be able to decrypt with his DecryptKey.
	var nonce [12]byte
	aad := aliceResult.H[:]
	plaintext := []byte("hello across the channel")

	ciphertext, err := v.AEADEncrypt(aliceResult.EncryptKey, nonce, aad, plaintext)
	require.NoError(t, err)

	decrypted, err := v.AEADDecrypt(bobResult.DecryptKey, nonce, bobResult.H[:], ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	// And the reverse direction.
	ciphertext2, err := v.AEADEncrypt(bobResult.EncryptKey, nonce, bobResult.H[:], []byte("reply"))
	require.NoError(t, err)
	decrypted2, err := v.AEADDecrypt(aliceResult.DecryptKey, nonce, aliceResult.H[:], ciphertext2)
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), decrypted2)
}

func TestFinalizeBeforeCompleteFails(t *testing.T) {
	v := memvault.New()
	factory := &XXFactory{Vault: v}

	aliceStatic, err := v.NewSecretKey()
	require.NoError(t, err)

	alice, err := factory.Initiator(aliceStatic)
	require.NoError(t, err)

	_, err = alice.Finalize()
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestProcessAfterCompleteFails(t *testing.T) {
	v := memvault.New()
	factory := &XXFactory{Vault: v}

	aliceStatic, err := v.NewSecretKey()
	require.NoError(t, err)
	bobStatic, err := v.NewSecretKey()
	require.NoError(t, err)

	alice, err := factory.Initiator(aliceStatic)
	require.NoError(t, err)
	bob, err := factory.Responder(bobStatic)
	require.NoError(t, err)

	m1, err := alice.Process(nil)
	require.NoError(t, err)
	m2, err := bob.Process(m1)
	require.NoError(t, err)
	m3, err := alice.Process(m2)
	require.NoError(t, err)
	_, err = bob.Process(m3)
	require.NoError(t, err)

	_, err = alice.Process(nil)
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}
