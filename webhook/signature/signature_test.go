package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Run("success - 256 bit hex key", func(t *testing.T) {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, secret, SecretBytes*2)
	})

	t.Run("randomness - generates different secrets", func(t *testing.T) {
		secret1, err1 := GenerateSecret()
		secret2, err2 := GenerateSecret()
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, secret1, secret2)
	})
}

func TestSign(t *testing.T) {
	t.Run("success - known vector", func(t *testing.T) {
		// RFC 4231 test case 2
		sig := Sign("Jefe", []byte("what do ya want for nothing?"))
		assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)
	})

	t.Run("deterministic", func(t *testing.T) {
		payload := []byte(`{"event":"order.paid"}`)
		assert.Equal(t, Sign("k", payload), Sign("k", payload))
	})
}

func TestVerify(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	payload := []byte(`{"amount":10,"id":"ord_1"}`)
	sig := Sign(secret, payload)

	t.Run("success - round trip", func(t *testing.T) {
		assert.True(t, Verify(secret, payload, sig))
	})

	t.Run("success - sha256 prefix", func(t *testing.T) {
		assert.True(t, Verify(secret, payload, "sha256="+sig))
	})

	t.Run("fails - other secret", func(t *testing.T) {
		other, err := GenerateSecret()
		require.NoError(t, err)
		assert.False(t, Verify(other, payload, sig))
	})

	t.Run("fails - tampered payload", func(t *testing.T) {
		assert.False(t, Verify(secret, []byte(`{"amount":11,"id":"ord_1"}`), sig))
	})

	t.Run("fails - malformed signature", func(t *testing.T) {
		assert.False(t, Verify(secret, payload, "not-hex"))
		assert.False(t, Verify(secret, payload, ""))
	})
}
