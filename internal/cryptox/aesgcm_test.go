package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := Encrypt("server-secret", []byte("ghp_supersecrettoken"))
	require.NoError(t, err)
	require.NotContains(t, string(blob), "supersecrettoken")

	plain, err := Decrypt("server-secret", blob)
	require.NoError(t, err)
	require.Equal(t, "ghp_supersecrettoken", string(plain))
}

func TestDecryptFailsWithWrongSecret(t *testing.T) {
	blob, err := Encrypt("server-secret", []byte("payload"))
	require.NoError(t, err)

	_, err = Decrypt("different-secret", blob)
	require.Error(t, err)
}

func TestEncryptProducesDistinctCiphertextEachCall(t *testing.T) {
	a, err := Encrypt("secret", []byte("same plaintext"))
	require.NoError(t, err)
	b, err := Encrypt("secret", []byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptRejectsTruncatedBlob(t *testing.T) {
	_, err := Decrypt("secret", []byte("x"))
	require.Error(t, err)
}
