package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	key, err := RandBytes(KeyLen)
	require.NoError(t, err)
	c, err := NewCodec(key)
	require.NoError(t, err)

	ct, err := c.EncryptString("ya29.a0AfH6-secret")
	require.NoError(t, err)
	require.NotContains(t, string(ct), "secret")

	pt, err := c.DecryptString(ct)
	require.NoError(t, err)
	require.Equal(t, "ya29.a0AfH6-secret", pt)
}

func TestCodec_NonceUnique(t *testing.T) {
	key, _ := RandBytes(KeyLen)
	c, err := NewCodec(key)
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCodec_WrongKey(t *testing.T) {
	k1, _ := RandBytes(KeyLen)
	k2, _ := RandBytes(KeyLen)
	c1, err := NewCodec(k1)
	require.NoError(t, err)
	c2, err := NewCodec(k2)
	require.NoError(t, err)

	ct, err := c1.Encrypt([]byte("pw"))
	require.NoError(t, err)
	_, err = c2.Decrypt(ct)
	require.Error(t, err)
}

func TestCodec_BadKeyLen(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	require.Error(t, err)
}

func TestCodec_TruncatedCiphertext(t *testing.T) {
	key, _ := RandBytes(KeyLen)
	c, err := NewCodec(key)
	require.NoError(t, err)
	_, err = c.Decrypt([]byte{1, 2, 3})
	require.Error(t, err)
}
