package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

func testKey() []byte {
	return make([]byte, chacha20poly1305.KeySize)
}

func TestNewCipher_RejectsMissingKey(t *testing.T) {
	_, err := NewCipher(nil)
	require.ErrorIs(t, err, ErrKeyMissing)
}

func TestNewCipher_RejectsWrongLength(t *testing.T) {
	_, err := NewCipher([]byte("too-short"))
	require.ErrorIs(t, err, ErrKeyLength)
}

func TestCipher_SealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal([]byte(`{"cookies":[]}`))
	require.NoError(t, err)
	require.NotEmpty(t, sealed)

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, `{"cookies":[]}`, string(opened))
}

func TestCipher_OpenRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("payload"))
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-1] ^= 0x01

	_, err = c.Open(string(tampered))
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCipher_OpenRejectsGarbage(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	_, err = c.Open("not-base64!!")
	require.ErrorIs(t, err, ErrDecryptFailed)
}
