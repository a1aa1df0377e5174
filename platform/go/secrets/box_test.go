package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("refresh-token-value")
	require.NoError(t, err)
	require.NotEqual(t, "refresh-token-value", sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-value", opened)
}

func TestSealProducesFreshNonce(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey())
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = box.Open(base64.StdEncoding.EncodeToString(raw))
	require.ErrorIs(t, err, ErrCiphertext)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey())
	require.NoError(t, err)
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	other := testKey()
	other[0] ^= 0xff
	otherBox, err := NewBox(other)
	require.NoError(t, err)

	_, err = otherBox.Open(sealed)
	require.ErrorIs(t, err, ErrCiphertext)
}

func TestNewBoxRejectsShortKey(t *testing.T) {
	t.Parallel()

	_, err := NewBox([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewBoxFromBase64(t *testing.T) {
	t.Parallel()

	encoded := base64.StdEncoding.EncodeToString(testKey())
	box, err := NewBoxFromBase64(encoded)
	require.NoError(t, err)

	sealed, err := box.Seal("x")
	require.NoError(t, err)
	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "x", opened)
}
