package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealOpenRoundTrip(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("access-token-value")
	require.NoError(t, err)
	require.NotEmpty(t, sealed)
	require.NotContains(t, string(sealed), "access-token-value")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "access-token-value", plain)
}

func TestSealEmptyIsAbsence(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("")
	require.NoError(t, err)
	require.Nil(t, sealed)

	plain, err := s.Open(nil)
	require.NoError(t, err)
	require.Empty(t, plain)
}

func TestOpenRejectsTamper(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open(sealed)
	require.Error(t, err)
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	_, err := NewSealer("not-hex")
	require.Error(t, err)

	_, err = NewSealer("abcd")
	require.Error(t, err)
}

func TestWrongKeyFails(t *testing.T) {
	a := newTestSealer(t)
	b := newTestSealer(t)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	require.Error(t, err)
}
