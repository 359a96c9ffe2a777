package kdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGeneratesDistinctSalts(t *testing.T) {
	a, err := New(ProfileInteractive)
	require.NoError(t, err)
	b, err := New(ProfileInteractive)
	require.NoError(t, err)
	require.NotEqual(t, a.Salt, b.Salt)
	require.NoError(t, a.Validate())
	require.NoError(t, b.Validate())
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p, err := New(ProfileModerate)
	require.NoError(t, err)

	blob, err := p.Marshal()
	require.NoError(t, err)
	require.LessOrEqual(t, len(blob), MaxParamsLen)

	got, err := Unmarshal(blob)
	require.NoError(t, err)
	require.Equal(t, p.N, got.N)
	require.Equal(t, p.R, got.R)
	require.Equal(t, p.P, got.P)
	require.Equal(t, p.Salt, got.Salt)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	p, err := New(ProfileInteractive)
	require.NoError(t, err)
	blob, err := p.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(blob[:len(blob)-1])
	require.Error(t, err)
}

func TestUnmarshalRejectsBadVersion(t *testing.T) {
	p, err := New(ProfileInteractive)
	require.NoError(t, err)
	blob, err := p.Marshal()
	require.NoError(t, err)
	blob[0] = 0xFF

	_, err = Unmarshal(blob)
	require.Error(t, err)
}

func TestDeriveIsDeterministic(t *testing.T) {
	p, err := New(ProfileInteractive)
	require.NoError(t, err)

	k1, err := p.Derive([]byte("correct horse battery staple"))
	require.NoError(t, err)
	k2, err := p.Derive([]byte("correct horse battery staple"))
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, derivedKeyLen)
}

func TestDeriveDiffersByPassphrase(t *testing.T) {
	p, err := New(ProfileInteractive)
	require.NoError(t, err)

	k1, err := p.Derive([]byte("passphrase one"))
	require.NoError(t, err)
	k2, err := p.Derive([]byte("passphrase two"))
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestValidateRejectsNonPowerOfTwoN(t *testing.T) {
	p := &Params{N: 100, R: 8, P: 1, Salt: []byte("salt")}
	require.Error(t, p.Validate())
}

func TestValidateRejectsEmptySalt(t *testing.T) {
	p := &Params{N: 16384, R: 8, P: 1}
	require.Error(t, p.Validate())
}
