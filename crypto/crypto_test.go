package crypto

import (
	"testing"

	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/kdf"
	"github.com/dpalmer/rvault/vaulterr"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTripAllCiphers(t *testing.T) {
	for _, cipher := range []ID{AES256CBC, ChaCha20, AES256GCM, ChaCha20Poly1305} {
		t.Run(cipher.String(), func(t *testing.T) {
			size, err := cipher.KeySize()
			require.NoError(t, err)
			key, err := util.RandomBytes(size)
			require.NoError(t, err)

			plaintext := []byte("the quick brown fox jumps over the lazy dog")
			aad := []byte("file:secrets.txt")

			blob, err := Seal(cipher, key, plaintext, aad)
			require.NoError(t, err)
			require.NotEqual(t, plaintext, blob)

			got, err := Open(cipher, key, blob, aad)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	for _, cipher := range []ID{AES256CBC, ChaCha20, AES256GCM, ChaCha20Poly1305} {
		t.Run(cipher.String(), func(t *testing.T) {
			size, err := cipher.KeySize()
			require.NoError(t, err)
			key, err := util.RandomBytes(size)
			require.NoError(t, err)

			blob, err := Seal(cipher, key, []byte("secret payload"), nil)
			require.NoError(t, err)
			blob[len(blob)-1] ^= 0xFF

			_, err = Open(cipher, key, blob, nil)
			require.Error(t, err)
		})
	}
}

func TestOpenRejectsMismatchedAAD(t *testing.T) {
	key, err := util.RandomBytes(util.ChaCha20Poly1305KeySize)
	require.NoError(t, err)

	blob, err := Seal(ChaCha20Poly1305, key, []byte("secret"), []byte("aad-one"))
	require.NoError(t, err)

	_, err = Open(ChaCha20Poly1305, key, blob, []byte("aad-two"))
	require.Error(t, err)
}

func newTestContext(t *testing.T, cipher ID) *Context {
	t.Helper()
	ctx, err := Create(cipher)
	require.NoError(t, err)
	_, err = ctx.GenIV()
	require.NoError(t, err)
	params, err := kdf.New(kdf.ProfileInteractive)
	require.NoError(t, err)
	require.NoError(t, ctx.SetPassphraseKey([]byte("hunter2"), params))
	return ctx
}

func TestContextSealOpenRoundTrip(t *testing.T) {
	ctx := newTestContext(t, ChaCha20Poly1305)
	defer ctx.Destroy()

	blob, err := ctx.Seal([]byte("payload"), []byte("aad"))
	require.NoError(t, err)

	got, err := ctx.Open(blob, []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestSetKeyOverridesPassphraseKey(t *testing.T) {
	ctx := newTestContext(t, AES256GCM)
	defer ctx.Destroy()

	before, err := ctx.Key()
	require.NoError(t, err)
	defer util.WipeBytes(before)

	raw, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	require.NoError(t, ctx.SetKey(raw))

	after, err := ctx.Key()
	require.NoError(t, err)
	defer util.WipeBytes(after)

	require.NotEqual(t, before, after)
	require.Equal(t, raw, after)
}

func TestSetKeyRejectsBadLength(t *testing.T) {
	ctx, err := Create(AES256GCM)
	require.NoError(t, err)
	err = ctx.SetKey([]byte("too short"))
	require.True(t, vaulterr.Is(err, vaulterr.BadLength))
}

func TestSetIVRejectsBadLength(t *testing.T) {
	ctx, err := Create(AES256CBC)
	require.NoError(t, err)
	err = ctx.SetIV([]byte{1, 2, 3})
	require.True(t, vaulterr.Is(err, vaulterr.BadLength))
}

func TestGenIVProducesCipherLength(t *testing.T) {
	ctx, err := Create(AES256CBC)
	require.NoError(t, err)
	iv, err := ctx.GenIV()
	require.NoError(t, err)
	require.Len(t, iv, util.AESCBCIVSize)
}

func TestKeyBeforeInstallFails(t *testing.T) {
	ctx, err := Create(ChaCha20Poly1305)
	require.NoError(t, err)
	_, err = ctx.Key()
	require.True(t, vaulterr.Is(err, vaulterr.BadKey))
}

func TestFileKeyIsStablePerNameAndDistinctAcrossNames(t *testing.T) {
	ctx := newTestContext(t, AES256GCM)
	defer ctx.Destroy()

	k1, err := ctx.FileKey("secrets/one.txt")
	require.NoError(t, err)
	k1b, err := ctx.FileKey("secrets/one.txt")
	require.NoError(t, err)
	require.Equal(t, k1, k1b)

	k2, err := ctx.FileKey("secrets/two.txt")
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestCreateRejectsUnknownCipher(t *testing.T) {
	_, err := Create(ID(0xEE))
	require.True(t, vaulterr.Is(err, vaulterr.UnsupportedCipher))
}

func TestCipherIsAEAD(t *testing.T) {
	require.False(t, AES256CBC.IsAEAD())
	require.False(t, ChaCha20.IsAEAD())
	require.True(t, AES256GCM.IsAEAD())
	require.True(t, ChaCha20Poly1305.IsAEAD())
}
