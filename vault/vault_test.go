package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dpalmer/rvault/escrow"
	"github.com/dpalmer/rvault/internal/uuid"
	"github.com/dpalmer/rvault/metadata"
	"github.com/dpalmer/rvault/recovery"
	"github.com/dpalmer/rvault/vaulterr"
	"github.com/stretchr/testify/require"
)

// fakeEscrowClient is an in-memory stand-in for the escrow server contract,
// used so these tests never touch the network.
type fakeEscrowClient struct {
	mu      sync.Mutex
	entries map[[16]byte][]byte
	denyAll bool
}

func newFakeEscrowClient() *fakeEscrowClient {
	return &fakeEscrowClient{entries: make(map[[16]byte][]byte)}
}

func (f *fakeEscrowClient) Register(ctx context.Context, uid [16]byte, setup escrow.AuthSetup, ks []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[uid] = append([]byte(nil), ks...)
	return nil
}

func (f *fakeEscrowClient) Fetch(ctx context.Context, uid [16]byte, totpToken string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyAll {
		return nil, vaulterr.New(vaulterr.AuthFailed, "fakeEscrowClient.Fetch", "denied")
	}
	ks, ok := f.entries[uid]
	if !ok {
		return nil, vaulterr.New(vaulterr.AuthFailed, "fakeEscrowClient.Fetch", "unknown uid")
	}
	return ks, nil
}

func testUID() string { return uuid.New() }

func TestInitOpenRoundTripNoAuth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "correct horse battery staple", testUID(),
		WithFlags(metadata.FlagNOAUTH)))

	v, err := Open(context.Background(), dir, "correct horse battery staple")
	require.NoError(t, err)
	defer v.Close()

	fh, err := v.OpenFile("secret.txt")
	require.NoError(t, err)
	require.NoError(t, fh.Write([]byte("hello vault")))

	plain, err := fh.Read()
	require.NoError(t, err)
	require.Equal(t, "hello vault", string(plain))
	require.NoError(t, fh.Close())
}

func TestInitOpenRoundTripWithEscrow(t *testing.T) {
	dir := t.TempDir()
	client := newFakeEscrowClient()
	uid := testUID()

	require.NoError(t, Init(context.Background(), dir, "hunter2", uid,
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithAuthSetup(escrow.AuthSetup{TOTPSecret: "JBSWY3DPEHPK3PXP"})))

	v, err := Open(context.Background(), dir, "hunter2",
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithTOTPToken("123456"))
	require.NoError(t, err)
	defer v.Close()

	fh, err := v.OpenFile("a")
	require.NoError(t, err)
	require.NoError(t, fh.Write([]byte("payload")))
	got, err := fh.Read()
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "right-passphrase", testUID(),
		WithFlags(metadata.FlagNOAUTH)))

	_, err := Open(context.Background(), dir, "wrong-passphrase")
	require.True(t, vaulterr.Is(err, vaulterr.AuthenticationFailed), "got %v", err)
}

func TestOpenEscrowAuthFails(t *testing.T) {
	dir := t.TempDir()
	client := newFakeEscrowClient()
	uid := testUID()
	require.NoError(t, Init(context.Background(), dir, "pw", uid,
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithAuthSetup(escrow.AuthSetup{TOTPSecret: "SECRET"})))

	client.denyAll = true
	_, err := Open(context.Background(), dir, "pw",
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithTOTPToken("000000"))
	require.Error(t, err)
}

func TestOpenDetectsTamperedMetadataHMACRegion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(),
		WithFlags(metadata.FlagNOAUTH)))

	path := metadata.Path(dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip a byte well inside the aligned header, away from the version
	// byte, so the tamper is only caught by HMAC verification.
	data[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = Open(context.Background(), dir, "pw")
	require.True(t, vaulterr.Is(err, vaulterr.AuthenticationFailed), "got %v", err)
}

func TestOpenRejectsIncompatibleVersionBeforeCryptoWork(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(),
		WithFlags(metadata.FlagNOAUTH)))

	path := metadata.Path(dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 0xFE
	require.NoError(t, os.WriteFile(path, data, 0o600))

	// A deliberately wrong passphrase would normally surface as
	// AuthenticationFailed; the version check must win regardless.
	_, err = Open(context.Background(), dir, "totally wrong passphrase too")
	require.True(t, vaulterr.Is(err, vaulterr.IncompatibleVersion), "got %v", err)
}

func TestInitFailsIfAlreadyInitialized(t *testing.T) {
	dir := t.TempDir()
	uid := testUID()
	require.NoError(t, Init(context.Background(), dir, "pw", uid, WithFlags(metadata.FlagNOAUTH)))

	before, err := os.ReadFile(metadata.Path(dir))
	require.NoError(t, err)

	err = Init(context.Background(), dir, "different-pw", uid, WithFlags(metadata.FlagNOAUTH))
	require.True(t, vaulterr.Is(err, vaulterr.AlreadyExists), "got %v", err)

	after, err := os.ReadFile(metadata.Path(dir))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestInitRequiresServerUnlessNoAuth(t *testing.T) {
	dir := t.TempDir()
	err := Init(context.Background(), dir, "pw", testUID())
	require.True(t, vaulterr.Is(err, vaulterr.MissingServer), "got %v", err)
}

func TestOpenRequiresServerUnlessNoAuth(t *testing.T) {
	dir := t.TempDir()
	client := newFakeEscrowClient()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(),
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client)))

	_, err := Open(context.Background(), dir, "pw")
	require.True(t, vaulterr.Is(err, vaulterr.MissingServer), "got %v", err)
}

func TestOpenEKeyBypassesServerAndHMAC(t *testing.T) {
	dir := t.TempDir()
	client := newFakeEscrowClient()
	uid := testUID()
	require.NoError(t, Init(context.Background(), dir, "pw", uid,
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithAuthSetup(escrow.AuthSetup{TOTPSecret: "SECRET"})))

	v, err := Open(context.Background(), dir, "pw",
		WithServerURL("https://escrow.example.com"),
		WithEscrowClient(client),
		WithTOTPToken("123456"))
	require.NoError(t, err)
	bundle, err := v.ExportRecovery()
	require.NoError(t, err)
	require.NoError(t, v.Close())

	recovered, err := OpenEKey(context.Background(), dir, bundle)
	require.NoError(t, err)
	require.Equal(t, "", recovered.serverURL)

	fh, err := recovered.OpenFile("via-recovery")
	require.NoError(t, err)
	require.NoError(t, fh.Write([]byte("recovered data")))
	got, err := fh.Read()
	require.NoError(t, err)
	require.Equal(t, "recovered data", string(got))
	require.NoError(t, recovered.Close())
}

func TestOpenEKeyRejectsGarbageBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(), WithFlags(metadata.FlagNOAUTH)))

	_, err := OpenEKey(context.Background(), dir, []byte("not a bundle"))
	require.True(t, vaulterr.Is(err, vaulterr.BadRecovery), "got %v", err)
}

func TestOpenEKeyRejectsWrongLengthKey(t *testing.T) {
	dir := t.TempDir()
	uid := testUID()
	require.NoError(t, Init(context.Background(), dir, "pw", uid, WithFlags(metadata.FlagNOAUTH)))

	v, err := Open(context.Background(), dir, "pw")
	require.NoError(t, err)
	bundle, err := v.ExportRecovery()
	require.NoError(t, err)
	require.NoError(t, v.Close())

	b, err := recovery.Parse(bundle)
	require.NoError(t, err)
	b.EKey = b.EKey[:len(b.EKey)-1]
	truncated := recovery.Encode(b)

	_, err = OpenEKey(context.Background(), dir, truncated)
	require.True(t, vaulterr.Is(err, vaulterr.BadKey), "got %v", err)
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), "pw")
	require.True(t, vaulterr.Is(err, vaulterr.NotFound), "got %v", err)
}

func TestOpenNotADirectory(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "afile")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o600))

	_, err := Open(context.Background(), filePath, "pw")
	require.True(t, vaulterr.Is(err, vaulterr.NotADirectory), "got %v", err)
}

func TestCloseWipesKeyMaterial(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(), WithFlags(metadata.FlagNOAUTH)))
	v, err := Open(context.Background(), dir, "pw")
	require.NoError(t, err)
	require.NoError(t, v.Close())

	_, err = v.crypto.Key()
	require.True(t, vaulterr.Is(err, vaulterr.BadKey), "got %v", err)
}

func TestOpenFileRejectsDuplicateAndReservedNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(), WithFlags(metadata.FlagNOAUTH)))
	v, err := Open(context.Background(), dir, "pw")
	require.NoError(t, err)
	defer v.Close()

	fh, err := v.OpenFile("dup")
	require.NoError(t, err)
	defer fh.Close()

	_, err = v.OpenFile("dup")
	require.True(t, vaulterr.Is(err, vaulterr.AlreadyExists), "got %v", err)

	_, err = v.OpenFile(metadata.FileName)
	require.Error(t, err)
}

func TestVaultCloseDrainsOpenFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(context.Background(), dir, "pw", testUID(), WithFlags(metadata.FlagNOAUTH)))
	v, err := Open(context.Background(), dir, "pw")
	require.NoError(t, err)

	_, err = v.OpenFile("one")
	require.NoError(t, err)
	_, err = v.OpenFile("two")
	require.NoError(t, err)
	require.Equal(t, 2, v.OpenFileCount())

	require.NoError(t, v.Close())
	require.Equal(t, 0, v.OpenFileCount())
	require.Equal(t, StateClosed, v.State())
}
