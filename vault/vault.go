// Package vault implements the vault handle's state machine: on-disk
// initialization, opening by passphrase or by escrow, and the open file
// objects living underneath an open handle.
//
// A vault moves through four states. Absent and Initialized describe the
// vault directory itself, before any Go value exists: Absent means no
// metadata record is present, Initialized means one is. Init takes a
// directory from Absent to Initialized and returns no handle: key material
// is wiped again immediately after the metadata record is written. Open
// and OpenEKey take a directory from
// Initialized to Open, returning a live *Vault with K_e installed. Close
// takes that handle to Closed; a *Vault must not be used, or closed again,
// after that.
package vault

import (
	"context"
	"fmt"
	"os"

	"log/slog"

	"github.com/dpalmer/rvault/crypto"
	"github.com/dpalmer/rvault/fileobject"
	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/internal/uuid"
	"github.com/dpalmer/rvault/kdf"
	"github.com/dpalmer/rvault/metadata"
	"github.com/dpalmer/rvault/recovery"
	"github.com/dpalmer/rvault/vaulterr"
)

// State is the in-memory lifecycle state of a *Vault handle. It does not
// track Absent/Initialized: those describe the directory before any
// handle exists.
type State uint8

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Vault is a live handle onto an initialized vault directory: its cipher
// context, identity, and the file objects currently registered as open
// underneath it.
type Vault struct {
	basePath  string
	serverURL string
	uid       [16]byte
	cipher    crypto.ID
	crypto    *crypto.Context
	files     map[string]*FileHandle
	state     State
	logger    *slog.Logger
}

// UID returns the vault's client identifier.
func (v *Vault) UID() [16]byte { return v.uid }

// Cipher returns the vault's configured cipher suite.
func (v *Vault) Cipher() crypto.ID { return v.cipher }

// State reports whether the handle is still open.
func (v *Vault) State() State { return v.state }

// OpenFileCount reports how many file objects are currently registered as
// open under this handle.
func (v *Vault) OpenFileCount() int { return len(v.files) }

func checkBaseDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return vaulterr.Wrap(vaulterr.NotFound, "vault", err)
		}
		return vaulterr.Wrap(vaulterr.IoError, "vault", err)
	}
	if !info.IsDir() {
		return vaulterr.New(vaulterr.NotADirectory, "vault", dir)
	}
	return nil
}

// Init creates a new vault's on-disk metadata record under dir. uidHex is
// either a canonical UUID or a 32-character hex string identifying this
// client to the escrow server. It returns no handle: the effective key is
// derived, used to compute the metadata HMAC, and then wiped before Init
// returns: this call only ever transitions a directory from absent to
// initialized. Callers open the vault separately with Open or OpenEKey.
func Init(ctx context.Context, dir, passphrase, uidHex string, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}

	uid, err := uuid.ParseUID(uidHex)
	if err != nil {
		return vaulterr.Wrap(vaulterr.BadUid, "vault.Init", err)
	}

	cc, err := crypto.Create(s.cipher)
	if err != nil {
		return err
	}
	defer cc.Destroy()

	iv, err := cc.GenIV()
	if err != nil {
		return err
	}

	params, err := kdf.New(s.kdfProfile)
	if err != nil {
		return err
	}

	normalized := kdf.NormalizePassphrase(passphrase)
	if err := cc.SetPassphraseKey(normalized, params); err != nil {
		return err
	}
	util.WipeBytes(normalized)

	kdfBlob, err := params.Marshal()
	if err != nil {
		return err
	}

	if !s.flags.Has(metadata.FlagNOAUTH) {
		if s.serverURL == "" || s.client == nil {
			return vaulterr.New(vaulterr.MissingServer, "vault.Init", "escrow server URL and client are required unless FlagNOAUTH is set")
		}

		kp, err := cc.Key()
		if err != nil {
			return err
		}
		freshKe, err := util.RandomBytes(len(kp))
		if err != nil {
			util.WipeBytes(kp)
			return vaulterr.Wrap(vaulterr.RngFailure, "vault.Init", err)
		}
		ks, err := crypto.WrapEnvelope(kp, freshKe)
		util.WipeBytes(kp)
		if err != nil {
			util.WipeBytes(freshKe)
			return err
		}

		if err := s.client.Register(ctx, uid, s.authSetup, ks); err != nil {
			util.WipeBytes(freshKe)
			return vaulterr.Wrap(vaulterr.NetworkError, "vault.Init", err)
		}

		err = cc.SetKey(freshKe)
		util.WipeBytes(freshKe)
		if err != nil {
			return err
		}
	}

	ke, err := cc.Key()
	if err != nil {
		return err
	}
	defer util.WipeBytes(ke)

	hdr, err := metadata.NewHeader(s.cipher, s.flags, uid, iv, kdfBlob)
	if err != nil {
		return err
	}
	region, err := hdr.Region()
	if err != nil {
		return err
	}
	hmac := metadata.ComputeHMAC(ke, region)

	if err := metadata.Save(dir, region, hmac); err != nil {
		if vaulterr.Is(err, vaulterr.AlreadyExists) {
			s.logger.Error("vault init found an existing metadata record", "dir", dir)
		}
		return err
	}
	return nil
}

// Open loads a vault's on-disk metadata, derives K_p from passphrase, and
// (unless the vault is NOAUTH) contacts the escrow server to recover K_e,
// verifying the metadata HMAC before returning a live handle. A wrong
// passphrase and a corrupted metadata record are indistinguishable up to
// the HMAC check, and both surface as vaulterr.AuthenticationFailed there.
func Open(ctx context.Context, dir, passphrase string, opts ...Option) (*Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	if err := checkBaseDir(dir); err != nil {
		s.logger.Error("vault open rejected the base path", "dir", dir, "err", err)
		return nil, err
	}

	rec, err := metadata.Load(dir)
	if err != nil {
		if vaulterr.Is(err, vaulterr.CorruptMetadata) || vaulterr.Is(err, vaulterr.IncompatibleVersion) {
			s.logger.Error("vault open rejected the metadata record", "dir", dir, "err", err)
		}
		return nil, err
	}

	cc, err := crypto.Create(rec.Header.Cipher)
	if err != nil {
		return nil, err
	}
	if err := cc.SetIV(rec.Header.IV); err != nil {
		cc.Destroy()
		return nil, err
	}

	// The KDF-parameter block sits inside the HMAC-covered region, so a
	// tampered cost byte (e.g. N no longer a power of two) is exactly as
	// unrecoverable as a wrong passphrase: both look like garbage before
	// the HMAC even gets checked. Report it the same way rather than
	// leaking that this particular field was the one that looked wrong.
	params, err := kdf.Unmarshal(rec.Header.KDFParams)
	if err != nil {
		cc.Destroy()
		return nil, vaulterr.Wrap(vaulterr.AuthenticationFailed, "vault.Open", err)
	}

	normalized := kdf.NormalizePassphrase(passphrase)
	err = cc.SetPassphraseKey(normalized, params)
	util.WipeBytes(normalized)
	if err != nil {
		cc.Destroy()
		return nil, err
	}

	serverURL := s.serverURL
	if !rec.Header.Flags.Has(metadata.FlagNOAUTH) {
		if serverURL == "" || s.client == nil {
			cc.Destroy()
			return nil, vaulterr.New(vaulterr.MissingServer, "vault.Open", "escrow server URL and client are required unless the vault is NOAUTH")
		}

		kp, err := cc.Key()
		if err != nil {
			cc.Destroy()
			return nil, err
		}
		ks, err := s.client.Fetch(ctx, rec.Header.UID, s.totpToken)
		if err != nil {
			util.WipeBytes(kp)
			cc.Destroy()
			if vaulterr.Is(err, vaulterr.AuthFailed) || vaulterr.Is(err, vaulterr.NetworkError) {
				return nil, err
			}
			return nil, vaulterr.Wrap(vaulterr.NetworkError, "vault.Open", err)
		}

		ke, err := crypto.UnwrapEnvelope(kp, ks)
		util.WipeBytes(kp)
		if err != nil {
			cc.Destroy()
			return nil, err
		}
		err = cc.SetKey(ke)
		util.WipeBytes(ke)
		if err != nil {
			cc.Destroy()
			return nil, err
		}
	} else {
		serverURL = ""
	}

	ke, err := cc.Key()
	if err != nil {
		cc.Destroy()
		return nil, err
	}
	verifyErr := metadata.Verify(ke, rec)
	util.WipeBytes(ke)
	if verifyErr != nil {
		cc.Destroy()
		s.logger.Error("vault open failed HMAC verification", "dir", dir)
		return nil, verifyErr
	}

	return &Vault{
		basePath:  dir,
		serverURL: serverURL,
		uid:       rec.Header.UID,
		cipher:    rec.Header.Cipher,
		crypto:    cc,
		files:     make(map[string]*FileHandle),
		state:     StateOpen,
		logger:    s.logger,
	}, nil
}

// OpenEKey opens a vault directly from a recovery bundle, bypassing both
// the passphrase derivation and the escrow server entirely. The resulting
// handle's server URL is always empty: any operation this package added
// that requires the server must fail cleanly against a recovered handle,
// not silently contact it.
//
// Because the metadata HMAC is never checked on this path, a recovery
// bundle produced from stale or tampered metadata will not be detected
// here; that detection only happens once file objects are read or written
// under the recovered key.
func OpenEKey(ctx context.Context, dir string, bundle []byte) (*Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkBaseDir(dir); err != nil {
		return nil, err
	}

	b, err := recovery.Parse(bundle)
	if err != nil {
		return nil, err
	}

	rec, err := metadata.Parse(b.Metadata)
	if err != nil {
		return nil, err
	}

	cc, err := crypto.Create(rec.Header.Cipher)
	if err != nil {
		return nil, err
	}
	if err := cc.SetIV(rec.Header.IV); err != nil {
		cc.Destroy()
		return nil, err
	}
	keySize, err := rec.Header.Cipher.KeySize()
	if err != nil {
		cc.Destroy()
		return nil, err
	}
	if len(b.EKey) != keySize {
		cc.Destroy()
		return nil, vaulterr.New(vaulterr.BadKey, "vault.OpenEKey", "recovery key length does not match the cipher")
	}
	if err := cc.SetKey(b.EKey); err != nil {
		cc.Destroy()
		return nil, err
	}

	return &Vault{
		basePath: dir,
		uid:      rec.Header.UID,
		cipher:   rec.Header.Cipher,
		crypto:   cc,
		files:    make(map[string]*FileHandle),
		state:    StateOpen,
		logger:   defaultSettings().logger,
	}, nil
}

// Close drains the vault's open file objects and destroys its crypto
// context, wiping K_e. Callers must not close a *Vault twice or use it
// afterward.
func (v *Vault) Close() error {
	for name, fh := range v.files {
		fh.closed = true
		delete(v.files, name)
	}
	v.crypto.Destroy()
	v.state = StateClosed
	return nil
}

// FileHandle represents a file object registered as open under a vault
// handle. Reads and writes are whole-file and stateless underneath, so a
// FileHandle carries no buffered data of its own; it exists so the vault
// can track how many file objects are open and reject duplicate opens.
type FileHandle struct {
	vault  *Vault
	name   string
	closed bool
}

// Name returns the file object's name within the vault.
func (fh *FileHandle) Name() string { return fh.name }

// Read decrypts and returns this file object's plaintext.
func (fh *FileHandle) Read() ([]byte, error) {
	if fh.closed {
		return nil, vaulterr.New(vaulterr.BadKey, "vault.FileHandle.Read", "file handle already closed")
	}
	return fileobject.Read(fh.vault.crypto, fh.vault.basePath, fh.name)
}

// Write encrypts plaintext and replaces this file object's contents.
func (fh *FileHandle) Write(plaintext []byte) error {
	if fh.closed {
		return vaulterr.New(vaulterr.BadKey, "vault.FileHandle.Write", "file handle already closed")
	}
	return fileobject.Write(fh.vault.crypto, fh.vault.basePath, fh.name, plaintext)
}

// Close removes this handle from its vault's open-file list. It is safe to
// call more than once.
func (fh *FileHandle) Close() error {
	if !fh.closed {
		delete(fh.vault.files, fh.name)
		fh.closed = true
	}
	return nil
}

// OpenFile registers name as an open file object under v. name must not
// already be open, and must not be a reserved name (see
// fileobject.Hidden).
func (v *Vault) OpenFile(name string) (*FileHandle, error) {
	if v.state != StateOpen {
		return nil, vaulterr.New(vaulterr.BadKey, "vault.OpenFile", "vault is not open")
	}
	if fileobject.Hidden(name) {
		return nil, vaulterr.New(vaulterr.BadUid, "vault.OpenFile", fmt.Sprintf("%q is a reserved name", name))
	}
	if _, exists := v.files[name]; exists {
		return nil, vaulterr.New(vaulterr.AlreadyExists, "vault.OpenFile", fmt.Sprintf("%q is already open", name))
	}
	fh := &FileHandle{vault: v, name: name}
	v.files[name] = fh
	return fh, nil
}

// RemoveFile deletes the file object named name from the vault directory.
// It must not currently be open.
func (v *Vault) RemoveFile(name string) error {
	if _, open := v.files[name]; open {
		return vaulterr.New(vaulterr.AlreadyExists, "vault.RemoveFile", fmt.Sprintf("%q is currently open", name))
	}
	return fileobject.Remove(v.basePath, name)
}

// ExportRecovery builds a recovery bundle for this vault: its on-disk
// metadata record plus its raw effective key. Anyone holding the returned
// bytes can decrypt every file object in the vault without the passphrase
// or the escrow server, so callers must treat it with the same care as the
// key itself.
func (v *Vault) ExportRecovery() ([]byte, error) {
	rec, err := metadata.Load(v.basePath)
	if err != nil {
		return nil, err
	}
	ke, err := v.crypto.Key()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(ke)

	metaBytes := append(util.CopyBytes(rec.Region), rec.HMAC...)
	return recovery.Encode(&recovery.Bundle{Metadata: metaBytes, EKey: util.CopyBytes(ke)}), nil
}
