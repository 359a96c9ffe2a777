package crypto

import (
	"github.com/awnumar/memguard"
	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/kdf"
	"github.com/dpalmer/rvault/vaulterr"
)

// Context is the crypto context described by the vault design: it is
// parameterized by a cipher identifier and holds an IV of that cipher's
// required length plus at most one active key at a time, the effective key
// K_e. K_e lives in a memguard enclave; Key opens it into a LockedBuffer,
// destroys that buffer before returning, and hands back a plain copy that
// the caller wipes after use.
type Context struct {
	cipher ID
	iv     []byte
	ke     *memguard.Enclave
}

// Create allocates a Context for the given cipher suite. It fails with
// vaulterr.UnsupportedCipher if the cipher is not one of the four known
// suites.
func Create(cipher ID) (*Context, error) {
	if !cipher.Valid() {
		return nil, vaulterr.New(vaulterr.UnsupportedCipher, "crypto.Create", "")
	}
	return &Context{cipher: cipher}, nil
}

// Cipher returns the suite this Context is configured for.
func (c *Context) Cipher() ID { return c.cipher }

// GenIV produces a fresh random IV of the cipher's required length,
// installs it, and returns a copy.
func (c *Context) GenIV() ([]byte, error) {
	size, err := c.cipher.IVSize()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.UnsupportedCipher, "crypto.GenIV", err)
	}
	iv, err := util.RandomBytes(size)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.RngFailure, "crypto.GenIV", err)
	}
	c.iv = iv
	return util.CopyBytes(iv), nil
}

// SetIV installs an IV read from storage. It fails with vaulterr.BadLength
// if iv's length does not match the cipher's required IV size.
func (c *Context) SetIV(iv []byte) error {
	size, err := c.cipher.IVSize()
	if err != nil {
		return vaulterr.Wrap(vaulterr.UnsupportedCipher, "crypto.SetIV", err)
	}
	if len(iv) != size {
		return vaulterr.New(vaulterr.BadLength, "crypto.SetIV", "")
	}
	c.iv = util.CopyBytes(iv)
	return nil
}

// IV returns a copy of the installed IV, or nil if none has been set.
func (c *Context) IV() []byte {
	if c.iv == nil {
		return nil
	}
	return util.CopyBytes(c.iv)
}

// SetPassphraseKey runs scrypt over passphrase using params and installs
// the derived key as the current K_e, for both encryption and HMAC use.
// It fails with vaulterr.KdfFailure if derivation itself fails.
//
// If a caller later installs a key by SetKey, that call wins; the two
// setters share one enclave slot and simply overwrite it.
func (c *Context) SetPassphraseKey(passphrase []byte, params *kdf.Params) error {
	derived, err := params.Derive(passphrase)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KdfFailure, "crypto.SetPassphraseKey", err)
	}
	defer util.WipeBytes(derived)
	size, err := c.cipher.KeySize()
	if err != nil {
		return vaulterr.Wrap(vaulterr.UnsupportedCipher, "crypto.SetPassphraseKey", err)
	}
	if len(derived) < size {
		return vaulterr.New(vaulterr.KdfFailure, "crypto.SetPassphraseKey", "derived key shorter than cipher requires")
	}
	c.ke = memguard.NewEnclave(util.CopyBytes(derived[:size]))
	return nil
}

// SetKey installs raw as K_e directly, used by recovery. It fails with
// vaulterr.BadLength if raw's length does not match the cipher's key size.
func (c *Context) SetKey(raw []byte) error {
	size, err := c.cipher.KeySize()
	if err != nil {
		return vaulterr.Wrap(vaulterr.UnsupportedCipher, "crypto.SetKey", err)
	}
	if len(raw) != size {
		return vaulterr.New(vaulterr.BadLength, "crypto.SetKey", "")
	}
	c.ke = memguard.NewEnclave(util.CopyBytes(raw))
	return nil
}

// Key returns a plaintext copy of K_e, used by the metadata HMAC routine
// and by encryption. The caller owns the returned slice and must
// util.WipeBytes it as soon as it is no longer needed.
func (c *Context) Key() ([]byte, error) {
	if c.ke == nil {
		return nil, vaulterr.New(vaulterr.BadKey, "crypto.Key", "no key installed")
	}
	buf, err := c.ke.Open()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.OutOfMemory, "crypto.Key", err)
	}
	defer buf.Destroy()
	return util.CopyBytes(buf.Bytes()), nil
}

// Seal encrypts plaintext under K_e using this Context's cipher suite,
// binding aad as associated data. See the package-level Seal for the wire
// format.
func (c *Context) Seal(plaintext, aad []byte) ([]byte, error) {
	key, err := c.Key()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)
	return Seal(c.cipher, key, plaintext, aad)
}

// Open decrypts a blob produced by Seal (or Context.Seal).
func (c *Context) Open(blob, aad []byte) ([]byte, error) {
	key, err := c.Key()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)
	return Open(c.cipher, key, blob, aad)
}

// FileKey derives an independent per-file key from K_e, the installed IV,
// and name, via HKDF. Each file in the vault therefore encrypts under its
// own key even though every file shares one K_e and one stored IV; this is
// a deliberate strengthening of the literal single-IV-reuse scheme (see
// DESIGN.md).
func (c *Context) FileKey(name string) ([]byte, error) {
	key, err := c.Key()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	size, err := c.cipher.KeySize()
	if err != nil {
		return nil, err
	}
	derived, err := util.HKDF(key, c.iv, []byte(name))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KdfFailure, "crypto.FileKey", err)
	}
	if len(derived) < size {
		return nil, vaulterr.New(vaulterr.KdfFailure, "crypto.FileKey", "derived key shorter than cipher requires")
	}
	return derived[:size], nil
}

// Destroy releases K_e and wipes the installed IV. The enclave already
// keeps K_e encrypted at rest; dropping the reference lets it be
// collected. Key destroys its own LockedBuffer before returning, and the
// plain copies it returns are wiped by their callers. The Context must not
// be used afterward.
func (c *Context) Destroy() {
	c.ke = nil
	util.WipeBytes(c.iv)
}
