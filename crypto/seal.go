package crypto

import (
	"fmt"

	"github.com/dpalmer/rvault/internal/util"
)

// macInfo is the fixed HKDF info string used to derive the encrypt-then-MAC
// authentication key from a cipher's data key. Using a derived subkey
// rather than the data key itself keeps the encryption and authentication
// keys independent, per standard encrypt-then-MAC practice.
var macInfo = []byte("rvault-etm-mac-v1")

func macKey(key []byte) ([]byte, error) {
	return util.HKDF(key, nil, macInfo)
}

// Seal encrypts plaintext under the given cipher suite and key, binding aad
// as associated data, and returns a single self-contained blob: any
// per-message nonce/IV the suite needs, followed by ciphertext, followed by
// an authentication tag. AEAD suites authenticate internally; non-AEAD
// suites are wrapped in encrypt-then-MAC using HMAC-SHA3-256 under a key
// derived from key.
func Seal(cipher ID, key, plaintext, aad []byte) ([]byte, error) {
	size, err := cipher.KeySize()
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("crypto: key is %d bytes, want %d for %s", len(key), size, cipher)
	}

	switch cipher {
	case AES256GCM:
		return util.EncryptAESWithAAD(plaintext, key, aad)
	case ChaCha20Poly1305:
		return util.EncryptChaCha20Poly1305WithAAD(plaintext, key, aad)
	case AES256CBC:
		iv, err := util.RandomBytes(util.AESCBCIVSize)
		if err != nil {
			return nil, err
		}
		ct, err := util.EncryptAESCBC(plaintext, key, iv)
		if err != nil {
			return nil, err
		}
		return sealETM(key, iv, ct, aad)
	case ChaCha20:
		nonce, err := util.RandomBytes(util.ChaCha20NonceSize)
		if err != nil {
			return nil, err
		}
		ct, err := util.EncryptChaCha20(plaintext, key, nonce)
		if err != nil {
			return nil, err
		}
		return sealETM(key, nonce, ct, aad)
	default:
		return nil, fmt.Errorf("crypto: unsupported cipher id %d", uint8(cipher))
	}
}

// Open reverses Seal.
func Open(cipher ID, key, blob, aad []byte) ([]byte, error) {
	size, err := cipher.KeySize()
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("crypto: key is %d bytes, want %d for %s", len(key), size, cipher)
	}

	switch cipher {
	case AES256GCM:
		return util.DecryptAESWithAAD(blob, key, aad)
	case ChaCha20Poly1305:
		return util.DecryptChaCha20Poly1305WithAAD(blob, key, aad)
	case AES256CBC:
		nonce, ct, err := openETM(key, blob, aad, util.AESCBCIVSize)
		if err != nil {
			return nil, err
		}
		return util.DecryptAESCBC(ct, key, nonce)
	case ChaCha20:
		nonce, ct, err := openETM(key, blob, aad, util.ChaCha20NonceSize)
		if err != nil {
			return nil, err
		}
		return util.DecryptChaCha20(ct, key, nonce)
	default:
		return nil, fmt.Errorf("crypto: unsupported cipher id %d", uint8(cipher))
	}
}

func sealETM(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	mk, err := macKey(key)
	if err != nil {
		return nil, fmt.Errorf("deriving MAC key: %w", err)
	}
	defer util.WipeBytes(mk)

	mac := util.HMACSHA3256(mk, append(append(util.CopyBytes(nonce), ciphertext...), aad...))

	out := make([]byte, 0, len(nonce)+len(ciphertext)+len(mac))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return out, nil
}

func openETM(key, blob, aad []byte, nonceLen int) (nonce, ciphertext []byte, err error) {
	if len(blob) < nonceLen+util.HMACSHA3Size {
		return nil, nil, fmt.Errorf("crypto: ciphertext too short")
	}
	nonce = blob[:nonceLen]
	ciphertext = blob[nonceLen : len(blob)-util.HMACSHA3Size]
	tag := blob[len(blob)-util.HMACSHA3Size:]

	mk, err := macKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("deriving MAC key: %w", err)
	}
	defer util.WipeBytes(mk)

	want := util.HMACSHA3256(mk, append(append(util.CopyBytes(nonce), ciphertext...), aad...))
	if !util.ConstantTimeCompare(want, tag) {
		return nil, nil, fmt.Errorf("crypto: authentication failed")
	}
	return nonce, ciphertext, nil
}
