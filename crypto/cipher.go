package crypto

import (
	"fmt"

	"github.com/dpalmer/rvault/internal/util"
)

// ID identifies one of the vault's supported cipher suites. It is stored
// verbatim as the metadata header's cipher byte, so the numeric values are
// part of the on-disk format and must never be renumbered.
type ID uint8

const (
	// AES256CBC pairs AES-256 in CBC mode with a separate HMAC-SHA3-256 tag
	// (encrypt-then-MAC); it does not authenticate on its own.
	AES256CBC ID = iota + 1
	// ChaCha20 pairs the raw ChaCha20 stream cipher with a separate
	// HMAC-SHA3-256 tag, for the same reason as AES256CBC.
	ChaCha20
	// AES256GCM is self-authenticating.
	AES256GCM
	// ChaCha20Poly1305 is self-authenticating.
	ChaCha20Poly1305
)

func (c ID) String() string {
	switch c {
	case AES256CBC:
		return "aes-256-cbc"
	case ChaCha20:
		return "chacha20"
	case AES256GCM:
		return "aes-256-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

// IsAEAD reports whether the suite authenticates internally. Non-AEAD
// suites are wrapped in encrypt-then-MAC by this package's Seal/Open.
func (c ID) IsAEAD() bool {
	return c == AES256GCM || c == ChaCha20Poly1305
}

// KeySize returns the raw key length the suite requires. Every suite
// currently uses a 32-byte key, which is what makes a single scrypt-derived
// or randomly generated 32-byte key usable across all four.
func (c ID) KeySize() (int, error) {
	switch c {
	case AES256CBC:
		return util.AESKeySize, nil
	case ChaCha20:
		return util.ChaCha20KeySize, nil
	case AES256GCM:
		return util.AESKeySize, nil
	case ChaCha20Poly1305:
		return util.ChaCha20Poly1305KeySize, nil
	default:
		return 0, fmt.Errorf("unknown cipher id %d", uint8(c))
	}
}

// IVSize returns the length of the IV/nonce the suite consumes directly:
// the AES-CBC block size for AES256CBC, or the stream/AEAD nonce size for
// the others. This is the length gen_iv/set_iv enforce on a Context.
func (c ID) IVSize() (int, error) {
	switch c {
	case AES256CBC:
		return util.AESCBCIVSize, nil
	case ChaCha20:
		return util.ChaCha20NonceSize, nil
	case AES256GCM:
		return util.AESGCMNonceSize, nil
	case ChaCha20Poly1305:
		return util.ChaCha20NonceSize, nil
	default:
		return 0, fmt.Errorf("unknown cipher id %d", uint8(c))
	}
}

// TagLen returns the length of the trailing authentication tag Seal
// appends: the AEAD tag for AES256GCM/ChaCha20Poly1305, or the
// HMAC-SHA3-256 tag for the encrypt-then-MAC suites.
func (c ID) TagLen() (int, error) {
	switch c {
	case AES256GCM:
		return util.AESGCMTagSize, nil
	case ChaCha20Poly1305:
		return util.ChaCha20Poly1305TagSize, nil
	case AES256CBC, ChaCha20:
		return util.HMACSHA3Size, nil
	default:
		return 0, fmt.Errorf("unknown cipher id %d", uint8(c))
	}
}

// Valid reports whether c is one of the known suite identifiers.
func (c ID) Valid() bool {
	switch c {
	case AES256CBC, ChaCha20, AES256GCM, ChaCha20Poly1305:
		return true
	default:
		return false
	}
}

// DefaultCipher is used by vault initialization when the caller does not
// request a specific suite.
const DefaultCipher = ChaCha20Poly1305
