// Package kdf implements the vault's KDF parameter block: an opaque,
// self-contained byte string carrying the scrypt cost parameters and salt
// needed to re-derive K_p from a passphrase. The metadata package stores
// the block as opaque bytes; the vault package encodes and decodes it only
// through Marshal and Unmarshal, and hands the decoded Params to the
// crypto package's Context.
package kdf

import (
	"encoding/binary"
	"fmt"

	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/vaulterr"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	wireVersion  = 1
	saltLen      = 32
	derivedKeyLen = 32

	// MaxParamsLen is the largest a marshaled parameter block may be; it
	// must fit in the metadata header's single-byte kp_len field.
	MaxParamsLen = 255
)

// Profile names a scrypt cost tier. Higher tiers derive more slowly and are
// intended for long-lived, high-value secrets; lower tiers are for
// interactive use and tests.
type Profile int

const (
	// ProfileInteractive completes in well under 100ms; suitable for tests
	// and any path where the caller is actively waiting and re-derivation
	// happens often.
	ProfileInteractive Profile = iota
	// ProfileModerate is the default for normal vault use.
	ProfileModerate
	// ProfileSensitive is deliberately expensive, for vaults protecting
	// especially high-value secrets where a slower open is acceptable.
	ProfileSensitive
)

type costParams struct {
	N, R, P int
}

var profileCosts = map[Profile]costParams{
	ProfileInteractive: {N: 1 << 14, R: 8, P: 1},
	ProfileModerate:    {N: 1 << 17, R: 8, P: 1},
	ProfileSensitive:   {N: 1 << 19, R: 8, P: 1},
}

// Params holds the scrypt cost parameters and salt used to derive K_p.
type Params struct {
	N, R, P int
	Salt    []byte
}

// New generates a fresh KDF parameter block for the given profile, with a
// freshly generated random salt.
func New(profile Profile) (*Params, error) {
	c, ok := profileCosts[profile]
	if !ok {
		return nil, fmt.Errorf("unknown KDF profile %d", profile)
	}
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.RngFailure, "kdf.New", err)
	}
	return &Params{N: c.N, R: c.R, P: c.P, Salt: salt}, nil
}

// Validate checks that the parameters are within acceptable, non-degenerate
// bounds. N must be a power of two greater than 1.
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("nil KDF parameters")
	}
	if p.N < 2 || p.N&(p.N-1) != 0 {
		return fmt.Errorf("scrypt N must be a power of two >= 2, got %d", p.N)
	}
	if p.R < 1 || p.P < 1 {
		return fmt.Errorf("scrypt r and p must be >= 1, got r=%d p=%d", p.R, p.P)
	}
	if len(p.Salt) == 0 {
		return fmt.Errorf("scrypt salt must not be empty")
	}
	return nil
}

// Marshal encodes the parameter block into the opaque wire format stored in
// the vault metadata's KDF-parameters slot.
//
// Wire format (all integers big-endian):
//
//	ver (1) | N (4) | r (4) | p (4) | salt_len (1) | salt (salt_len)
func (p *Params) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Salt) > 255 {
		return nil, fmt.Errorf("salt too long to encode: %d bytes", len(p.Salt))
	}
	out := make([]byte, 0, 14+len(p.Salt))
	out = append(out, wireVersion)
	var buf4 [4]byte
	binary.BigEndian.PutUint32(buf4[:], uint32(p.N))
	out = append(out, buf4[:]...)
	binary.BigEndian.PutUint32(buf4[:], uint32(p.R))
	out = append(out, buf4[:]...)
	binary.BigEndian.PutUint32(buf4[:], uint32(p.P))
	out = append(out, buf4[:]...)
	out = append(out, byte(len(p.Salt)))
	out = append(out, p.Salt...)
	if len(out) > MaxParamsLen {
		return nil, fmt.Errorf("marshaled KDF parameters exceed %d bytes", MaxParamsLen)
	}
	return out, nil
}

// Unmarshal decodes a parameter block previously produced by Marshal.
func Unmarshal(b []byte) (*Params, error) {
	const minLen = 1 + 4 + 4 + 4 + 1
	if len(b) < minLen {
		return nil, fmt.Errorf("KDF parameter block too short: %d bytes", len(b))
	}
	if b[0] != wireVersion {
		return nil, fmt.Errorf("unsupported KDF parameter block version %d", b[0])
	}
	n := binary.BigEndian.Uint32(b[1:5])
	r := binary.BigEndian.Uint32(b[5:9])
	p := binary.BigEndian.Uint32(b[9:13])
	sl := int(b[13])
	if len(b) != minLen+sl {
		return nil, fmt.Errorf("KDF parameter block length mismatch: got %d, want %d", len(b), minLen+sl)
	}
	params := &Params{N: int(n), R: int(r), P: int(p), Salt: util.CopyBytes(b[minLen:])}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("decoded KDF parameters invalid: %w", err)
	}
	return params, nil
}

// NormalizePassphrase applies NFKD Unicode normalization to a passphrase
// before it is fed to scrypt, so that visually identical passphrases typed
// on different input methods derive the same key.
func NormalizePassphrase(passphrase string) []byte {
	return norm.NFKD.Bytes([]byte(passphrase))
}

// Derive runs scrypt over the (already normalized) passphrase using these
// parameters, producing a 32-byte key suitable as K_p for any of the
// supported ciphers.
func (p *Params) Derive(passphrase []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key(passphrase, p.Salt, p.N, p.R, p.P, derivedKeyLen)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KdfFailure, "kdf.Derive", err)
	}
	return key, nil
}
