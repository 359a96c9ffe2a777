// Package metadata implements the vault's on-disk metadata record: the
// versioned, HMAC-authenticated header that carries the cipher choice, the
// IV, and the KDF parameters needed to re-derive K_p.
package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/dpalmer/rvault/crypto"
	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/vaulterr"
)

const (
	// Version is the only metadata ABI version this implementation
	// understands. Any other value on disk is rejected before any crypto
	// work is attempted.
	Version uint8 = 1

	// FileName is the fixed name of the metadata record within a vault
	// directory.
	FileName = "rvault.meta"

	// Alignment is the padding boundary for both the fixed header and
	// (separately) the file-object header.
	Alignment = 64

	// fixedHeaderLen is ver(1) + cipher(1) + flags(1) + kp_len(1) +
	// iv_len(2) + uid(16).
	fixedHeaderLen = 1 + 1 + 1 + 1 + 2 + 16

	// UIDLen is the fixed length of the client UID.
	UIDLen = 16

	// HMACLen is the length of the trailing authentication tag.
	HMACLen = util.HMACSHA3Size

	// MaxKDFParamsLen mirrors kdf.MaxParamsLen; kept here too so this
	// package does not need to import kdf just for a constant.
	MaxKDFParamsLen = 255
)

// Flags is the metadata header's single-byte bitfield.
type Flags uint8

const (
	// FlagNOAUTH means the vault skips the escrow server entirely; the
	// KDF-derived key is used directly as K_e.
	FlagNOAUTH Flags = 1 << 0
)

// Has reports whether f includes want.
func (f Flags) Has(want Flags) bool { return f&want != 0 }

func alignedHeaderLen() int {
	return roundUp(fixedHeaderLen, Alignment)
}

func roundUp(n, boundary int) int {
	if n%boundary == 0 {
		return n
	}
	return n + (boundary - n%boundary)
}

// Header is the parsed, owning form of a vault metadata record: fixed
// fields plus the IV and KDF-parameter blobs, but not the trailing HMAC
// (see Record).
type Header struct {
	Cipher    crypto.ID
	Flags     Flags
	UID       [UIDLen]byte
	IV        []byte
	KDFParams []byte
}

// NewHeader validates and constructs a Header ready for marshaling.
func NewHeader(cipher crypto.ID, flags Flags, uid [UIDLen]byte, iv, kdfParams []byte) (*Header, error) {
	if !cipher.Valid() {
		return nil, vaulterr.New(vaulterr.UnsupportedCipher, "metadata.NewHeader", "")
	}
	if len(iv) > 0xFFFF {
		return nil, vaulterr.New(vaulterr.BadLength, "metadata.NewHeader", "IV too long")
	}
	if len(kdfParams) > MaxKDFParamsLen {
		return nil, vaulterr.New(vaulterr.BadLength, "metadata.NewHeader", "KDF parameters too long")
	}
	return &Header{
		Cipher:    cipher,
		Flags:     flags,
		UID:       uid,
		IV:        util.CopyBytes(iv),
		KDFParams: util.CopyBytes(kdfParams),
	}, nil
}

// Region marshals the header, IV, and KDF parameters into the exact byte
// range the HMAC is computed over: aligned-header || IV || KDF params.
func (h *Header) Region() ([]byte, error) {
	if !h.Cipher.Valid() {
		return nil, vaulterr.New(vaulterr.UnsupportedCipher, "metadata.Header.Region", "")
	}
	if len(h.IV) > 0xFFFF {
		return nil, vaulterr.New(vaulterr.BadLength, "metadata.Header.Region", "IV too long")
	}
	if len(h.KDFParams) > MaxKDFParamsLen {
		return nil, vaulterr.New(vaulterr.BadLength, "metadata.Header.Region", "KDF parameters too long")
	}

	fixed := make([]byte, alignedHeaderLen())
	fixed[0] = Version
	fixed[1] = byte(h.Cipher)
	fixed[2] = byte(h.Flags)
	fixed[3] = byte(len(h.KDFParams))
	binary.BigEndian.PutUint16(fixed[4:6], uint16(len(h.IV)))
	copy(fixed[6:6+UIDLen], h.UID[:])

	region := make([]byte, 0, len(fixed)+len(h.IV)+len(h.KDFParams))
	region = append(region, fixed...)
	region = append(region, h.IV...)
	region = append(region, h.KDFParams...)
	return region, nil
}

// Record is a fully parsed on-disk metadata record: the header plus its
// authentication tag and the exact byte range the tag was computed over.
type Record struct {
	Header *Header
	Region []byte
	HMAC   []byte
}

// Parse validates and decodes a raw metadata record. It checks the ABI
// version before touching anything else, per the requirement that version
// mismatches are rejected before any crypto work.
func Parse(data []byte) (*Record, error) {
	hdrLen := alignedHeaderLen()
	if len(data) < hdrLen {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "metadata.Parse", "shorter than the fixed header")
	}
	if data[0] != Version {
		return nil, vaulterr.New(vaulterr.IncompatibleVersion, "metadata.Parse", fmt.Sprintf("got version %d, want %d", data[0], Version))
	}

	cipherID := crypto.ID(data[1])
	if !cipherID.Valid() {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "metadata.Parse", "unrecognized cipher byte")
	}
	flags := Flags(data[2])
	kpLen := int(data[3])
	ivLen := int(binary.BigEndian.Uint16(data[4:6]))

	var uid [UIDLen]byte
	copy(uid[:], data[6:6+UIDLen])

	total := hdrLen + ivLen + kpLen + HMACLen
	if len(data) != total {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "metadata.Parse",
			fmt.Sprintf("length mismatch: got %d bytes, want %d", len(data), total))
	}

	iv := data[hdrLen : hdrLen+ivLen]
	kp := data[hdrLen+ivLen : hdrLen+ivLen+kpLen]
	region := data[:hdrLen+ivLen+kpLen]
	hmac := data[hdrLen+ivLen+kpLen:]

	return &Record{
		Header: &Header{
			Cipher:    cipherID,
			Flags:     flags,
			UID:       uid,
			IV:        util.CopyBytes(iv),
			KDFParams: util.CopyBytes(kp),
		},
		Region: util.CopyBytes(region),
		HMAC:   util.CopyBytes(hmac),
	}, nil
}

// ComputeHMAC computes the metadata authentication tag, keyed by K_e, over
// region (aligned-header || IV || KDF params). This proves possession of
// K_e, chaining the server's envelope to the local metadata.
func ComputeHMAC(ke, region []byte) []byte {
	return util.HMACSHA3256(ke, region)
}

// Verify recomputes the HMAC over rec.Region with ke and compares it,
// constant-time, against rec.HMAC. A mismatch is reported as
// vaulterr.AuthenticationFailed: this is the sole mechanism that
// distinguishes "wrong passphrase" from "corruption", so the wording
// deliberately hints at the passphrase without further diagnosis.
func Verify(ke []byte, rec *Record) error {
	want := ComputeHMAC(ke, rec.Region)
	if !util.ConstantTimeCompare(want, rec.HMAC) {
		return vaulterr.New(vaulterr.AuthenticationFailed, "metadata.Verify", "verification failed: invalid passphrase?")
	}
	return nil
}
