// Package fileobject implements the per-file on-disk layout for encrypted
// payloads inside a vault: a small fixed header followed by ciphertext and
// a trailing MAC or AEAD tag.
package fileobject

import (
	"encoding/binary"

	"github.com/dpalmer/rvault/vaulterr"
)

const (
	// Version is the file-object header ABI version.
	Version uint8 = 1

	// Alignment is the padding boundary between the header and the
	// ciphertext, matching the metadata record's alignment.
	Alignment = 64

	// fixedHeaderLen is ver(1) + reserved(1) + hmac_len(2) + edata_len(8).
	fixedHeaderLen = 1 + 1 + 2 + 8
)

func alignedHeaderLen() int {
	if fixedHeaderLen%Alignment == 0 {
		return fixedHeaderLen
	}
	return fixedHeaderLen + (Alignment - fixedHeaderLen%Alignment)
}

type header struct {
	hmacLen  uint16
	edataLen uint64
}

func marshalHeader(hmacLen uint16, edataLen uint64) []byte {
	buf := make([]byte, alignedHeaderLen())
	buf[0] = Version
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], hmacLen)
	binary.BigEndian.PutUint64(buf[4:12], edataLen)
	return buf
}

func parseHeader(data []byte) (*header, error) {
	hdrLen := alignedHeaderLen()
	if len(data) < hdrLen {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "fileobject.parseHeader", "shorter than the fixed header")
	}
	if data[0] != Version {
		return nil, vaulterr.New(vaulterr.IncompatibleVersion, "fileobject.parseHeader", "")
	}
	h := &header{
		hmacLen:  binary.BigEndian.Uint16(data[2:4]),
		edataLen: binary.BigEndian.Uint64(data[4:12]),
	}
	return h, nil
}
