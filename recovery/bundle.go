// Package recovery parses and produces the out-of-band recovery bundle: a
// text container carrying a vault's raw metadata record and its effective
// key K_e, letting a vault be opened without the escrow server or the
// passphrase.
//
// The bundle is a sequence of PEM blocks. encoding/pem is the standard
// library's own named-section byte-container format (RFC 7468); reaching
// for it here is the idiomatic choice for "structured sequence of named
// sections carrying raw bytes" rather than inventing a bespoke text
// format or a third-party container for a two-field bundle (see
// DESIGN.md).
package recovery

import (
	"encoding/pem"

	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/vaulterr"
)

const (
	blockTypeMetadata = "RVAULT METADATA"
	blockTypeEKey     = "RVAULT EKEY"
)

// Bundle holds the two byte sections this core consumes from a recovery
// bundle: the raw on-disk metadata record and the raw effective key.
type Bundle struct {
	Metadata []byte
	EKey     []byte
}

// Encode serializes b into the PEM-based text container. An empty section
// is omitted, so Parse reports it as missing.
func Encode(b *Bundle) []byte {
	var out []byte
	if len(b.Metadata) > 0 {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: blockTypeMetadata, Bytes: b.Metadata})...)
	}
	if len(b.EKey) > 0 {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: blockTypeEKey, Bytes: b.EKey})...)
	}
	return out
}

// Parse decodes a recovery bundle previously produced by Encode. It fails
// with vaulterr.BadRecovery if either required section is missing or the
// text cannot be parsed as PEM at all.
func Parse(data []byte) (*Bundle, error) {
	b := &Bundle{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case blockTypeMetadata:
			b.Metadata = util.CopyBytes(block.Bytes)
		case blockTypeEKey:
			b.EKey = util.CopyBytes(block.Bytes)
		}
	}
	if b.Metadata == nil {
		return nil, vaulterr.New(vaulterr.BadRecovery, "recovery.Parse", "missing METADATA section")
	}
	if b.EKey == nil {
		return nil, vaulterr.New(vaulterr.BadRecovery, "recovery.Parse", "missing EKEY section")
	}
	return b, nil
}
